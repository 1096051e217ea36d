// Package warmup wakes idle remote services with a single background ping.
package warmup

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"flight-map-dashboard/pkg/logger"
)

// Pinger GETs a fixed list of hosts once per process. Outcomes are only logged.
type Pinger struct {
	hosts   []string
	client  *http.Client
	logger  *logger.Logger
	started atomic.Bool
	done    chan struct{}
}

// NewPinger builds a pinger. The targets are sleeping free-tier hosts, so
// certificate checks are skipped when insecure is set.
func NewPinger(hosts []string, timeout time.Duration, insecure bool, log *logger.Logger) *Pinger {
	if log == nil {
		log = logger.Discard()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Pinger{
		hosts:  hosts,
		client: &http.Client{Timeout: timeout, Transport: transport},
		logger: log,
		done:   make(chan struct{}),
	}
}

// Trigger starts the ping in the background the first time it is called and
// reports whether this call started it. Later calls do nothing.
func (p *Pinger) Trigger() bool {
	if !p.started.CompareAndSwap(false, true) {
		return false
	}
	go p.run()
	return true
}

// Done is closed once the background ping has finished.
func (p *Pinger) Done() <-chan struct{} {
	return p.done
}

func (p *Pinger) run() {
	defer close(p.done)

	for _, host := range p.hosts {
		p.ping(host)
	}
	p.logger.Info("Ping finished for %d host(s)", len(p.hosts))
}

func (p *Pinger) ping(host string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, host, nil)
	if err != nil {
		p.logger.Warn("Skipping warm-up host %q: %v", host, err)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			p.logger.Warn("%s timed out!", host)
		} else {
			p.logger.Warn("%s unreachable: %v", host, err)
		}
		return
	}
	resp.Body.Close()
	p.logger.Debug("%s answered %d", host, resp.StatusCode)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
