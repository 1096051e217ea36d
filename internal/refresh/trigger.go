// Package refresh drives the viewport query pipeline for one map session.
package refresh

import (
	"context"
	"errors"
	"time"

	"flight-map-dashboard/internal/fetcher"
	"flight-map-dashboard/internal/geo"
	"flight-map-dashboard/internal/metrics"
	"flight-map-dashboard/internal/model"
	"flight-map-dashboard/pkg/logger"
)

// Source answers viewport queries. *fetcher.OpenSkyClient satisfies it.
type Source interface {
	FetchStatesByBoundingBox(ctx context.Context, b geo.Bounds) (*model.StatesResult, error)
}

type Status string

const (
	StatusOK            Status = "ok"
	StatusNoData        Status = "no_data"
	StatusUpstreamError Status = "upstream_error"
	StatusMalformed     Status = "malformed"
)

// Frame replaces whatever the map currently shows.
type Frame struct {
	Status     Status                `json:"status"`
	Bounds     geo.Bounds            `json:"bounds"`
	Dropped    int                   `json:"dropped"`
	Truncated  bool                  `json:"truncated"`
	FetchedAt  time.Time             `json:"fetched_at"`
	Error      string                `json:"error,omitempty"`
	Collection geo.FeatureCollection `json:"collection"`
}

// Failed reports whether the frame stands in for a failed query.
func (f Frame) Failed() bool {
	return f.Status == StatusUpstreamError || f.Status == StatusMalformed
}

type Trigger struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewTrigger builds a trigger firing every interval. timeout bounds a single
// query; zero leaves it to the source's own HTTP timeout.
func NewTrigger(source Source, interval, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Trigger {
	if log == nil {
		log = logger.Discard()
	}
	return &Trigger{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}
}

// Refresh runs the query and transform once for b.
func (t *Trigger) Refresh(ctx context.Context, b geo.Bounds) Frame {
	frame := Frame{
		Bounds:     b,
		FetchedAt:  t.now(),
		Collection: geo.EmptyCollection(),
	}

	result, err := t.source.FetchStatesByBoundingBox(ctx, b)
	switch {
	case errors.Is(err, fetcher.ErrMalformed):
		frame.Status = StatusMalformed
		frame.Error = err.Error()
	case err != nil:
		frame.Status = StatusUpstreamError
		frame.Error = err.Error()
	case result.Empty():
		frame.Status = StatusNoData
	default:
		frame.Status = StatusOK
		frame.Collection = geo.ToFeatureCollection(result.Aircraft)
	}
	if result != nil {
		frame.Dropped = result.Dropped
		frame.Truncated = result.Truncated
	}

	// superseded queries are not worth counting
	if errors.Is(ctx.Err(), context.Canceled) {
		return frame
	}
	if t.metrics != nil {
		t.metrics.RecordRefresh(len(frame.Collection.Features), frame.Failed())
	}
	if frame.Failed() {
		t.logger.Warn("Refresh for %s failed: %s", b, frame.Error)
	}
	return frame
}

// Run fires a refresh on every tick and whenever new bounds arrive, handing
// each frame to publish. Nothing is queried until the first bounds are known.
// A bounds change during an in-flight query cancels it and queries the new
// viewport instead. Run returns when ctx is done or updates is closed.
func (t *Trigger) Run(ctx context.Context, updates <-chan geo.Bounds, publish func(Frame)) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var (
		current geo.Bounds
		known   bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-updates:
			if !ok {
				return
			}
			current, known = b, true
		case <-ticker.C:
			if !known {
				continue
			}
		}

		served, ok := t.fire(ctx, current, updates, publish)
		if !ok {
			return
		}
		current = served
	}
}

// fire queries b, restarting for newer bounds until one query completes.
func (t *Trigger) fire(ctx context.Context, b geo.Bounds, updates <-chan geo.Bounds, publish func(Frame)) (geo.Bounds, bool) {
	for {
		qctx, cancel := t.queryContext(ctx)
		done := make(chan Frame, 1)
		go func(b geo.Bounds) {
			done <- t.Refresh(qctx, b)
		}(b)

		select {
		case frame := <-done:
			cancel()
			publish(frame)
			return b, true
		case next, ok := <-updates:
			cancel()
			<-done
			if !ok {
				return b, false
			}
			t.logger.Debug("Viewport moved to %s, abandoning query for %s", next, b)
			b = next
		case <-ctx.Done():
			cancel()
			<-done
			return b, false
		}
	}
}

func (t *Trigger) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(ctx, t.timeout)
	}
	return context.WithCancel(ctx)
}
