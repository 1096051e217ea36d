package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/acme/autocert"

	"flight-map-dashboard/internal/api"
	"flight-map-dashboard/internal/config"
	"flight-map-dashboard/internal/detail"
	"flight-map-dashboard/internal/fetcher"
	"flight-map-dashboard/internal/metrics"
	"flight-map-dashboard/internal/photo"
	"flight-map-dashboard/internal/refresh"
	"flight-map-dashboard/internal/registry"
	"flight-map-dashboard/internal/throttle"
	"flight-map-dashboard/internal/warmup"
	"flight-map-dashboard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(cfg.Logging.Level)
	m := metrics.NewMetrics()

	// one limiter shared by every map session
	limiter := throttle.NewRateLimiter(cfg.Throttle.QueriesPerSecond, cfg.Throttle.Burst)
	client := fetcher.NewOpenSkyClient(fetcher.Options{
		BaseURL:     cfg.OpenSky.BaseURL,
		Timeout:     cfg.OpenSky.RequestTimeout,
		Username:    cfg.OpenSky.Username,
		Password:    cfg.OpenSky.Password,
		MaxAircraft: cfg.OpenSky.MaxAircraft,
	}, limiter, appLog.With("opensky"), m)

	trigger := refresh.NewTrigger(client, cfg.Refresh.Interval, cfg.Refresh.QueryTimeout, appLog.With("refresh"), m)

	reg, err := registry.LoadFile(cfg.Registry.Path, appLog.With("registry"))
	if err != nil {
		appLog.Error("Failed to load aircraft registry: %v", err)
		reg = registry.New()
	}

	deps := api.Deps{
		Trigger:        trigger,
		Throttle:       limiter,
		Detail:         detail.NewLookup(cfg.Detail.TrackerURL),
		Registry:       reg,
		Metrics:        m,
		Logger:         appLog.With("http"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Photo.BaseURL != "" {
		deps.Photos = photo.NewScraper(cfg.Photo.BaseURL, cfg.Photo.Timeout, appLog.With("photo"))
	}
	if len(cfg.Warmup.Hosts) > 0 {
		deps.Warmup = warmup.NewPinger(cfg.Warmup.Hosts, cfg.Warmup.Timeout, cfg.Warmup.Insecure, appLog.With("warmup"))
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewServer(deps).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var challenge *http.Server
	if len(cfg.Server.TLSDomains) > 0 {
		certs := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Server.TLSDomains...),
			Cache:      autocert.DirCache(cfg.Server.CertCacheDir),
		}
		server.Addr = ":https"
		server.TLSConfig = &tls.Config{GetCertificate: certs.GetCertificate}
		challenge = &http.Server{Addr: ":http", Handler: certs.HTTPHandler(nil)}

		go func() {
			if err := challenge.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.Error("ACME challenge listener failed: %v", err)
			}
		}()
	}

	// Start server in goroutine
	go func() {
		appLog.Info("Starting flight map dashboard on %s", server.Addr)
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if challenge != nil {
		if err := challenge.Shutdown(ctx); err != nil {
			appLog.Error("ACME challenge listener shutdown failed: %v", err)
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	snap := m.GetSnapshot()
	appLog.Info("Server stopped after %d refreshes (%d failed)", snap.Refreshes, snap.RefreshFailures)
}
