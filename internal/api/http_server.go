package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"flight-map-dashboard/internal/detail"
	"flight-map-dashboard/internal/geo"
	"flight-map-dashboard/internal/metrics"
	"flight-map-dashboard/internal/photo"
	"flight-map-dashboard/internal/refresh"
	"flight-map-dashboard/internal/registry"
	"flight-map-dashboard/internal/throttle"
	"flight-map-dashboard/internal/web"
	"flight-map-dashboard/pkg/logger"
)

// MetadataLookup resolves registry data for an airframe.
type MetadataLookup interface {
	Lookup(icao24 string) registry.Metadata
}

// PhotoFinder locates a picture of an airframe.
type PhotoFinder interface {
	PhotoURL(ctx context.Context, icao24 string) (string, error)
}

// Warmer is kicked on the first page render.
type Warmer interface {
	Trigger() bool
}

// Deps wires the server to the rest of the application. Registry, Photos,
// Warmup and Throttle are optional.
type Deps struct {
	Trigger        *refresh.Trigger
	Throttle       *throttle.RateLimiter
	Detail         *detail.Lookup
	Registry       MetadataLookup
	Photos         PhotoFinder
	Warmup         Warmer
	Metrics        *metrics.Metrics
	Logger         *logger.Logger
	AllowedOrigins []string
}

// Server represents the HTTP API server
type Server struct {
	trigger        *refresh.Trigger
	throttle       *throttle.RateLimiter
	detail         *detail.Lookup
	registry       MetadataLookup
	photos         PhotoFinder
	warmup         Warmer
	metrics        *metrics.Metrics
	logger         *logger.Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new HTTP server instance
func NewServer(d Deps) *Server {
	s := &Server{
		trigger:        d.Trigger,
		throttle:       d.Throttle,
		detail:         d.Detail,
		registry:       d.Registry,
		photos:         d.Photos,
		warmup:         d.Warmup,
		metrics:        d.Metrics,
		logger:         d.Logger,
		allowedOrigins: d.AllowedOrigins,
	}
	if s.detail == nil {
		s.detail = detail.NewLookup("")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	if len(s.allowedOrigins) == 0 {
		s.allowedOrigins = []string{"*"}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes builds the router with all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Assets()))))
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/features", s.handleFeatures)
		r.Post("/detail", s.handleDetail)
		r.Get("/aircraft/{icao24}", s.handleMetadata)
		r.Get("/aircraft/{icao24}/photo", s.handlePhoto)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.metrics.IncrementHTTPRequests()
		if ww.Status() >= http.StatusBadRequest {
			s.metrics.IncrementHTTPErrors()
		}
		s.logger.Debug("%s %s -> %d in %s [%s]", r.Method, r.URL.Path, ww.Status(),
			time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// handleIndex serves the dashboard and wakes the warm-up hosts on first render
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.warmup != nil && s.warmup.Trigger() {
		s.logger.Info("Warm-up ping started")
	}

	page, err := web.Index()
	if err != nil {
		s.logger.Error("Dashboard page missing: %v", err)
		http.Error(w, "Dashboard unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    s.metrics.GetUptime().String(),
	})
}

type metricsResponse struct {
	*metrics.Snapshot
	Throttle *throttle.Stats `json:"throttle,omitempty"`
}

// handleMetrics returns current metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{Snapshot: s.metrics.GetSnapshot()}
	if s.throttle != nil {
		stats := s.throttle.Stats()
		resp.Throttle = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleFeatures runs one refresh for the bounds in the query string
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	b, err := geo.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	frame := s.trigger.Refresh(r.Context(), b)
	status := http.StatusOK
	if frame.Failed() {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, frame)
}

// handleDetail turns a clicked feature into modal content
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	var feature map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&feature); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "feature must be a JSON object")
		return
	}

	d := s.detail.FromFeature(feature)

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := detail.Modal(d).Render(r.Context(), w); err != nil {
			s.logger.Error("Failed to render detail modal: %v", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// handleMetadata returns registry data; unknown airframes get empty strings
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	icao24 := strings.ToLower(chi.URLParam(r, "icao24"))

	var m registry.Metadata
	if s.registry != nil {
		m = s.registry.Lookup(icao24)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"icao24":       icao24,
		"operator":     m.Operator,
		"manufacturer": m.Manufacturer,
		"model":        m.Model,
	})
}

// handlePhoto returns a picture url for the airframe
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	if s.photos == nil {
		s.writeError(w, http.StatusNotFound, "photos disabled")
		return
	}

	icao24 := chi.URLParam(r, "icao24")
	url, err := s.photos.PhotoURL(r.Context(), icao24)
	switch {
	case errors.Is(err, photo.ErrNoPhoto):
		s.writeError(w, http.StatusNotFound, "no photo")
	case err != nil:
		s.logger.Warn("Photo lookup for %s failed: %v", icao24, err)
		s.writeError(w, http.StatusBadGateway, "photo lookup failed")
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
