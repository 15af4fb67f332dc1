// Package web serves a read-only JSON status API for the running display,
// plus Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unklstewy/flight-display/internal/auth"
	"github.com/unklstewy/flight-display/internal/display"
	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// StatsProvider reports poll loop activity.
type StatsProvider interface {
	Stats() poller.Stats
}

// Config contains server settings.
type Config struct {
	// Listen is the bind address (e.g., ":8080")
	Listen string

	// AllowedOrigins for CORS requests (default: any)
	AllowedOrigins []string

	// RunID identifies this process in status responses
	RunID string

	// Auth guards /api/v1 when set
	Auth *auth.Service
}

// Server is the status API.
type Server struct {
	cfg      Config
	router   *chi.Mux
	board    *display.Board
	stats    StatsProvider
	gatherer prometheus.Gatherer
	log      logger.Logger
	started  time.Time

	streamInterval time.Duration

	// open stream connections; Shutdown closes them
	streamsMu    sync.Mutex
	streams      map[*websocket.Conn]struct{}
	shuttingDown bool

	httpServer *http.Server
}

// New creates the server and its routes. gatherer may be nil to disable /metrics.
func New(cfg Config, board *display.Board, stats StatsProvider, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		board:    board,
		stats:    stats,
		gatherer: gatherer,
		log:      log,
		started:  time.Now(),

		streamInterval: StreamInterval,
		streams:        make(map[*websocket.Conn]struct{}),
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Auth != nil {
			r.Use(s.cfg.Auth.Middleware)
		}
		r.Get("/flights", s.handleGetFlights)
		r.Get("/flights/{callsign}", s.handleGetFlight)
		r.Get("/status", s.handleGetStatus)
		r.Get("/stream", s.handleStream)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// requestLogger logs each request at debug level through the app logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetFlights(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"flights":     snap.Flights,
		"count":       snap.Count,
		"last_update": snap.LastUpdate,
	})
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))

	for _, f := range s.board.Snapshot().Flights {
		if strings.EqualFold(f.Callsign, callsign) {
			respondJSON(w, http.StatusOK, f)
			return
		}
	}

	respondJSON(w, http.StatusNotFound, map[string]string{
		"error": fmt.Sprintf("flight %s not found", callsign),
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Snapshot()

	status := map[string]interface{}{
		"run_id":         s.cfg.RunID,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"connected":      snap.Connected,
		"status":         snap.Status,
		"flights":        snap.Count,
		"last_update":    snap.LastUpdate,
		"updates":        snap.Updates,
		"errors":         snap.Errors,
	}
	if s.stats != nil {
		status["poller"] = s.stats.Stats()
	}

	respondJSON(w, http.StatusOK, status)
}

// Start binds the listen address and serves in the background.
// Bind errors are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.log.Info("Status API listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status API failed", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the server gracefully. Stream clients are sent a going-away
// close frame first, since http.Server does not track hijacked connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if n := s.closeStreams(); n > 0 {
		s.log.Info("Closed stream clients", "count", n)
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
