package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/metrics"
	"github.com/tripwatch-data/internal/schedule"
)

// Server owns the HTTP surface: the departure board API, health, and
// Prometheus metrics.
type Server struct {
	config config.APIConfig
	logger logger.Logger
	srv    *http.Server
	ping   func(ctx context.Context) error
}

func NewServer(cfg config.APIConfig, store ScheduleStore, reconciler *schedule.Reconciler, m *metrics.Collector, ping func(ctx context.Context) error, log logger.Logger) *Server {
	departures := NewDeparturesHandler(store, reconciler, m, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	s := &Server{
		config: cfg,
		logger: log,
		ping:   ping,
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", m.Handler())
	r.Get("/api/stops/{stopID}/departures", departures.Get)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called. Blocks.
func (s *Server) Start() error {
	s.logger.Info("API server listening", "addr", s.config.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	database := "connected"
	code := http.StatusOK
	if err := s.ping(ctx); err != nil {
		status = "error"
		database = "disconnected"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().UTC(),
	})
}
