// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/quantguard/internal/api/handler/api"
	"github.com/newthinker/quantguard/internal/api/job"
	"github.com/newthinker/quantguard/internal/api/middleware"
	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/app"
	"github.com/newthinker/quantguard/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the quantguard admin HTTP server
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
	cfg        Config
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	APIKey  string
	MaxJobs int
	JobTTL  time.Duration
	// MetricsPath serves the Prometheus registry when Metrics is set
	MetricsPath string
}

// Dependencies are the components the handlers act on
type Dependencies struct {
	App     *app.App
	Metrics *metrics.Registry // optional
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.App == nil {
		return nil, fmt.Errorf("api server requires an app")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	s := &Server{
		logger: logger,
		mux:    mux,
		deps:   deps,
		cfg:    cfg,
	}
	s.setupRoutes()

	var h http.Handler = mux
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}
	h = metrics.LoggingMiddleware(logger)(h)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	a := s.deps.App

	jobs := job.NewStore(s.cfg.MaxJobs, s.cfg.JobTTL)
	backtests := handler.NewBacktestHandler(jobs, a.Backtester(), a.Strategies(), a.Reports(), s.logger.Named("api"))
	if s.deps.Metrics != nil {
		backtests.SetRecorder(s.deps.Metrics)
	}
	breaker := handler.NewBreakerHandler(a.Breaker())
	stops := handler.NewStopsHandler(a.Monitor(), a.Quotes(), a.Clock(), s.logger.Named("api"))
	sizing := handler.NewSizingHandler(a.Limits(), a.Planner())
	limits := handler.NewRiskConfigHandler(a.Limits(), a.Breaker(), a.Clock(), s.logger.Named("api"))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET "+s.cfg.MetricsPath, promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}

	s.handle("GET /api/v1/breaker", breaker.Status)
	s.handle("POST /api/v1/breaker/reset", breaker.Reset)
	s.handle("POST /api/v1/breaker/trip", breaker.Trip)

	s.handle("GET /api/v1/stops", stops.List)
	s.handle("POST /api/v1/stops", stops.Place)
	s.handle("GET /api/v1/stops/{id}", stops.Get)
	s.handle("POST /api/v1/stops/{id}/cancel", stops.Cancel)
	s.handle("POST /api/v1/ticks", stops.Tick)

	s.handle("POST /api/v1/size", sizing.Size)
	s.handle("POST /api/v1/plan", sizing.Plan)

	s.handle("GET /api/v1/risk/config", limits.Get)
	s.handle("PUT /api/v1/risk/config", limits.Update)

	s.handle("GET /api/v1/strategies", backtests.Strategies)
	s.handle("GET /api/v1/backtests", backtests.List)
	s.handle("POST /api/v1/backtests", backtests.Create)
	s.handle("GET /api/v1/backtests/{id}", backtests.Get)
}

// handle registers an authenticated route
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, middleware.APIKeyAuth(s.cfg.APIKey)(fn))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.deps.App.Breaker().Status()
	response.JSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"breaker_open": st.Open,
		"stats":        s.deps.App.Stats(),
	})
}
