// Package server exposes the masking engine over HTTP. Each masking session
// owns its own engine, so several masked texts can be outstanding at once.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/config"
	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/metrics"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/web"
	"github.com/raaihank/llm-anonymizer/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
const Version = "0.3.0"

// AuditSink receives one record per API call
type AuditSink interface {
	Record(ctx context.Context, r *audit.Record) error
}

// Deps are the collaborators the server is wired with. Only Registry is
// required.
type Deps struct {
	Registry *privacy.Registry
	Hub      *websocket.Hub
	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
	Audit    AuditSink
}

// Server represents the HTTP API server
type Server struct {
	logger   *logger.Logger
	deps     Deps
	router   *mux.Router
	server   *http.Server
	sessions *SessionStore

	mu      sync.RWMutex
	config  *config.Config
	limiter *rateLimiter
}

// New creates the server. The configured categories are checked up front so
// that a bad configuration fails at startup.
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, privacy.ErrNoDetectors
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		logger: log.WithComponent("server"),
		deps:   deps,
		router: mux.NewRouter(),
		config: cfg,
	}

	if _, err := s.newEngine(nil); err != nil {
		return nil, err
	}

	s.sessions = NewSessionStore(cfg.Sessions.TTL, cfg.Sessions.MaxSessions, s.sessionEnded)
	s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	cfg := s.currentConfig()

	s.router.Use(s.recoverMiddleware, s.requestIDMiddleware, s.loggingMiddleware, s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if cfg.Metrics.Enabled {
		s.router.Handle(cfg.Metrics.Path,
			promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if cfg.WebSocket.Enabled && s.deps.Hub != nil {
		s.router.HandleFunc(cfg.WebSocket.Path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
		dashboard := web.Dashboard(Version, cfg.WebSocket.Path)
		s.router.HandleFunc("/", dashboard).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", dashboard).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/hide", s.handleHide).Methods(http.MethodPost)
	api.HandleFunc("/fill", s.handleFill).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Stop is called. Background
// housekeeping stops with ctx.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.currentConfig()
	s.logger.Info("Starting anonymizer server",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("categories", cfg.Privacy.Categories),
		zap.Bool("websocket", cfg.WebSocket.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	if s.deps.Hub != nil {
		go s.deps.Hub.Run(ctx)
	}
	go s.housekeeping(ctx, sweepInterval(cfg.Sessions.TTL))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping anonymizer server")
	return s.server.Shutdown(ctx)
}

// UpdateConfig applies a reloaded configuration. Engine options take effect
// for sessions created afterwards; existing sessions keep their engine.
func (s *Server) UpdateConfig(cfg *config.Config) error {
	if _, err := privacy.New(s.deps.Registry, s.engineOptions(cfg, nil), s.logger); err != nil {
		return fmt.Errorf("rejected configuration: %w", err)
	}

	s.mu.Lock()
	old := s.config
	s.config = cfg
	if old.RateLimit != cfg.RateLimit {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst)
	}
	s.mu.Unlock()

	s.logger.Info("Configuration reloaded",
		zap.Strings("categories", cfg.Privacy.Categories),
		zap.Bool("preserve_grammar", cfg.Privacy.PreserveGrammar),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled))
	return nil
}

func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Server) currentLimiter() *rateLimiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limiter
}

func (s *Server) engineOptions(cfg *config.Config, categories []string) privacy.Options {
	if len(categories) == 0 {
		categories = cfg.Privacy.Categories
	}
	opts := privacy.Options{
		Categories:      categories,
		PreserveGrammar: cfg.Privacy.PreserveGrammar,
		Parallel:        cfg.Privacy.ParallelDetectors,
	}
	if s.deps.Metrics != nil {
		opts.Observer = s.deps.Metrics
	}
	return opts
}

// newEngine builds an engine for a new session; categories override the
// configured selection when set.
func (s *Server) newEngine(categories []string) (*privacy.Anonymizer, error) {
	return privacy.New(s.deps.Registry, s.engineOptions(s.currentConfig(), categories), s.logger)
}

func (s *Server) housekeeping(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Debug("Expired sessions swept", zap.Int("count", n))
			}
			s.currentLimiter().cleanup(time.Hour)
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 2*time.Minute {
		return time.Minute
	}
	return max(ttl/2, time.Second)
}

// sessionEnded is the session store's eviction callback
func (s *Server) sessionEnded(id, reason string) {
	if m := s.deps.Metrics; m != nil {
		m.ActiveSessions.Set(float64(s.sessions.Len()))
		if reason != ReasonClosed {
			m.SessionsEvicted.WithLabelValues(reason).Inc()
		}
	}
	s.logger.WithSession(id).Debug("Session ended", zap.String("reason", reason))
	s.broadcast(websocket.EventTypeSession, "", websocket.SessionEvent{Action: reason, SessionID: id})
}

func (s *Server) broadcast(t websocket.EventType, requestID string, data any) {
	if s.deps.Hub == nil {
		return
	}
	s.deps.Hub.BroadcastEvent(websocket.Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Data:      data,
	})
}

// record writes an audit row without failing the request
func (s *Server) record(r *audit.Record) {
	if s.deps.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.deps.Audit.Record(ctx, r); err != nil {
		s.logger.WithRequestID(r.RequestID).Warn("Audit write failed", zap.Error(err))
	}
}
