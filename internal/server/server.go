package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smsgate/smsgate/internal/config"
	"github.com/smsgate/smsgate/internal/httputil"
	"github.com/smsgate/smsgate/internal/smsgate"
)

// Server is the smsgate HTTP API.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	http      *http.Server
	logger    *slog.Logger
	client    *smsgate.Client
	startTime time.Time
}

// New creates a Server with middleware and routes configured. metrics may
// be nil when metrics export is disabled.
func New(cfg *config.Config, logger *slog.Logger, client *smsgate.Client, metrics http.Handler) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:       cfg,
		router:    r,
		logger:    logger,
		client:    client,
		startTime: time.Now(),
	}

	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requireToken(cfg.Server.APIToken))

		r.Get("/status", s.handleStatus)
		r.Get("/providers", s.handleProviders)
		r.Get("/providers/{provider}/balance", s.handleBalance)
		r.Get("/resolve/{phone}", s.handleResolve)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/sms/send", s.handleSend)
			r.Post("/sms/can-send", s.handleCanSend)
		})
	})

	return s
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// StartWithReady begins listening. It closes the ready channel once the
// listener is bound, then blocks serving requests.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	s.http = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Info("server starting", "address", ln.Addr().String())
	close(ready)

	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting up to the configured
// shutdown timeout for in-flight sends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
