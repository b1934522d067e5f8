package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

// ReadyFunc reports whether the process has finished starting up.
type ReadyFunc func() bool

// Server serves /metrics, /healthz and /readyz over plain HTTP.
type Server struct {
	addr   string
	logger *zap.Logger
	ready  ReadyFunc
	server *http.Server
}

// NewServer creates a server bound to addr. ready gates /readyz.
func NewServer(addr string, ready ReadyFunc, logger *zap.Logger) *Server {
	return &Server{
		addr:   addr,
		logger: logger.Named("metrics-server"),
		ready:  ready,
	}
}

// Handler returns the mux served by Start.
func (s *Server) Handler() http.Handler {
	live := &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping": healthz.Ping,
	}}
	ready := &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping":   healthz.Ping,
		"seeded": s.seededCheck,
	}}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", http.StripPrefix("/healthz", live))
	mux.Handle("/healthz/", http.StripPrefix("/healthz", live))
	mux.Handle("/readyz", http.StripPrefix("/readyz", ready))
	mux.Handle("/readyz/", http.StripPrefix("/readyz", ready))
	return mux
}

func (s *Server) seededCheck(_ *http.Request) error {
	if s.ready == nil || !s.ready() {
		return errors.New("claim snapshot not loaded yet")
	}
	return nil
}

// Start listens on the configured address and blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting metrics server", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down metrics server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
