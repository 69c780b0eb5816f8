package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"firestige.xyz/vrtbridge/internal/log"
)

// Server is the HTTP server for Prometheus metrics.
type Server struct {
	addr   string
	path   string
	server *http.Server
	ln     net.Listener
}

// NewServer creates a new metrics server.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		addr: addr,
		path: path,
	}
}

// Start binds the listen address and serves in the background. Bind errors
// are returned to the caller.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", s.addr, err)
	}
	s.ln = ln

	log.GetLogger().WithFields(map[string]interface{}{"addr": ln.Addr().String(), "path": s.path}).Info("starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.GetLogger().Info("stopping metrics server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	log.GetLogger().Info("metrics server stopped")
	return nil
}
