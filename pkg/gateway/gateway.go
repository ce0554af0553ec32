// Package gateway exposes the operational HTTP surface of the pinning
// manager: status, health, usage, per-content pin operations, the
// emergency unpin and Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/pinvault/pkg/config"
	"github.com/DeBrosOfficial/pinvault/pkg/logging"
	"github.com/DeBrosOfficial/pinvault/pkg/manager"
	"github.com/DeBrosOfficial/pinvault/pkg/metrics"
)

// Server serves the pinning API over HTTP
type Server struct {
	manager     *manager.Manager
	recorder    *metrics.Recorder
	config      config.GatewayConfig
	maxBodySize int64
	logger      *logging.ColoredLogger
	router      chi.Router
	server      *http.Server
}

// New creates a gateway server. recorder may be nil, in which case
// /metrics is not mounted. maxBodySize bounds uploaded content; 0 disables it.
func New(mgr *manager.Manager, recorder *metrics.Recorder, cfg config.GatewayConfig, maxBodySize int64, logger *logging.ColoredLogger) *Server {
	if logger == nil {
		logger = &logging.ColoredLogger{Logger: zap.NewNop()}
	}
	s := &Server{
		manager:     mgr,
		recorder:    recorder,
		config:      cfg,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.ComponentInfo(logging.ComponentGateway, "HTTP gateway starting",
		zap.String("listen_addr", listener.Addr().String()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.ComponentError(logging.ComponentGateway, "HTTP gateway server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.ComponentInfo(logging.ComponentGateway, "HTTP gateway shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.ComponentError(logging.ComponentGateway, "HTTP gateway shutdown error", zap.Error(err))
		return err
	}
	s.logger.ComponentInfo(logging.ComponentGateway, "HTTP gateway shutdown complete")
	return nil
}
