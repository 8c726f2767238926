package admin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/fibula/internal/config"
)

// Server serves the admin service on its own listener. It implements
// server.Service.
type Server struct {
	cfg    config.AdminConfig
	grpc   *grpc.Server
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer creates a Server that serves svc.
//
// Precondition: svc and logger must be non-nil.
func NewServer(cfg config.AdminConfig, svc SchedulerAdminServer, logger *zap.Logger) *Server {
	if svc == nil || logger == nil {
		panic("admin.NewServer: service and logger must not be nil")
	}
	g := grpc.NewServer(grpc.UnaryInterceptor(logCalls(logger)))
	RegisterSchedulerAdminServer(g, svc)
	return &Server{cfg: cfg, grpc: g, logger: logger, ready: make(chan struct{})}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()
	close(s.ready)
	s.logger.Info("admin server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serving admin: %w", err)
	}
	return nil
}

// Stop finishes in-flight calls and stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	s.logger.Info("admin server stopped")
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or "" before the server is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("admin call",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Stringer("code", status.Code(err)),
		)
		return resp, err
	}
}
