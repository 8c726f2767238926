// Package websocket serves the game to browsers. Every text frame from the
// client is one line of input; every line the game sends is one text frame.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/config"
)

const shutdownTimeout = 5 * time.Second

// SessionHandler runs the conversation with one connected browser.
type SessionHandler interface {
	HandleWebsocket(ctx context.Context, conn *Conn) error
}

// Server upgrades HTTP requests on the configured path and runs each
// connection through a SessionHandler. It implements server.Service.
type Server struct {
	cfg      config.WebsocketConfig
	handler  SessionHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a Server for cfg.
//
// Precondition: handler and logger must be non-nil; cfg.Path starts with "/".
func NewServer(cfg config.WebsocketConfig, handler SessionHandler, logger *zap.Logger) *Server {
	if handler == nil || logger == nil {
		panic("websocket.NewServer: handler and logger must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		conns:  make(map[*Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, s)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Start listens and serves until Stop.
//
// Postcondition: Returns nil after Stop, or the listen error.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("websocket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, closes every open connection and waits
// for their handlers to return.
func (s *Server) Stop() {
	s.mu.Lock()
	s.cancel()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("websocket shutdown", zap.Error(err))
	}
	s.wg.Wait()
	s.logger.Info("websocket server stopped")
}

// Ready is closed once Start is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or "" before Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	conn := newConn(ws, s.cfg.ReadLimit, s.cfg.PingInterval)
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	start := time.Now()
	s.logger.Info("browser connected", zap.String("remote_addr", r.RemoteAddr))
	err = s.handler.HandleWebsocket(s.ctx, conn)
	s.logger.Info("browser disconnected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Duration("duration", time.Since(start)),
		zap.NamedError("reason", err),
	)
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
	s.wg.Done()
}
