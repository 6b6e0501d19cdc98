// Package server constructs and starts the chat room relay with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server ties the router to its listeners: the TCP frame listener and the
// optional HTTP listener serving health checks and WebSocket upgrades.
type Server struct {
	cfg      Config
	router   *Router
	origins  originPolicy
	upgrader websocket.Upgrader

	mu           sync.Mutex
	listener     net.Listener
	httpListener net.Listener
	httpServer   *http.Server
}

// NewServer creates a relay from cfg. A nil cfg uses the defaults.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)

	s := &Server{
		cfg:     sanitized,
		router:  NewRouter(sanitized.RateLimit),
		origins: newOriginPolicy(sanitized.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Router returns the relay's router.
func (s *Server) Router() *Router {
	return s.router
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Listen binds the TCP listener and, if configured, the HTTP listener.
// Failures wrap ErrBindFailure.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server is already listening")
	}

	ln, err := bind(s.cfg.Port)
	if err != nil {
		return err
	}

	if s.cfg.HTTPPort != "" {
		httpLn, err := bind(s.cfg.HTTPPort)
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.httpListener = httpLn
		s.httpServer = CreateServer(s.cfg.HTTPPort, SetupRoutes(s))
	}

	s.listener = ln
	return nil
}

func bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("Failed to bind %s: %v", addr, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrBindFailure, addr, err)
	}
	log.Printf("Bound to %s", ln.Addr())
	return ln, nil
}

// Addr returns the bound TCP address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr returns the bound HTTP address, nil if HTTP is disabled or not bound yet.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Run binds the listeners if needed and serves until ctx is cancelled or a
// listener fails. On return every participant has been disconnected.
func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	ln, httpLn, httpServer := s.listener, s.httpListener, s.httpServer
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(ln)
	})

	if httpServer != nil {
		g.Go(func() error {
			log.Printf("HTTP server listening on %s", httpLn.Addr())
			if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.closeListeners(ln, httpServer)
	})

	err := g.Wait()
	if shutdownErr := s.router.Shutdown(shutdownTimeout); shutdownErr != nil {
		log.Printf("Router shutdown error: %v", shutdownErr)
	}
	return err
}

func (s *Server) closeListeners(ln net.Listener, httpServer *http.Server) error {
	log.Println("Shutting down listeners...")
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("Error closing listener: %v", err)
	}
	if httpServer == nil {
		return nil
	}
	return ShutdownServer(httpServer, shutdownTimeout)
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
