package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	// TLSConfig enables TLS if set.
	TLSConfig *tls.Config

	// ReadHeaderTimeout bounds reading request headers (default: 10s).
	ReadHeaderTimeout time.Duration
}

// Server serves an http.Handler on one address.
type Server struct {
	id       string
	addr     string
	config   *ServerConfig
	server   *http.Server
	listener net.Listener
	closed   chan struct{}
	mu       sync.Mutex
}

// NewServer creates a new server. Use config.TLSConfig to enable TLS.
func NewServer(id, addr string, handler http.Handler, config *ServerConfig) *Server {
	if config == nil {
		config = &ServerConfig{}
	}
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = 10 * time.Second
	}
	return &Server{
		id:     id,
		addr:   addr,
		config: config,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			TLSConfig:         config.TLSConfig,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		closed: make(chan struct{}),
	}
}

// ID returns the server ID.
func (s *Server) ID() string {
	return s.id
}

// Addr returns the listening address.
// Returns nil if the server hasn't started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve listens and serves until Shutdown or Close.
func (s *Server) Serve() error {
	var ln net.Listener
	var err error

	if s.config.TLSConfig != nil {
		ln, err = tls.Listen("tcp", s.addr, s.config.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		ln.Close()
		return nil
	default:
	}
	s.listener = ln
	s.mu.Unlock()

	err = s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.markClosed(); err != nil {
		return err
	}
	return s.server.Shutdown(ctx)
}

// Close stops the server immediately.
func (s *Server) Close() error {
	if err := s.markClosed(); err != nil {
		return err
	}
	return s.server.Close()
}

func (s *Server) markClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return errors.New("server already closed")
	default:
		close(s.closed)
	}
	return nil
}
