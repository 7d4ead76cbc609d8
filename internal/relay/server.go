// Package relay implements line relay server over TCP.
//
// Every line received from any client is published to the hub and written back
// to every connected client, the sender included unless self-delivery is disabled.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wtask/relay/internal/relay/hub"
	"github.com/wtask/relay/internal/relay/line"
	"github.com/wtask/relay/pkg/background"
)

// Server - represents relay server over any net.Listener implementation.
type Server struct {
	hub    *hub.Hub
	logger *slog.Logger

	readTimeout,
	writeTimeout time.Duration
	maxLineLength int
	lagPolicy     LagPolicy
	selfDelivery  bool

	scope *background.Scope
	stop  func()

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	clients   *registry
}

// NewServer - creates new relay server which is ready to serve several network listeners.
func NewServer(h *hub.Hub, options ...serverOption) (*Server, error) {
	if h == nil {
		return nil, errors.New("relay.NewServer: hub is nil")
	}
	scope, stop := background.NewScope(context.Background())
	s := &Server{
		hub:           h,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		writeTimeout:  30 * time.Second,
		maxLineLength: line.DefaultMaxLength,
		lagPolicy:     LagSkip,
		selfDelivery:  true,
		scope:         scope,
		stop:          stop,
		listeners:     map[net.Listener]struct{}{},
		clients:       newRegistry(),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			stop()
			return nil, err
		}
	}
	return s, nil
}

// ListenAndServe - listens TCP address and serves it.
// Unlike errors of Serve, failure to listen is returned immediately.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay.Server: listen %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve - accepts connections of the listener until Shutdown, each of them is served in background.
// Accept errors are logged and retried with growing delay.
// Serve always returns non-nil error, it is ErrServerClosed after Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	if !s.track(listener) {
		listener.Close()
		return ErrServerClosed
	}
	defer s.untrack(listener)

	s.logger.Info("listening", "addr", listener.Addr().String())

	delay := acceptBackoff()
	for {
		nc, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			wait := delay.NextBackOff()
			s.logger.Warn("accept failed", "err", err, "retry_in", wait)
			select {
			case <-time.After(wait):
			case <-s.scope.Context().Done():
				return ErrServerClosed
			}
			continue
		}
		delay.Reset()

		started := s.scope.Go(func(ctx context.Context) {
			s.serve(newConn(ctx, nc, s.hub.Subscribe(), s.logger))
		})
		if !started {
			nc.Close()
			return ErrServerClosed
		}
	}
}

// Shutdown - stops listeners, disconnects all clients and returns stopping duration.
// Clients that are not released within timeout are left behind.
func (s *Server) Shutdown(timeout time.Duration) time.Duration {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.closed = true
	for l := range s.listeners {
		l.Close()
	}
	s.mu.Unlock()

	from := time.Now()
	done := make(chan struct{})
	go func() {
		s.stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("shutdown timed out", "clients", s.clients.len())
	}
	return time.Since(from)
}

// Connections - returns number of connected clients.
func (s *Server) Connections() int {
	return s.clients.len()
}

// Clients - returns snapshot of connected clients.
func (s *Server) Clients() []ClientInfo {
	list := s.clients.snapshot()
	info := make([]ClientInfo, 0, len(list))
	for _, c := range list {
		info = append(info, c.info())
	}
	return info
}

func (s *Server) track(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) untrack(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

// acceptBackoff - delays between failed accepts, never gives up.
func acceptBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
