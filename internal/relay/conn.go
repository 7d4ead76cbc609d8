package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wtask/relay/internal/relay/hub"
	"github.com/wtask/relay/internal/relay/line"
)

// State - lifecycle state of client connection.
type State int32

const (
	// Active - both reader and writer are running.
	Active State = iota
	// HalfClosed - one of them has finished, the other is being stopped.
	HalfClosed
	// Closed - both have finished and the socket is released.
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case HalfClosed:
		return "half-closed"
	case Closed:
		return "closed"
	default:
		return "unknown state"
	}
}

// ClientInfo - snapshot of single client connection.
type ClientInfo struct {
	ID         string
	RemoteAddr net.Addr
	State      State
}

// conn - accepted client connection with its paired reader and writer.
// Reader only reads from netConn and writer only writes to it.
type conn struct {
	id      string
	netConn net.Conn
	sub     *hub.Subscription
	logger  *slog.Logger

	// ctx - derived from server scope, helps to cancel "read" when "write" failed and vice versa
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
}

func newConn(ctx context.Context, nc net.Conn, sub *hub.Subscription, logger *slog.Logger) *conn {
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	return &conn{
		id:      id,
		netConn: nc,
		sub:     sub,
		logger:  logger.With("client", id, "remote", nc.RemoteAddr().String()),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *conn) State() State {
	return State(c.state.Load())
}

func (c *conn) info() ClientInfo {
	return ClientInfo{ID: c.id, RemoteAddr: c.netConn.RemoteAddr(), State: c.State()}
}

// finish - called once by reader and once by writer when they return.
// The first call stops the sibling, the second one marks connection as closed.
func (c *conn) finish(side string, err error) {
	c.cancel()
	// close immediately to release the sibling blocked on IO even if its timeout is not expired
	c.netConn.Close()
	state := State(c.state.Add(1))
	c.logger.Debug(side+" stopped", "reason", closeReason(err), "state", state.String())
}

// serve - runs reader and writer and blocks until both are done.
func (s *Server) serve(c *conn) {
	defer c.sub.Close()
	s.clients.add(c)
	defer s.clients.delete(c)

	c.logger.Info("client connected", "clients", s.clients.len())

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := s.maintainOutbox(c)
		c.finish("writer", err)
	}()
	go func() {
		defer wg.Done()
		err := s.maintainInbox(c)
		c.finish("reader", err)
	}()
	wg.Wait()

	c.logger.Info("client disconnected", "clients", s.clients.len()-1)
}

// maintainInbox - reads lines from client and publishes them to the hub.
func (s *Server) maintainInbox(c *conn) error {
	reader := line.NewReader(c.netConn, s.maxLineLength)
	for {
		if s.readTimeout > 0 {
			c.netConn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		l, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, line.ErrInvalidUTF8) || errors.Is(err, line.ErrTooLong) {
				c.logger.Warn("rejected client input", "err", err)
			}
			return err
		}
		c.logger.Debug("line received", "line", l)
		s.hub.Publish(hub.Message{Origin: c.id, Line: l})
	}
}

// maintainOutbox - writes every message from the hub subscription to client.
func (s *Server) maintainOutbox(c *conn) error {
	for {
		m, err := c.sub.Recv(c.ctx)
		lag := &hub.LagError{}
		switch {
		case errors.As(err, &lag):
			c.logger.Warn("client lagged behind", "missed", lag.Missed, "policy", s.lagPolicy.String())
			if s.lagPolicy == LagClose {
				return err
			}
			continue
		case err != nil:
			return err
		}
		if !s.selfDelivery && m.Origin == c.id {
			continue
		}
		c.netConn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if _, err := io.WriteString(c.netConn, m.Line); err != nil {
			return err
		}
		c.logger.Debug("line sent", "line", m.Line, "from", m.Origin)
	}
}

// closeReason - short description of why reader or writer stopped.
func closeReason(err error) string {
	var netErr net.Error
	lag := &hub.LagError{}
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, io.EOF):
		return "closed by client"
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		return "stopped by sibling"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, line.ErrInvalidUTF8):
		return "invalid UTF-8"
	case errors.Is(err, line.ErrTooLong):
		return "line too long"
	case errors.As(err, &lag):
		return "lagged"
	default:
		return err.Error()
	}
}
