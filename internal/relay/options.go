package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LagPolicy - what a connection does when its subscription fell behind the hub.
type LagPolicy int

const (
	// LagSkip - forget the missed messages and resume from the oldest one still in the hub.
	LagSkip LagPolicy = iota
	// LagClose - close the connection.
	LagClose
)

func (p LagPolicy) String() string {
	switch p {
	case LagSkip:
		return "skip"
	case LagClose:
		return "close"
	default:
		return "unknown lag policy"
	}
}

// ParseLagPolicy - converts "skip" or "close" into LagPolicy.
func ParseLagPolicy(s string) (LagPolicy, error) {
	switch s {
	case "skip":
		return LagSkip, nil
	case "close":
		return LagClose, nil
	default:
		return 0, fmt.Errorf("relay.ParseLagPolicy: unknown policy %q", s)
	}
}

type serverOption func(s *Server) error

// WithLogger - attach logger, by default the server logs nothing.
func WithLogger(logger *slog.Logger) serverOption {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("relay.WithLogger: logger is nil")
		}
		s.logger = logger
		return nil
	}
}

// WithReadTimeout - sets idle period after which silent client is disconnected.
// Zero disables the timeout, which is the default.
func WithReadTimeout(timeout time.Duration) serverOption {
	return func(s *Server) error {
		if timeout < 0 {
			return fmt.Errorf("relay.WithReadTimeout: invalid timeout (%v)", timeout)
		}
		s.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout - overwrites default timeout of a single write to client.
func WithWriteTimeout(timeout time.Duration) serverOption {
	return func(s *Server) error {
		if timeout <= 0 {
			return fmt.Errorf("relay.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		s.writeTimeout = timeout
		return nil
	}
}

// WithMaxLineLength - overwrites default limit of incoming line in bytes.
// Client sending longer line is disconnected.
func WithMaxLineLength(max int) serverOption {
	return func(s *Server) error {
		if max <= 0 {
			return fmt.Errorf("relay.WithMaxLineLength: invalid length (%d)", max)
		}
		s.maxLineLength = max
		return nil
	}
}

// WithLagPolicy - overwrites default LagSkip policy.
func WithLagPolicy(policy LagPolicy) serverOption {
	return func(s *Server) error {
		if policy != LagSkip && policy != LagClose {
			return fmt.Errorf("relay.WithLagPolicy: invalid policy (%d)", policy)
		}
		s.lagPolicy = policy
		return nil
	}
}

// WithSelfDelivery - when disabled, clients do not receive their own lines back.
// Enabled by default.
func WithSelfDelivery(enabled bool) serverOption {
	return func(s *Server) error {
		s.selfDelivery = enabled
		return nil
	}
}
