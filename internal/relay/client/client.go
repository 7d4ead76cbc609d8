// Package client implements interactive client of the line relay.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Quit - input line which closes outgoing direction and stops the client.
const Quit = "quit"

// ErrConnectionClosed - returns by Run when the server closed the connection.
var ErrConnectionClosed = errors.New("client: connection closed by server")

// DialConfig - how to establish connection to the relay.
type DialConfig struct {
	// MaxRetries - number of additional attempts after the first failed dial.
	MaxRetries uint64
	// RetryInterval - initial delay between attempts, it grows exponentially.
	RetryInterval time.Duration
	// OnRetry - optional callback called before every retry.
	OnRetry backoff.Notify
}

// Dial - connects to the TCP address retrying failures as configured.
func Dial(ctx context.Context, addr string, config DialConfig) (net.Conn, error) {
	base := backoff.NewExponentialBackOff()
	if config.RetryInterval > 0 {
		base.InitialInterval = config.RetryInterval
	}
	base.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(base, config.MaxRetries), ctx)

	dialer := net.Dialer{}
	var conn net.Conn
	op := func() error {
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.RetryNotify(op, b, config.OnRetry); err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Run - sends every line from in to conn and copies every line received from conn to out.
//
// Run returns nil after Quit line or the end of input, both half-close conn so
// the server sees the end of stream. It returns ErrConnectionClosed when the
// server closed the connection first.
func Run(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	done := make(chan struct{})
	defer close(done)

	received := make(chan error, 1)
	go func() {
		received <- receive(conn, out)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case l, ok := <-lines:
			if !ok || strings.TrimSpace(l) == Quit {
				return closeWrite(conn)
			}
			if _, err := io.WriteString(conn, l+"\n"); err != nil {
				return fmt.Errorf("client: send: %w", err)
			}
		case err := <-received:
			return err
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		}
	}
}

// receive - copies lines from conn until it is closed.
func receive(conn net.Conn, out io.Writer) error {
	r := bufio.NewReader(conn)
	for {
		l, err := r.ReadString('\n')
		if l != "" {
			if _, werr := io.WriteString(out, l); werr != nil {
				return werr
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return ErrConnectionClosed
		default:
			return fmt.Errorf("client: receive: %w", err)
		}
	}
}

func closeWrite(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return conn.Close()
}
