// Package bridge connects hubs of several relay processes through Redis pub/sub.
//
// Lines published to the local hub are PUBLISHed to a Redis channel, and lines
// received from that channel are published to the local hub. Every payload is
// tagged with the node identity, so a node drops its own echoes and never
// forwards a line it received from Redis.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/garyburd/redigo/redis"
	"github.com/google/uuid"

	"github.com/wtask/relay/internal/relay/hub"
	"github.com/wtask/relay/pkg/background"
)

// DefaultChannel - Redis channel used when none is configured.
const DefaultChannel = "relay:lines"

// ErrBadEnvelope - returns for Redis payloads which are not relay lines.
var ErrBadEnvelope = errors.New("bridge: bad envelope")

// NewPool - builds Redis connection pool for the URL, e.g. redis://localhost:6379/0.
func NewPool(url string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		MaxActive:   10,
		IdleTimeout: 90 * time.Second,
		Wait:        true,
		Dial:        func() (redis.Conn, error) { return redis.DialURL(url) },
	}
}

// Bridge - relays lines between local hub and Redis channel.
type Bridge struct {
	pool    *redis.Pool
	hub     *hub.Hub
	channel string
	node    string
	origin  string
	logger  *slog.Logger
}

type bridgeOption func(b *Bridge) error

// WithChannel - overwrites DefaultChannel.
func WithChannel(channel string) bridgeOption {
	return func(b *Bridge) error {
		if channel == "" {
			return errors.New("bridge.WithChannel: channel is empty")
		}
		b.channel = channel
		return nil
	}
}

// WithLogger - attach logger, by default the bridge logs nothing.
func WithLogger(logger *slog.Logger) bridgeOption {
	return func(b *Bridge) error {
		if logger == nil {
			return errors.New("bridge.WithLogger: logger is nil")
		}
		b.logger = logger
		return nil
	}
}

// New - builds Bridge with random node identity.
func New(pool *redis.Pool, h *hub.Hub, options ...bridgeOption) (*Bridge, error) {
	if pool == nil {
		return nil, errors.New("bridge.New: redis pool is nil")
	}
	if h == nil {
		return nil, errors.New("bridge.New: hub is nil")
	}
	node := uuid.NewString()
	b := &Bridge{
		pool:    pool,
		hub:     h,
		channel: DefaultChannel,
		node:    node,
		origin:  "bridge:" + node,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("node", node, "channel", b.channel)
	return b, nil
}

// Node - returns identity of this process in the channel.
func (b *Bridge) Node() string {
	return b.node
}

// Run - relays lines in both directions until ctx is done.
// Redis failures are logged and retried, they never stop Run.
func (b *Bridge) Run(ctx context.Context) error {
	// subscribe before anything starts to not miss local lines
	sub := b.hub.Subscribe()
	defer sub.Close()

	scope, stop := background.NewScope(ctx)
	scope.Go(func(ctx context.Context) {
		b.keep(ctx, "inbound", b.inbound)
	})
	scope.Go(func(ctx context.Context) {
		b.keep(ctx, "outbound", func(ctx context.Context) error { return b.outbound(ctx, sub) })
	})
	<-ctx.Done()
	stop()
	return ctx.Err()
}

// keep - restarts loop after failures with exponential delay until ctx is done.
func (b *Bridge) keep(ctx context.Context, name string, loop func(ctx context.Context) error) {
	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = 100 * time.Millisecond
	delay.MaxInterval = 10 * time.Second
	delay.MaxElapsedTime = 0

	op := func() error {
		if err := loop(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("redis "+name+" failed", "err", err, "retry_in", wait)
	}
	backoff.RetryNotify(op, backoff.WithContext(delay, ctx), notify)
}

// outbound - PUBLISHes local lines to Redis.
func (b *Bridge) outbound(ctx context.Context, sub *hub.Subscription) error {
	conn := b.pool.Get()
	defer conn.Close()
	for {
		m, err := sub.Recv(ctx)
		lag := &hub.LagError{}
		switch {
		case errors.As(err, &lag):
			b.logger.Warn("bridge lagged behind", "missed", lag.Missed)
			continue
		case err != nil:
			return err
		}
		if m.Origin == b.origin {
			continue
		}
		if _, err := conn.Do("PUBLISH", b.channel, encode(b.node, m.Line)); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
}

// inbound - publishes lines of other nodes to the local hub.
func (b *Bridge) inbound(ctx context.Context) error {
	psc := redis.PubSubConn{Conn: b.pool.Get()}
	defer psc.Close()
	if err := psc.Subscribe(b.channel); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	done, stopped := make(chan struct{}), make(chan struct{})
	defer func() {
		close(done)
		<-stopped
	}()
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			// Receive returns the last unsubscribe reply then
			psc.Unsubscribe()
		case <-done:
		}
	}()

	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			node, l, err := decode(v.Data)
			if err != nil {
				b.logger.Warn("dropped redis payload", "err", err)
				continue
			}
			if node == b.node {
				continue
			}
			b.logger.Debug("line from redis", "from", node, "line", l)
			b.hub.Publish(hub.Message{Origin: b.origin, Line: l})
		case redis.Subscription:
			b.logger.Debug("redis subscription", "kind", v.Kind, "count", v.Count)
			if v.Kind == "unsubscribe" && v.Count == 0 {
				return nil
			}
		case error:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", v)
		}
	}
}

// encode - payload is node identity and the line separated by '|'.
func encode(node, l string) []byte {
	return []byte(node + "|" + l)
}

func decode(payload []byte) (node, l string, err error) {
	i := bytes.IndexByte(payload, '|')
	if i <= 0 {
		return "", "", fmt.Errorf("%w: no node identity", ErrBadEnvelope)
	}
	node, l = string(payload[:i]), string(payload[i+1:])
	if !strings.HasSuffix(l, "\n") || strings.Count(l, "\n") != 1 {
		return "", "", fmt.Errorf("%w: not a single line", ErrBadEnvelope)
	}
	if !utf8.ValidString(l) {
		return "", "", fmt.Errorf("%w: invalid UTF-8", ErrBadEnvelope)
	}
	return node, l, nil
}
