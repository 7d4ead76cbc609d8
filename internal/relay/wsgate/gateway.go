// Package wsgate exposes the relay hub to WebSocket clients.
//
// Every text frame is split into lines which are published to the hub,
// every hub message is sent back as one text frame, newline included.
// Self-delivery and lag handling follow the same rules as TCP clients
// when configured with WithSelfDelivery and WithCloseOnLag.
package wsgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wtask/relay/internal/relay/hub"
)

// Gateway - http.Handler serving /ws and /healthz.
type Gateway struct {
	hub          *hub.Hub
	router       *mux.Router
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	writeTimeout time.Duration
	maxMessage   int64
	selfDelivery bool
	closeOnLag   bool
	sockets      atomic.Int64
}

type gatewayOption func(g *Gateway) error

// WithLogger - attach logger, by default the gateway logs nothing.
func WithLogger(logger *slog.Logger) gatewayOption {
	return func(g *Gateway) error {
		if logger == nil {
			return errors.New("wsgate.WithLogger: logger is nil")
		}
		g.logger = logger
		return nil
	}
}

// WithWriteTimeout - overwrites default timeout of a single frame write.
func WithWriteTimeout(timeout time.Duration) gatewayOption {
	return func(g *Gateway) error {
		if timeout <= 0 {
			return fmt.Errorf("wsgate.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		g.writeTimeout = timeout
		return nil
	}
}

// WithMaxMessageSize - overwrites default limit of incoming frame in bytes.
func WithMaxMessageSize(size int64) gatewayOption {
	return func(g *Gateway) error {
		if size <= 0 {
			return fmt.Errorf("wsgate.WithMaxMessageSize: invalid size (%d)", size)
		}
		g.maxMessage = size
		return nil
	}
}

// WithCheckOrigin - overwrites origin check of upgrade requests, by default the origin must match the host.
func WithCheckOrigin(check func(r *http.Request) bool) gatewayOption {
	return func(g *Gateway) error {
		g.upgrader.CheckOrigin = check
		return nil
	}
}

// WithSelfDelivery - whether clients receive their own lines, enabled by default.
func WithSelfDelivery(enabled bool) gatewayOption {
	return func(g *Gateway) error {
		g.selfDelivery = enabled
		return nil
	}
}

// WithCloseOnLag - close lagged clients instead of skipping missed lines.
func WithCloseOnLag(enabled bool) gatewayOption {
	return func(g *Gateway) error {
		g.closeOnLag = enabled
		return nil
	}
}

// New - builds Gateway over the hub.
func New(h *hub.Hub, options ...gatewayOption) (*Gateway, error) {
	if h == nil {
		return nil, errors.New("wsgate.New: hub is nil")
	}
	g := &Gateway{
		hub:          h,
		router:       mux.NewRouter(),
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		writeTimeout: 10 * time.Second,
		maxMessage:   64 * 1024,
		selfDelivery: true,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(g); err != nil {
			return nil, err
		}
	}
	g.router.HandleFunc("/ws", g.serveWS).Methods(http.MethodGet)
	g.router.HandleFunc("/healthz", g.serveHealth).Methods(http.MethodGet)
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// Health - body of /healthz response.
type Health struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Capacity    int    `json:"capacity"`
	WebSockets  int64  `json:"websockets"`
}

func (g *Gateway) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Health{
		Subscribers: g.hub.Subscribers(),
		Published:   g.hub.Published(),
		Capacity:    g.hub.Capacity(),
		WebSockets:  g.sockets.Load(),
	})
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has replied already
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	id := uuid.NewString()
	logger := g.logger.With("client", id, "remote", r.RemoteAddr)
	g.sockets.Add(1)
	defer g.sockets.Add(-1)
	sub := g.hub.Subscribe()
	defer sub.Close()
	logger.Info("websocket connected")

	ws.SetReadLimit(g.maxMessage)
	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := g.writePump(ctx, ws, sub, id)
		cancel()
		ws.Close()
		logger.Debug("writer stopped", "err", err)
	}()

	err = g.readPump(ws, id)
	cancel()
	ws.Close()
	<-done
	logger.Info("websocket disconnected", "err", err)
}

// readPump - publishes lines of incoming text frames until the socket fails.
func (g *Gateway) readPump(ws *websocket.Conn, id string) error {
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage || !utf8.Valid(data) {
			g.closeWith(ws, websocket.CloseUnsupportedData, "expected UTF-8 text")
			return errors.New("wsgate: unsupported frame")
		}
		for _, l := range strings.SplitAfter(string(data), "\n") {
			if l == "" {
				continue
			}
			if !strings.HasSuffix(l, "\n") {
				l += "\n"
			}
			g.hub.Publish(hub.Message{Origin: id, Line: l})
		}
	}
}

// writePump - sends hub messages as text frames until the socket fails or the client lags with closeOnLag.
func (g *Gateway) writePump(ctx context.Context, ws *websocket.Conn, sub *hub.Subscription, id string) error {
	for {
		m, err := g.next(ctx, sub, id)
		lag := &hub.LagError{}
		if errors.As(err, &lag) {
			g.closeWith(ws, websocket.ClosePolicyViolation, "lagged behind")
			return err
		}
		if err != nil {
			return err
		}
		ws.SetWriteDeadline(time.Now().Add(g.writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(m.Line)); err != nil {
			return err
		}
	}
}

// next - returns next message for the client, skipping its own lines unless selfDelivery is set.
// Lag is returned only with closeOnLag, otherwise missed lines are skipped.
func (g *Gateway) next(ctx context.Context, sub *hub.Subscription, id string) (hub.Message, error) {
	for {
		m, err := sub.Recv(ctx)
		lag := &hub.LagError{}
		switch {
		case errors.As(err, &lag):
			g.logger.Warn("websocket lagged behind", "client", id, "missed", lag.Missed)
			if g.closeOnLag {
				return hub.Message{}, err
			}
			continue
		case err != nil:
			return hub.Message{}, err
		}
		if !g.selfDelivery && m.Origin == id {
			continue
		}
		return m, nil
	}
}

func (g *Gateway) closeWith(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
