package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/relay/bridge"
	"github.com/wtask/relay/internal/relay/hub"
	"github.com/wtask/relay/internal/relay/wsgate"
)

func newLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: Config.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, options)
	if Config.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, options)
	}
	return slog.New(handler).With("app", BinaryName, "version", Version)
}

func main() {
	logger := newLogger()
	logger.Info("started with config", "config", Config)

	h, err := hub.New(hub.WithCapacity(Config.Capacity))
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	server, err := relay.NewServer(
		h,
		relay.WithLogger(logger),
		relay.WithReadTimeout(Config.ReadTimeout),
		relay.WithWriteTimeout(Config.WriteTimeout),
		relay.WithMaxLineLength(Config.MaxLineLength),
		relay.WithLagPolicy(Config.LagPolicy),
		relay.WithSelfDelivery(Config.SelfDelivery),
	)
	if err != nil {
		logger.Error("can't start relay server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, 2)
	go func() {
		failed <- server.ListenAndServe(Config.Address)
	}()

	// bridgeDone - closed when the bridge has stopped and its pool is released
	var bridgeDone chan struct{}
	if Config.RedisURL != "" {
		pool := bridge.NewPool(Config.RedisURL)
		b, err := bridge.New(
			pool,
			h,
			bridge.WithChannel(Config.RedisChannel),
			bridge.WithLogger(logger.With("component", "bridge")),
		)
		if err != nil {
			logger.Error("can't start redis bridge", "err", err)
			os.Exit(1)
		}
		bridgeDone = make(chan struct{})
		go func() {
			defer close(bridgeDone)
			b.Run(ctx)
			if err := pool.Close(); err != nil {
				logger.Warn("can't close redis pool", "err", err)
			}
		}()
		logger.Info("redis bridge started", "node", b.Node())
	}

	var gateway *http.Server
	if Config.WSAddress != "" {
		g, err := wsgate.New(
			h,
			wsgate.WithLogger(logger.With("component", "wsgate")),
			wsgate.WithWriteTimeout(Config.WriteTimeout),
			wsgate.WithMaxMessageSize(int64(Config.MaxLineLength)),
			wsgate.WithSelfDelivery(Config.SelfDelivery),
			wsgate.WithCloseOnLag(Config.LagPolicy == relay.LagClose),
		)
		if err != nil {
			logger.Error("can't start websocket gateway", "err", err)
			os.Exit(1)
		}
		gateway = &http.Server{Addr: Config.WSAddress, Handler: g, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := gateway.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				failed <- err
			}
		}()
		logger.Info("websocket gateway started", "addr", Config.WSAddress)
	}

	select {
	case err := <-failed:
		logger.Error("relay server failed", "err", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	logger.Info("got stop signal")
	if gateway != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), Config.ShutdownTimeout)
		gateway.Shutdown(shutdownCtx)
		cancel()
	}
	in := server.Shutdown(Config.ShutdownTimeout)
	if bridgeDone != nil {
		select {
		case <-bridgeDone:
		case <-time.After(Config.ShutdownTimeout):
			logger.Warn("redis bridge did not stop in time")
		}
	}
	logger.Info("relay server stopped", "in", in)
}
