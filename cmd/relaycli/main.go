package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wtask/relay/internal/relay/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, Config.Address, client.DialConfig{
		MaxRetries:    Config.Retries,
		RetryInterval: Config.RetryInterval,
		OnRetry: func(err error, wait time.Duration) {
			fmt.Fprintf(os.Stderr, "Can't connect (%v), retry in %v\n", err, wait.Round(time.Millisecond))
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "Client connected to the server on %s\n", Config.Address)
	fmt.Fprintf(os.Stderr, "Enter text (%q for exit):\n", client.Quit)

	err = client.Run(ctx, conn, os.Stdin, os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, client.ErrConnectionClosed):
		fmt.Fprintln(os.Stderr, "Server has closed the connection.")
	case errors.Is(err, context.Canceled):
	default:
		fmt.Fprintln(os.Stderr, "ERR", err)
		os.Exit(1)
	}
}
