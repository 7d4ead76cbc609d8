package client_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/relay/client"
	"github.com/wtask/relay/internal/relay/hub"
)

// syncBuffer - bytes.Buffer safe for concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startRelay(test *testing.T) (*relay.Server, *hub.Hub, string) {
	test.Helper()
	h, err := hub.New()
	require.NoError(test, err)
	s, err := relay.NewServer(h)
	require.NoError(test, err)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	go s.Serve(listener)
	test.Cleanup(func() { s.Shutdown(time.Second) })
	return s, h, listener.Addr().String()
}

func TestRun_SendReceiveQuit(test *testing.T) {
	s, h, addr := startRelay(test)
	conn, err := client.Dial(context.Background(), addr, client.DialConfig{})
	require.NoError(test, err)
	defer conn.Close()
	require.Eventually(test, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)

	in, input := io.Pipe()
	out := &syncBuffer{}
	result := make(chan error, 1)
	go func() { result <- client.Run(context.Background(), conn, in, out) }()

	_, err = io.WriteString(input, "hello relay\n")
	require.NoError(test, err)
	require.Eventually(test, func() bool { return out.String() == "hello relay\n" }, time.Second, time.Millisecond)

	_, err = io.WriteString(input, "  quit \n")
	require.NoError(test, err)
	select {
	case err := <-result:
		require.NoError(test, err)
	case <-time.After(time.Second):
		test.Fatal("client did not stop on quit")
	}
	require.Eventually(test, func() bool { return s.Connections() == 0 }, time.Second, time.Millisecond)
}

func TestRun_EndOfInput(test *testing.T) {
	s, h, addr := startRelay(test)
	conn, err := client.Dial(context.Background(), addr, client.DialConfig{})
	require.NoError(test, err)
	defer conn.Close()
	require.Eventually(test, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)

	require.NoError(test, client.Run(context.Background(), conn, strings.NewReader("one\ntwo\n"), io.Discard))
	require.Eventually(test, func() bool { return s.Connections() == 0 }, time.Second, time.Millisecond)
}

func TestRun_ServerClosed(test *testing.T) {
	s, h, addr := startRelay(test)
	conn, err := client.Dial(context.Background(), addr, client.DialConfig{})
	require.NoError(test, err)
	defer conn.Close()
	require.Eventually(test, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)

	in, _ := io.Pipe()
	result := make(chan error, 1)
	go func() { result <- client.Run(context.Background(), conn, in, io.Discard) }()

	s.Shutdown(time.Second)
	select {
	case err := <-result:
		require.ErrorIs(test, err, client.ErrConnectionClosed)
	case <-time.After(time.Second):
		test.Fatal("client did not notice closed connection")
	}
}

func TestDial_Retry(test *testing.T) {
	reserved, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	addr := reserved.Addr().String()
	require.NoError(test, reserved.Close())

	_, err = client.Dial(context.Background(), addr, client.DialConfig{RetryInterval: time.Millisecond})
	require.Error(test, err, "nothing listens and no retries are allowed")

	retries := 0
	listening := make(chan net.Listener, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			close(listening)
			return
		}
		listening <- l
	}()
	conn, err := client.Dial(context.Background(), addr, client.DialConfig{
		MaxRetries:    100,
		RetryInterval: 5 * time.Millisecond,
		OnRetry:       func(error, time.Duration) { retries++ },
	})
	l, ok := <-listening
	if !ok {
		test.Skip("port was taken by another process")
	}
	defer l.Close()
	require.NoError(test, err)
	conn.Close()
	require.Greater(test, retries, 0)
}
