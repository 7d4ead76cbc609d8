package wsgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtask/relay/internal/relay/hub"
)

func lagged(test *testing.T, options ...gatewayOption) (*Gateway, *hub.Subscription) {
	test.Helper()
	h, err := hub.New(hub.WithCapacity(2))
	require.NoError(test, err)
	g, err := New(h, options...)
	require.NoError(test, err)
	sub := h.Subscribe()
	test.Cleanup(sub.Close)
	for _, l := range []string{"1\n", "2\n", "3\n", "4\n", "5\n"} {
		h.Publish(hub.Message{Origin: "other", Line: l})
	}
	return g, sub
}

func TestGateway_NextSkipsLag(test *testing.T) {
	g, sub := lagged(test)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m, err := g.next(ctx, sub, "me")
	require.NoError(test, err)
	require.Equal(test, "4\n", m.Line)
}

func TestGateway_NextClosesOnLag(test *testing.T) {
	g, sub := lagged(test, WithCloseOnLag(true))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := g.next(ctx, sub, "me")
	lag := &hub.LagError{}
	require.True(test, errors.As(err, &lag), "unexpected error %v", err)
	require.Equal(test, uint64(3), lag.Missed)
}

func TestGateway_NextSelfDelivery(test *testing.T) {
	h, err := hub.New()
	require.NoError(test, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, selfDelivery := range []bool{true, false} {
		g, err := New(h, WithSelfDelivery(selfDelivery))
		require.NoError(test, err)
		sub := h.Subscribe()
		h.Publish(hub.Message{Origin: "me", Line: "mine\n"})
		h.Publish(hub.Message{Origin: "other", Line: "theirs\n"})

		m, err := g.next(ctx, sub, "me")
		require.NoError(test, err)
		if selfDelivery {
			require.Equal(test, "mine\n", m.Line)
		} else {
			require.Equal(test, "theirs\n", m.Line)
		}
		sub.Close()
	}
}
