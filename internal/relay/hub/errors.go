package hub

import (
	"errors"
	"fmt"
)

// ErrSubscriptionClosed - returns from Recv after the subscription was closed.
var ErrSubscriptionClosed = errors.New("hub.Subscription: closed")

// LagError - returns from Recv when the subscriber fell behind the ring
// and Missed messages were dropped for it.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("hub.Subscription: lagged behind, %d message(s) missed", e.Missed)
}
