// Package hub implements the broadcast primitive of the relay.
//
// A Hub keeps the last Capacity published messages in a ring buffer. Every
// message gets a sequence number, so all subscribers observe one total order.
// Publish only stores the message and wakes waiting subscribers, it never
// waits for them. A subscriber that falls more than Capacity messages behind
// loses the oldest ones and is told so with a LagError.
//
// Publish costs O(1). Fan-out costs O(subscribers) per message and is paid by
// the subscribers' goroutines, each of them copying the message out of the ring.
package hub

import (
	"context"
	"sync"
)

// DefaultCapacity - number of messages a subscriber may lag behind before it loses them.
const DefaultCapacity = 16

// Message - one line of text with its publisher identity.
// Line keeps the trailing newline. Messages are never modified after Publish.
type Message struct {
	Origin string
	Line   string
}

// Hub - process-wide fan-out of messages to subscribers.
type Hub struct {
	mu          sync.Mutex
	ring        []Message
	next        uint64 // sequence number of the next published message
	wake        chan struct{}
	subscribers int
}

type hubOption func(h *Hub) error

// New - builds Hub with needed options.
func New(options ...hubOption) (*Hub, error) {
	h := &Hub{
		ring: make([]Message, DefaultCapacity),
		wake: make(chan struct{}),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Publish - appends message to the ring, overwriting the oldest one when the ring is full,
// and wakes every waiting subscriber.
func (h *Hub) Publish(m Message) {
	h.mu.Lock()
	h.ring[h.next%uint64(len(h.ring))] = m
	h.next++
	close(h.wake)
	h.wake = make(chan struct{})
	h.mu.Unlock()
}

// Subscribe - registers new subscriber. It only observes messages published after this call.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers++
	return &Subscription{hub: h, cursor: h.next}
}

// Subscribers - returns number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers
}

// Published - returns total number of messages published since the Hub was built.
func (h *Hub) Published() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

// Capacity - returns the ring size.
func (h *Hub) Capacity() int {
	return len(h.ring)
}

// oldest - sequence number of the oldest message still kept in the ring.
// Must be called with mu held.
func (h *Hub) oldest() uint64 {
	size := uint64(len(h.ring))
	if h.next < size {
		return 0
	}
	return h.next - size
}

// Subscription - cursor into the hub's message stream.
// Recv must be called from a single goroutine; Close is safe from any goroutine.
type Subscription struct {
	hub    *Hub
	cursor uint64
	closed bool
}

// Recv - waits for the next message.
//
// When the subscriber fell behind the ring, Recv returns *LagError once and moves
// the cursor to the oldest kept message, so the next call resumes from there.
func (s *Subscription) Recv(ctx context.Context) (Message, error) {
	h := s.hub
	for {
		h.mu.Lock()
		if s.closed {
			h.mu.Unlock()
			return Message{}, ErrSubscriptionClosed
		}
		if s.cursor < h.next {
			if oldest := h.oldest(); s.cursor < oldest {
				missed := oldest - s.cursor
				s.cursor = oldest
				h.mu.Unlock()
				return Message{}, &LagError{Missed: missed}
			}
			m := h.ring[s.cursor%uint64(len(h.ring))]
			s.cursor++
			h.mu.Unlock()
			return m, nil
		}
		wake := h.wake
		h.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close - unregisters subscription. Pending Recv calls are not interrupted,
// cancel their context for that.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	h.subscribers--
}
