package hub

import "fmt"

// WithCapacity - overwrites default ring size.
// Capacity is the number of messages a subscriber may lag behind before losing them.
func WithCapacity(capacity int) hubOption {
	return func(h *Hub) error {
		if capacity <= 0 {
			return fmt.Errorf("hub.WithCapacity: invalid capacity (%d)", capacity)
		}
		h.ring = make([]Message, capacity)
		return nil
	}
}
