package relay

import "sync"

type registry struct {
	mu   sync.RWMutex
	list map[string]*conn
}

func newRegistry() *registry {
	return &registry{
		list: make(map[string]*conn),
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

func (r *registry) add(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list[c.id] = c
}

func (r *registry) delete(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.list, c.id)
}

// snapshot - copy of currently kept connections.
func (r *registry) snapshot() []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*conn, 0, len(r.list))
	for _, c := range r.list {
		list = append(list, c)
	}
	return list
}
