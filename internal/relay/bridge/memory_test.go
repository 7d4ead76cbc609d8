package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/garyburd/redigo/redis"
)

var errMemoryConnClosed = errors.New("memory redis: connection closed")

// memoryRedis - in-process pub/sub serving PUBLISH, SUBSCRIBE, UNSUBSCRIBE and ECHO.
type memoryRedis struct {
	mu          sync.Mutex
	subscribers map[string]map[*memoryConn]struct{}
	published   []string
	dials       int
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{subscribers: map[string]map[*memoryConn]struct{}{}}
}

func (r *memoryRedis) pool() *redis.Pool {
	return &redis.Pool{
		MaxIdle:   3,
		MaxActive: 10,
		Wait:      true,
		Dial: func() (redis.Conn, error) {
			r.mu.Lock()
			r.dials++
			r.mu.Unlock()
			return &memoryConn{redis: r, replies: make(chan interface{}, 1024), closed: make(chan struct{})}, nil
		},
	}
}

func (r *memoryRedis) subscribed(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[channel])
}

func (r *memoryRedis) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.published...)
}

type memoryConn struct {
	redis    *memoryRedis
	replies  chan interface{}
	closed   chan struct{}
	once     sync.Once
	channels []string // guarded by redis.mu
}

func (c *memoryConn) push(reply interface{}) {
	select {
	case c.replies <- reply:
	case <-c.closed:
	}
}

func (c *memoryConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.redis.mu.Lock()
		defer c.redis.mu.Unlock()
		for _, ch := range c.channels {
			delete(c.redis.subscribers[ch], c)
		}
		c.channels = nil
	})
	return nil
}

func (c *memoryConn) Err() error {
	select {
	case <-c.closed:
		return errMemoryConnClosed
	default:
		return nil
	}
}

func (c *memoryConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	switch cmd {
	case "":
		return nil, nil
	case "PUBLISH":
		channel, payload := fmt.Sprint(args[0]), args[1].([]byte)
		r := c.redis
		r.mu.Lock()
		defer r.mu.Unlock()
		r.published = append(r.published, string(payload))
		for sub := range r.subscribers[channel] {
			sub.push([]interface{}{[]byte("message"), []byte(channel), payload})
		}
		return int64(len(r.subscribers[channel])), nil
	default:
		return nil, fmt.Errorf("memory redis: unsupported command %s", cmd)
	}
}

func (c *memoryConn) Send(cmd string, args ...interface{}) error {
	if err := c.Err(); err != nil {
		return err
	}
	r := c.redis
	r.mu.Lock()
	defer r.mu.Unlock()
	switch cmd {
	case "SUBSCRIBE":
		for _, arg := range args {
			ch := fmt.Sprint(arg)
			if r.subscribers[ch] == nil {
				r.subscribers[ch] = map[*memoryConn]struct{}{}
			}
			r.subscribers[ch][c] = struct{}{}
			c.channels = append(c.channels, ch)
			c.push([]interface{}{[]byte("subscribe"), []byte(ch), int64(len(c.channels))})
		}
	case "UNSUBSCRIBE":
		if len(c.channels) == 0 {
			c.push([]interface{}{[]byte("unsubscribe"), []byte{}, int64(0)})
			return nil
		}
		for len(c.channels) > 0 {
			ch := c.channels[0]
			c.channels = c.channels[1:]
			delete(r.subscribers[ch], c)
			c.push([]interface{}{[]byte("unsubscribe"), []byte(ch), int64(len(c.channels))})
		}
	case "PUNSUBSCRIBE":
		c.push([]interface{}{[]byte("punsubscribe"), []byte{}, int64(0)})
	case "ECHO":
		c.push(args[0])
	default:
		return fmt.Errorf("memory redis: unsupported command %s", cmd)
	}
	return nil
}

func (c *memoryConn) Flush() error {
	return c.Err()
}

func (c *memoryConn) Receive() (interface{}, error) {
	select {
	case reply := <-c.replies:
		return reply, nil
	case <-c.closed:
		return nil, errMemoryConnClosed
	}
}
