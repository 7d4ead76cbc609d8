// Package background groups goroutines under one cancellable context.
package background

import (
	"context"
	"sync"
)

// Scope - abstract concurrency scope
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // guards wg.Add against cancellation
	wg     sync.WaitGroup
}

// NewScope - concurrency scope builder. Returned cancel func stops the scope
// and waits until every member is done.
func NewScope(parent context.Context) (scope *Scope, cancel func()) {
	ctx, cancelFunc := context.WithCancel(parent)
	s := &Scope{
		ctx:    ctx,
		cancel: cancelFunc,
	}
	return s,
		func() {
			s.mu.Lock()
			s.cancel()
			s.mu.Unlock()
			s.wg.Wait()
		}
}

// Context - return scope context, it is done after cancel.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go - runs f as new member of the scope.
// Returns false without running f when the scope is already cancelled.
func (s *Scope) Go(f func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		f(s.ctx)
	}()
	return true
}
