package runner

import (
	"context"
	"sync"
)

// Barrier blocks each of n ranks in Wait until all n have arrived.  It can be
// reused for any number of rounds.
type Barrier struct {
	mu      sync.Mutex
	n       int
	count   int
	release chan struct{}
}

func NewBarrier(n int) *Barrier {
	if n < 1 {
		n = 1
	}
	return &Barrier{n: n, release: make(chan struct{})}
}

// Wait returns when all ranks have called Wait for the current round, or
// with the context error if ctx is done first.  A rank that gives up leaves
// the barrier broken for the others, which must also be cancelled.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	ch := b.release
	b.count++
	if b.count == b.n {
		b.count = 0
		b.release = make(chan struct{})
		b.mu.Unlock()
		close(ch)
		return nil
	}
	b.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
