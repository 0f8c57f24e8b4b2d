package optimistic

import (
	"context"
	"sync"
)

// Mutation tracks one speculative change until its write settles.
type Mutation[K comparable, V any] struct {
	id     K
	mutate MutateFunc[V]

	once sync.Once
	done chan struct{}
	err  error
}

func (m *Mutation[K, V]) ID() K { return m.id }

// Done is closed after the store has reconciled the write and its hooks have run.
func (m *Mutation[K, V]) Done() <-chan struct{} { return m.done }

// Wait blocks until the write settles and returns its error.
func (m *Mutation[K, V]) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation[K, V]) finish(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}
