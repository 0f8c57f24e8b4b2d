// Package optimistic keeps a local, speculative view of server-owned records.
//
// Every id has a confirmed base value with a version and an ordered queue of
// pending local mutations. The exposed value is the base with the pending
// mutations folded on top in submission order. Confirmed writes and remote
// change events both reconcile through the base, and a base only moves forward
// in version, so a slow failing write can never restore a stale snapshot.
package optimistic

import (
	"context"
	"sync"
)

// Versioned is a server-confirmed value.
type Versioned[V any] struct {
	Value   V
	Version int64
}

// MutateFunc derives the speculative value from the current one.
type MutateFunc[V any] func(current V) V

// WriteFunc persists the speculative value. A zero Version in the result means the
// server did not report one; the mutation is then folded into the base as-is.
type WriteFunc[V any] func(ctx context.Context, next V) (Versioned[V], error)

type Option[K comparable, V any] func(*Store[K, V])

// WithErrorHandler is called after a failed write has been rolled back.
func WithErrorHandler[K comparable, V any](fn func(id K, err error)) Option[K, V] {
	return func(s *Store[K, V]) { s.onError = fn }
}

// WithChangeHandler is called whenever the exposed value for an id changes.
// ok is false when the id is no longer present.
func WithChangeHandler[K comparable, V any](fn func(id K, value V, ok bool)) Option[K, V] {
	return func(s *Store[K, V]) { s.onChange = fn }
}

// WithResync is called after a successful write, typically to refetch from the server.
func WithResync[K comparable, V any](fn func(ctx context.Context, id K)) Option[K, V] {
	return func(s *Store[K, V]) { s.resync = fn }
}

type entry[K comparable, V any] struct {
	base    V
	version int64
	present bool
	deleted bool
	pending []*Mutation[K, V]
}

// Store is safe for concurrent use.
type Store[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]

	onError  func(id K, err error)
	onChange func(id K, value V, ok bool)
	resync   func(ctx context.Context, id K)
}

func NewStore[K comparable, V any](opts ...Option[K, V]) *Store[K, V] {
	s := &Store[K, V]{entries: make(map[K]*entry[K, V])}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply mutates the exposed value immediately and runs write in the background.
func (s *Store[K, V]) Apply(ctx context.Context, id K, mutate MutateFunc[V], write WriteFunc[V]) *Mutation[K, V] {
	s.mu.Lock()
	m := &Mutation[K, V]{id: id, mutate: mutate, done: make(chan struct{})}
	e := s.entryLocked(id)
	e.pending = append(e.pending, m)
	next, ok := s.foldLocked(e)
	s.mu.Unlock()

	s.notify(id, next, ok)

	go func() {
		confirmed, err := write(ctx, next)
		s.settle(ctx, m, confirmed, err)
	}()
	return m
}

// ApplyRemote installs a server value. It is ignored unless its version is newer
// than the confirmed base.
func (s *Store[K, V]) ApplyRemote(id K, value V, version int64) bool {
	s.mu.Lock()
	e := s.entryLocked(id)
	if (e.present || e.deleted) && version <= e.version {
		s.mu.Unlock()
		return false
	}
	e.base = value
	e.version = version
	e.present = true
	e.deleted = false
	next, ok := s.foldLocked(e)
	s.mu.Unlock()

	s.notify(id, next, ok)
	return true
}

// RemoveRemote records a server-side delete. Later updates with a version at or
// below the delete version are ignored.
func (s *Store[K, V]) RemoveRemote(id K, version int64) bool {
	s.mu.Lock()
	e, exists := s.entries[id]
	if exists && version < e.version {
		s.mu.Unlock()
		return false
	}
	if !exists {
		e = s.entryLocked(id)
	}
	var zero V
	e.base = zero
	e.version = version
	e.present = false
	e.deleted = true
	s.mu.Unlock()

	s.notify(id, zero, false)
	return true
}

// Replace resynchronizes the store with a full server listing. Ids missing from
// values are dropped unless they still have writes in flight.
func (s *Store[K, V]) Replace(values map[K]Versioned[V]) {
	type change struct {
		id    K
		value V
		ok    bool
	}
	var changes []change

	s.mu.Lock()
	for id, v := range values {
		e := s.entryLocked(id)
		if (e.present || e.deleted) && v.Version < e.version {
			continue
		}
		e.base = v.Value
		e.version = v.Version
		e.present = true
		e.deleted = false
		next, ok := s.foldLocked(e)
		changes = append(changes, change{id: id, value: next, ok: ok})
	}
	for id, e := range s.entries {
		if _, keep := values[id]; keep || len(e.pending) > 0 {
			continue
		}
		delete(s.entries, id)
		var zero V
		changes = append(changes, change{id: id, value: zero, ok: false})
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.notify(c.id, c.value, c.ok)
	}
}

// Get returns the exposed value.
func (s *Store[K, V]) Get(id K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.entries[id]
	if !exists {
		var zero V
		return zero, false
	}
	return s.foldLocked(e)
}

// Version returns the confirmed base version for id.
func (s *Store[K, V]) Version(id K) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.version
	}
	return 0
}

// Pending reports whether id has writes in flight.
func (s *Store[K, V]) Pending(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && len(e.pending) > 0
}

// Snapshot copies every exposed value.
func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[K]V, len(s.entries))
	for id, e := range s.entries {
		if v, ok := s.foldLocked(e); ok {
			out[id] = v
		}
	}
	return out
}

func (s *Store[K, V]) settle(ctx context.Context, m *Mutation[K, V], confirmed Versioned[V], err error) {
	s.mu.Lock()
	e := s.entryLocked(m.id)
	e.pending = removeMutation(e.pending, m)
	if err == nil {
		switch {
		case confirmed.Version == 0:
			if !e.deleted {
				e.base = m.mutate(e.base)
				e.present = true
			}
		case !e.present && !e.deleted, confirmed.Version > e.version:
			e.base = confirmed.Value
			e.version = confirmed.Version
			e.present = true
			e.deleted = false
		}
	}
	next, ok := s.foldLocked(e)
	if !e.present && !e.deleted && len(e.pending) == 0 {
		delete(s.entries, m.id)
	}
	s.mu.Unlock()

	defer m.finish(err)
	s.notify(m.id, next, ok)

	if err != nil {
		if s.onError != nil {
			s.onError(m.id, err)
		}
		return
	}
	if s.resync != nil {
		s.resync(ctx, m.id)
	}
}

func (s *Store[K, V]) entryLocked(id K) *entry[K, V] {
	e, ok := s.entries[id]
	if !ok {
		e = &entry[K, V]{}
		s.entries[id] = e
	}
	return e
}

func (s *Store[K, V]) foldLocked(e *entry[K, V]) (V, bool) {
	if e.deleted {
		var zero V
		return zero, false
	}
	value := e.base
	for _, m := range e.pending {
		value = m.mutate(value)
	}
	return value, e.present || len(e.pending) > 0
}

func (s *Store[K, V]) notify(id K, value V, ok bool) {
	if s.onChange != nil {
		s.onChange(id, value, ok)
	}
}

func removeMutation[K comparable, V any](pending []*Mutation[K, V], m *Mutation[K, V]) []*Mutation[K, V] {
	for i, p := range pending {
		if p == m {
			return append(pending[:i:i], pending[i+1:]...)
		}
	}
	return pending
}
