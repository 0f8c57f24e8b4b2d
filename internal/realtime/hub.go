package realtime

import (
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

type streamKey struct {
	orgID string
	table Table
}

// Hub fans committed changes out to subscribers of one (tenant, table) stream.
// Slow subscribers drop events and are expected to resynchronize from the store.
type Hub struct {
	mu               sync.RWMutex
	streams          map[streamKey]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub  *Hub
	key  streamKey
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub(bufferSize, subscriberBuffer int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Hub{
		streams:          make(map[streamKey]*stream),
		bufferSize:       bufferSize,
		subscriberBuffer: subscriberBuffer,
	}
}

// Publish appends the event to the stream backlog and offers it to every subscriber.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.validate() != nil {
		return
	}

	stream := h.ensureStream(streamKey{orgID: event.OrgID, table: event.Table})
	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a live subscription plus a copy of the recent backlog.
func (h *Hub) Subscribe(orgID string, table Table) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	if orgID == "" {
		return nil, nil, ErrInvalidOrg
	}
	if _, err := ParseTable(string(table)); err != nil {
		return nil, nil, err
	}

	key := streamKey{orgID: orgID, table: table}
	stream := h.ensureStream(key)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]Event(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{hub: h, key: key, id: id, ch: ch}, buffer, nil
}

// Subscribers reports the live subscriber count for a stream.
func (h *Hub) Subscribers(orgID string, table Table) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	stream := h.streams[streamKey{orgID: orgID, table: table}]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return len(stream.subs)
}

func (h *Hub) ensureStream(key streamKey) *stream {
	h.mu.RLock()
	current := h.streams[key]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[key]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[key] = current
	}
	return current
}

func (h *Hub) unsubscribe(key streamKey, id uint64) {
	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	stream.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.key, s.id)
	})
}
