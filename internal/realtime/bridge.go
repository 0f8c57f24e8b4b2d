package realtime

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "shopfloor:realtime:"
	seenCapacity  = 4096
)

func channelName(orgID string, table Table) string {
	return channelPrefix + orgID + ":" + string(table)
}

// RedisBridge relays events between instances. Every instance publishes its own
// commits to Redis and re-delivers events from other instances to its local hub.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger
	seen   *seenSet

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBridge(client *redis.Client, hub *Hub, log *zap.Logger) *RedisBridge {
	if client == nil || hub == nil {
		return nil
	}
	return &RedisBridge{
		client: client,
		hub:    hub,
		log:    log.Named("realtime.bridge"),
		seen:   newSeenSet(seenCapacity),
	}
}

// Start subscribes to every realtime channel and relays messages until Stop.
func (b *RedisBridge) Start(ctx context.Context) error {
	if b == nil {
		return nil
	}
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go b.run(runCtx, pubsub, done)
	b.log.Info("realtime bridge subscribed", zap.String("pattern", channelPrefix+"*"))
	return nil
}

func (b *RedisBridge) Stop(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends an event to the other instances.
func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	if b == nil {
		return nil
	}
	b.seen.add(event.ID)
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelName(event.OrgID, event.Table), payload).Err()
}

func (b *RedisBridge) run(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.deliver([]byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) deliver(payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		b.log.Warn("dropping malformed realtime message", zap.Error(err))
		return
	}
	if !b.seen.add(event.ID) {
		return
	}
	b.hub.Publish(event)
}

// seenSet remembers the most recent event ids.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// add returns false when id was already recorded.
func (s *seenSet) add(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if evicted := s.order[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}
	s.order[s.next] = id
	s.next = (s.next + 1) % len(s.order)
	s.ids[id] = struct{}{}
	return true
}
