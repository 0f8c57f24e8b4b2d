package realtime

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/shopfloor/pkg/optimistic"
	"go.uber.org/zap"
)

// Sync feeds change events into an optimistic store keyed by record id, so remote
// changes and local speculative writes reconcile in one place.
type Sync[V any] struct {
	store *optimistic.Store[string, V]
	log   *zap.Logger
}

func NewSync[V any](store *optimistic.Store[string, V], log *zap.Logger) *Sync[V] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sync[V]{store: store, log: log}
}

// Apply reconciles one event. It reports whether the store accepted it.
func (s *Sync[V]) Apply(event Event) (bool, error) {
	switch event.Kind {
	case KindDelete:
		return s.store.RemoveRemote(event.RecordID, event.Version), nil
	case KindInsert, KindUpdate:
		var value V
		if err := json.Unmarshal(event.New, &value); err != nil {
			return false, err
		}
		return s.store.ApplyRemote(event.RecordID, value, event.Version), nil
	default:
		return false, ErrInvalidEvent
	}
}

// Run replays backlog and then drains sub until ctx ends or the subscription closes.
func (s *Sync[V]) Run(ctx context.Context, sub *Subscription, backlog []Event) error {
	for _, event := range backlog {
		s.applyLogged(event)
	}
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.applyLogged(event)
		}
	}
}

func (s *Sync[V]) applyLogged(event Event) {
	if _, err := s.Apply(event); err != nil {
		s.log.Warn("realtime event not applied",
			zap.String("event_id", event.ID),
			zap.String("table", string(event.Table)),
			zap.Error(err),
		)
	}
}
