package realtime

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/shopfloor/internal/clock"
	"go.uber.org/zap"
)

// Publisher emits change events after a transaction commits. A nil Publisher is a no-op.
type Publisher struct {
	hub    *Hub
	bridge *RedisBridge
	log    *zap.Logger
	clock  clock.Clock
}

func NewPublisher(hub *Hub, bridge *RedisBridge, log *zap.Logger, c clock.Clock) *Publisher {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Publisher{
		hub:    hub,
		bridge: bridge,
		log:    log.Named("realtime.publisher"),
		clock:  c,
	}
}

func (p *Publisher) Inserted(ctx context.Context, orgID snowflake.ID, table Table, recordID snowflake.ID, version int64, row any) {
	p.emit(ctx, orgID, table, KindInsert, recordID, version, row, nil)
}

func (p *Publisher) Updated(ctx context.Context, orgID snowflake.ID, table Table, recordID snowflake.ID, version int64, row, old any) {
	p.emit(ctx, orgID, table, KindUpdate, recordID, version, row, old)
}

func (p *Publisher) Deleted(ctx context.Context, orgID snowflake.ID, table Table, recordID snowflake.ID, version int64, old any) {
	p.emit(ctx, orgID, table, KindDelete, recordID, version, nil, old)
}

// Publish delivers a prepared event locally and to other instances.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.CommittedAt.IsZero() {
		event.CommittedAt = p.clock.Now()
	}

	p.hub.Publish(event)
	if err := p.bridge.Publish(ctx, event); err != nil {
		p.log.Warn("realtime bridge publish failed",
			zap.String("table", string(event.Table)),
			zap.String("record_id", event.RecordID),
			zap.Error(err),
		)
	}
}

func (p *Publisher) emit(ctx context.Context, orgID snowflake.ID, table Table, kind Kind, recordID snowflake.ID, version int64, row, old any) {
	if p == nil {
		return
	}
	event := Event{
		OrgID:    orgID.String(),
		Table:    table,
		Kind:     kind,
		RecordID: recordID.String(),
		Version:  version,
	}
	var err error
	if event.New, err = marshalRow(row); err != nil {
		p.log.Warn("encode realtime row", zap.String("table", string(table)), zap.Error(err))
		return
	}
	if event.Old, err = marshalRow(old); err != nil {
		p.log.Warn("encode realtime row", zap.String("table", string(table)), zap.Error(err))
		return
	}
	p.Publish(ctx, event)
}

func marshalRow(row any) (json.RawMessage, error) {
	if row == nil {
		return nil, nil
	}
	return json.Marshal(row)
}
