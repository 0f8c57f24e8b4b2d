package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/shopfloor/pkg/optimistic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stockRow struct {
	Quantity string `json:"quantity"`
}

func stockEvent(t *testing.T, id string, kind Kind, version int64, qty string) Event {
	t.Helper()
	event := Event{ID: id, OrgID: "1", Table: TableInventoryItems, Kind: kind, RecordID: "10", Version: version}
	if kind != KindDelete {
		raw, err := json.Marshal(stockRow{Quantity: qty})
		require.NoError(t, err)
		event.New = raw
	}
	return event
}

func TestSyncAppliesNewerVersionsOnly(t *testing.T) {
	store := optimistic.NewStore[string, stockRow]()
	syncer := NewSync(store, nil)

	ok, err := syncer.Apply(stockEvent(t, "a", KindInsert, 2, "10"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = syncer.Apply(stockEvent(t, "b", KindUpdate, 1, "99"))
	require.NoError(t, err)
	assert.False(t, ok)

	value, found := store.Get("10")
	require.True(t, found)
	assert.Equal(t, "10", value.Quantity)

	ok, err = syncer.Apply(stockEvent(t, "c", KindDelete, 3, ""))
	require.NoError(t, err)
	assert.True(t, ok)
	_, found = store.Get("10")
	assert.False(t, found)
}

func TestSyncRejectsBadPayload(t *testing.T) {
	syncer := NewSync(optimistic.NewStore[string, stockRow](), nil)
	event := stockEvent(t, "a", KindUpdate, 1, "1")
	event.New = json.RawMessage(`"oops"`)

	_, err := syncer.Apply(event)
	assert.Error(t, err)

	event.Kind = Kind("truncate")
	_, err = syncer.Apply(event)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestSyncRunDrainsBacklogAndLiveEvents(t *testing.T) {
	hub := NewHub(10, 4)
	hub.Publish(stockEvent(t, "a", KindInsert, 1, "5"))

	sub, backlog, err := hub.Subscribe("1", TableInventoryItems)
	require.NoError(t, err)

	store := optimistic.NewStore[string, stockRow]()
	syncer := NewSync(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- syncer.Run(ctx, sub, backlog) }()

	hub.Publish(stockEvent(t, "b", KindUpdate, 2, "4"))

	require.Eventually(t, func() bool {
		value, ok := store.Get("10")
		return ok && value.Quantity == "4"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sync did not stop")
	}
	sub.Close()
}
