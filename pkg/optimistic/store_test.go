package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Qty int
}

func addQty(n int) MutateFunc[row] {
	return func(r row) row {
		r.Qty += n
		return r
	}
}

func failWrite(err error) WriteFunc[row] {
	return func(context.Context, row) (Versioned[row], error) {
		return Versioned[row]{}, err
	}
}

func confirmWrite(version int64) WriteFunc[row] {
	return func(_ context.Context, next row) (Versioned[row], error) {
		return Versioned[row]{Value: next, Version: version}, nil
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestApplyRollbackOnFailure(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	store := NewStore[string, row](WithErrorHandler[string, row](func(id string, err error) {
		mu.Lock()
		failed = append(failed, id)
		mu.Unlock()
	}))
	store.ApplyRemote("item-1", row{Qty: 10}, 1)

	boom := errors.New("write rejected")
	m := store.Apply(context.Background(), "item-1", addQty(-3), failWrite(boom))
	require.ErrorIs(t, m.Wait(waitCtx(t)), boom)

	got, ok := store.Get("item-1")
	require.True(t, ok)
	assert.Equal(t, 10, got.Qty)
	assert.False(t, store.Pending("item-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"item-1"}, failed)
}

func TestApplySuccessKeepsMutatedValue(t *testing.T) {
	resynced := make(chan string, 1)
	store := NewStore[string, row](WithResync[string, row](func(_ context.Context, id string) {
		resynced <- id
	}))
	store.ApplyRemote("item-1", row{Qty: 10}, 1)

	m := store.Apply(context.Background(), "item-1", addQty(-3), confirmWrite(2))
	require.NoError(t, m.Wait(waitCtx(t)))

	got, ok := store.Get("item-1")
	require.True(t, ok)
	assert.Equal(t, 7, got.Qty)
	assert.Equal(t, int64(2), store.Version("item-1"))
	assert.False(t, store.Pending("item-1"))
	assert.Equal(t, "item-1", <-resynced)
}

func TestApplyExposesValueWhileInFlight(t *testing.T) {
	store := NewStore[string, row]()
	store.ApplyRemote("item-1", row{Qty: 10}, 1)

	release := make(chan struct{})
	m := store.Apply(context.Background(), "item-1", addQty(5), func(ctx context.Context, next row) (Versioned[row], error) {
		<-release
		return Versioned[row]{}, nil
	})

	got, _ := store.Get("item-1")
	assert.Equal(t, 15, got.Qty)
	assert.True(t, store.Pending("item-1"))

	close(release)
	require.NoError(t, m.Wait(waitCtx(t)))
	got, _ = store.Get("item-1")
	assert.Equal(t, 15, got.Qty)
	assert.False(t, store.Pending("item-1"))
}

func TestSlowFailureDoesNotRestoreStaleSnapshot(t *testing.T) {
	store := NewStore[string, row]()
	store.ApplyRemote("item-1", row{Qty: 10}, 1)

	release := make(chan struct{})
	slow := store.Apply(context.Background(), "item-1", addQty(-1), func(context.Context, row) (Versioned[row], error) {
		<-release
		return Versioned[row]{}, errors.New("timeout")
	})
	fast := store.Apply(context.Background(), "item-1", addQty(-2), func(context.Context, row) (Versioned[row], error) {
		// The server applied only this mutation.
		return Versioned[row]{Value: row{Qty: 8}, Version: 2}, nil
	})
	require.NoError(t, fast.Wait(waitCtx(t)))

	close(release)
	require.Error(t, slow.Wait(waitCtx(t)))

	got, _ := store.Get("item-1")
	assert.Equal(t, 8, got.Qty)
	assert.Equal(t, int64(2), store.Version("item-1"))
}

func TestRemoteEventsReconcileWithPending(t *testing.T) {
	store := NewStore[string, row]()
	store.ApplyRemote("item-1", row{Qty: 10}, 3)

	assert.False(t, store.ApplyRemote("item-1", row{Qty: 99}, 2), "stale remote version applied")

	release := make(chan struct{})
	m := store.Apply(context.Background(), "item-1", addQty(1), func(context.Context, row) (Versioned[row], error) {
		<-release
		return Versioned[row]{}, errors.New("rejected")
	})

	assert.True(t, store.ApplyRemote("item-1", row{Qty: 20}, 4))
	got, _ := store.Get("item-1")
	assert.Equal(t, 21, got.Qty)

	close(release)
	require.Error(t, m.Wait(waitCtx(t)))
	got, _ = store.Get("item-1")
	assert.Equal(t, 20, got.Qty)
}

func TestRemoveRemoteBlocksOlderUpdates(t *testing.T) {
	store := NewStore[string, row]()
	store.ApplyRemote("item-1", row{Qty: 10}, 1)

	assert.True(t, store.RemoveRemote("item-1", 2))
	_, ok := store.Get("item-1")
	assert.False(t, ok)

	assert.False(t, store.ApplyRemote("item-1", row{Qty: 5}, 2))
	assert.True(t, store.ApplyRemote("item-1", row{Qty: 5}, 3))
	got, ok := store.Get("item-1")
	assert.True(t, ok)
	assert.Equal(t, 5, got.Qty)
}

func TestReplaceDropsMissingIDs(t *testing.T) {
	var changes []string
	store := NewStore[string, row](WithChangeHandler[string, row](func(id string, _ row, ok bool) {
		if !ok {
			changes = append(changes, id)
		}
	}))
	store.ApplyRemote("a", row{Qty: 1}, 1)
	store.ApplyRemote("b", row{Qty: 2}, 1)

	store.Replace(map[string]Versioned[row]{
		"a": {Value: row{Qty: 3}, Version: 2},
	})

	assert.Equal(t, map[string]row{"a": {Qty: 3}}, store.Snapshot())
	assert.Equal(t, []string{"b"}, changes)
}

func TestWaitHonoursContext(t *testing.T) {
	store := NewStore[string, row]()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	m := store.Apply(context.Background(), "x", addQty(1), func(context.Context, row) (Versioned[row], error) {
		<-block
		return Versioned[row]{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.Canceled)
	assert.Equal(t, "x", m.ID())
}

func TestSettledValueFoldsSuccessfulMutations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("final value is base plus the successful deltas", prop.ForAll(
		func(deltas []int, outcomes []bool) bool {
			store := NewStore[string, row]()
			store.ApplyRemote("k", row{Qty: 100}, 1)

			want := 100
			var mutations []*Mutation[string, row]
			for i, d := range deltas {
				ok := i < len(outcomes) && outcomes[i]
				write := failWrite(errors.New("fail"))
				if ok {
					want += d
					write = func(context.Context, row) (Versioned[row], error) { return Versioned[row]{}, nil }
				}
				mutations = append(mutations, store.Apply(context.Background(), "k", addQty(d), write))
			}
			for _, m := range mutations {
				<-m.Done()
			}

			got, _ := store.Get("k")
			return got.Qty == want && !store.Pending("k")
		},
		gen.SliceOf(gen.IntRange(-50, 50)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
