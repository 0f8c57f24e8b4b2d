package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/shopfloor/internal/clock"
	"github.com/smallbiznis/shopfloor/internal/config"
	"github.com/smallbiznis/shopfloor/internal/migration"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	orderrepository "github.com/smallbiznis/shopfloor/internal/order/repository"
	"github.com/smallbiznis/shopfloor/internal/realtime"
	statusdomain "github.com/smallbiznis/shopfloor/internal/statussync/domain"
	"github.com/smallbiznis/shopfloor/internal/statussync/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errTransition = errors.New("connection reset")

// flakyOrderRepo fails TransitionStatus a fixed number of times.
type flakyOrderRepo struct {
	orderdomain.Repository
	failures int
	calls    int
}

func (r *flakyOrderRepo) TransitionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from *orderdomain.Status, to orderdomain.Status, now time.Time) (bool, error) {
	r.calls++
	if r.calls <= r.failures {
		return false, errTransition
	}
	return r.Repository.TransitionStatus(ctx, db, orgID, id, from, to, now)
}

type fixture struct {
	svc    statusdomain.Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	orders *flakyOrderRepo
	hub    *realtime.Hub
}

func TestEnqueueThenApplyTransitionsOrder(t *testing.T) {
	f := setupStatusSync(t, 0)
	orgID := f.node.Generate()
	orderID := seedOrder(t, f, orgID, orderdomain.StatusPending)
	sub, _, err := f.hub.Subscribe(orgID.String(), realtime.TableOrders)
	require.NoError(t, err)
	defer sub.Close()

	from := orderdomain.StatusPending
	update, err := f.svc.Enqueue(context.Background(), f.db, statusdomain.EnqueueRequest{
		OrgID:     orgID,
		OrderID:   orderID,
		TimeLogID: f.node.Generate(),
		From:      &from,
		To:        orderdomain.StatusInProgress,
		Reason:    statusdomain.ReasonTimerStart,
		Metadata:  map[string]any{"worker_id": "7"},
	})
	require.NoError(t, err)

	outcome, err := f.svc.Apply(context.Background(), update.ID)
	require.NoError(t, err)
	assert.Equal(t, statusdomain.OutcomeApplied, outcome)
	assert.Equal(t, orderdomain.StatusInProgress, orderStatus(t, f, orgID, orderID))

	stored, err := repository.Provide().FindByID(context.Background(), f.db, update.ID)
	require.NoError(t, err)
	assert.Equal(t, statusdomain.StateApplied, stored.State)
	assert.Equal(t, "7", stored.Metadata["worker_id"])

	select {
	case event := <-sub.Events():
		assert.Equal(t, realtime.KindUpdate, event.Kind)
		assert.Equal(t, orderID.String(), event.RecordID)
		assert.Equal(t, int64(2), event.Version)
	case <-time.After(time.Second):
		t.Fatal("expected order event")
	}

	outcome, err = f.svc.Apply(context.Background(), update.ID)
	require.NoError(t, err)
	assert.Equal(t, statusdomain.OutcomeApplied, outcome)
	assert.Equal(t, 1, f.orders.calls)
}

func TestApplyGuardMismatchIsSkipped(t *testing.T) {
	f := setupStatusSync(t, 0)
	orgID := f.node.Generate()
	orderID := seedOrder(t, f, orgID, orderdomain.StatusDelayed)

	from := orderdomain.StatusPending
	update, err := f.svc.Enqueue(context.Background(), f.db, statusdomain.EnqueueRequest{
		OrgID: orgID, OrderID: orderID, TimeLogID: f.node.Generate(),
		From: &from, To: orderdomain.StatusInProgress, Reason: statusdomain.ReasonTimerStart,
	})
	require.NoError(t, err)

	outcome, err := f.svc.Apply(context.Background(), update.ID)
	require.NoError(t, err)
	assert.Equal(t, statusdomain.OutcomeSkipped, outcome)
	assert.Equal(t, orderdomain.StatusDelayed, orderStatus(t, f, orgID, orderID))

	pending, err := f.svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestApplyFailureSchedulesRetryWithBackoff(t *testing.T) {
	f := setupStatusSync(t, 1)
	orgID := f.node.Generate()
	orderID := seedOrder(t, f, orgID, orderdomain.StatusInProgress)

	update, err := f.svc.Enqueue(context.Background(), f.db, statusdomain.EnqueueRequest{
		OrgID: orgID, OrderID: orderID, TimeLogID: f.node.Generate(),
		To: orderdomain.StatusCompleted, Reason: statusdomain.ReasonTimerStop,
	})
	require.NoError(t, err)

	outcome, err := f.svc.Apply(context.Background(), update.ID)
	assert.ErrorIs(t, err, errTransition)
	assert.Equal(t, statusdomain.OutcomeRetrying, outcome)

	stored, err := repository.Provide().FindByID(context.Background(), f.db, update.ID)
	require.NoError(t, err)
	assert.Equal(t, statusdomain.StatePending, stored.State)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "connection reset")

	// Not due until the base backoff elapses.
	result, err := f.svc.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	f.clock.Advance(time.Second)
	result, err = f.svc.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, orderdomain.StatusCompleted, orderStatus(t, f, orgID, orderID))
}

func TestApplyMarksFailedAfterMaxAttempts(t *testing.T) {
	f := setupStatusSync(t, 10)
	orgID := f.node.Generate()
	orderID := seedOrder(t, f, orgID, orderdomain.StatusInProgress)

	update, err := f.svc.Enqueue(context.Background(), f.db, statusdomain.EnqueueRequest{
		OrgID: orgID, OrderID: orderID, TimeLogID: f.node.Generate(),
		To: orderdomain.StatusCompleted, Reason: statusdomain.ReasonTimerStop,
	})
	require.NoError(t, err)

	var outcomes []statusdomain.Outcome
	for i := 0; i < 3; i++ {
		outcome, _ := f.svc.Apply(context.Background(), update.ID)
		outcomes = append(outcomes, outcome)
		f.clock.Advance(time.Minute)
	}
	assert.Equal(t, []statusdomain.Outcome{
		statusdomain.OutcomeRetrying,
		statusdomain.OutcomeRetrying,
		statusdomain.OutcomeFailed,
	}, outcomes)

	stored, err := repository.Provide().FindByID(context.Background(), f.db, update.ID)
	require.NoError(t, err)
	assert.Equal(t, statusdomain.StateFailed, stored.State)
	assert.Equal(t, orderdomain.StatusInProgress, orderStatus(t, f, orgID, orderID))

	result, err := f.svc.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestEnqueueValidation(t *testing.T) {
	f := setupStatusSync(t, 0)

	_, err := f.svc.Enqueue(context.Background(), f.db, statusdomain.EnqueueRequest{To: orderdomain.StatusCompleted})
	assert.ErrorIs(t, err, statusdomain.ErrInvalidRequest)

	_, err = f.svc.Enqueue(context.Background(), f.db, statusdomain.EnqueueRequest{
		OrgID: 1, OrderID: 2, TimeLogID: 3, To: orderdomain.Status("shipped"),
	})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidStatus)

	_, err = f.svc.Apply(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, statusdomain.ErrNotFound)
}

func setupStatusSync(t *testing.T, failures int) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplySQLiteSchema(db); err != nil {
		t.Fatalf("schema: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	cfg := config.DefaultWorkflowConfig()
	cfg.StatusSync.BaseBackoff = time.Second
	cfg.StatusSync.MaxBackoff = 30 * time.Second
	cfg.StatusSync.MaxAttempts = 3

	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	orders := &flakyOrderRepo{Repository: orderrepository.Provide(), failures: failures}
	hub := realtime.NewHub(10, 4)

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(),
		OrderRepo: orders,
		Clock:     fake,
		Config:    config.NewStaticWorkflowConfigHolder(cfg),
		Publisher: realtime.NewPublisher(hub, nil, zap.NewNop(), fake),
	})
	return &fixture{svc: svc, db: db, node: node, clock: fake, orders: orders, hub: hub}
}

func seedOrder(t *testing.T, f *fixture, orgID snowflake.ID, status orderdomain.Status) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	if err := f.db.Exec(
		`INSERT INTO orders (id, org_id, code, status, quantity, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		id, orgID, "WO-"+id.String(), string(status), decimal.NewFromInt(10), now, now,
	).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

func orderStatus(t *testing.T, f *fixture, orgID, id snowflake.ID) orderdomain.Status {
	t.Helper()
	order, err := orderrepository.Provide().FindByID(context.Background(), f.db, orgID, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order.Status
}
