package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/shopfloor/internal/clock"
	"github.com/smallbiznis/shopfloor/internal/migration"
	"github.com/smallbiznis/shopfloor/internal/ratelimit"
	statusdomain "github.com/smallbiznis/shopfloor/internal/statussync/domain"
	timelogrepository "github.com/smallbiznis/shopfloor/internal/timelog/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubStatusSync replays a fixed sequence of batch results.
type stubStatusSync struct {
	statusdomain.Service
	results []statusdomain.ProcessResult
	err     error
	limits  []int
}

func (s *stubStatusSync) ProcessDue(ctx context.Context, limit int) (statusdomain.ProcessResult, error) {
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return statusdomain.ProcessResult{}, s.err
	}
	if len(s.results) == 0 {
		return statusdomain.ProcessResult{}, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

type fixture struct {
	sched *Scheduler
	db    *gorm.DB
	clock *clock.FakeClock
	sync  *stubStatusSync
}

func TestOrderStatusReconcileDrainsFullBatches(t *testing.T) {
	stub := &stubStatusSync{results: []statusdomain.ProcessResult{
		{Processed: 2, Applied: 2},
		{Processed: 2, Applied: 1, Retrying: 1},
		{Processed: 1, Failed: 1},
	}}
	f := setupScheduler(t, stub, Config{BatchSize: 2})

	err := f.sched.runJob(context.Background(), JobOrderStatusReconcile, 2, time.Second, f.sched.OrderStatusReconcileJob)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, stub.limits)
	assert.Empty(t, stub.results)
}

func TestOrderStatusReconcileReturnsServiceError(t *testing.T) {
	stub := &stubStatusSync{err: errors.New("database is locked")}
	f := setupScheduler(t, stub, Config{})

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobOrderStatusReconcile)
	assert.Len(t, stub.limits, 1)
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	f := setupScheduler(t, &stubStatusSync{}, Config{})

	err := f.sched.runJob(context.Background(), "slow", 1, time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestActiveTimersJobSetsGauge(t *testing.T) {
	f := setupScheduler(t, &stubStatusSync{}, Config{})
	now := f.clock.Now()
	insert := `INSERT INTO time_logs (id, org_id, order_id, worker_id, start_time, status, hourly_rate, created_at, updated_at)
		VALUES (?, 1, 1, ?, ?, ?, 180, ?, ?)`
	require.NoError(t, f.db.Exec(insert, 1, 7, now, "running", now, now).Error)
	require.NoError(t, f.db.Exec(insert, 2, 8, now, "paused", now, now).Error)
	require.NoError(t, f.db.Exec(insert, 3, 9, now, "completed", now, now).Error)

	require.NoError(t, f.sched.ActiveTimersJob(context.Background()))
	assert.Equal(t, float64(2), gaugeValue(t, "shopfloor_active_timers"))
}

func TestEnabledJobsFilter(t *testing.T) {
	stub := &stubStatusSync{}
	f := setupScheduler(t, stub, Config{EnabledJobs: []string{"ACTIVE_TIMERS"}})

	assert.True(t, f.sched.isJobEnabled(JobActiveTimers))
	assert.False(t, f.sched.isJobEnabled(JobOrderStatusReconcile))

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Empty(t, stub.limits)
}

func TestLeaseFallsBackWhenRedisUnavailable(t *testing.T) {
	stub := &stubStatusSync{}
	f := setupScheduler(t, stub, Config{})
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	f.sched.locker = ratelimit.NewLocker(client)

	assert.Equal(t, "shopfloor:lock:scheduler:order_status_reconcile", LeaseKey(JobOrderStatusReconcile))
	release, ok := f.sched.acquireLease(context.Background(), JobOrderStatusReconcile)
	assert.True(t, ok)
	release()

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Len(t, stub.limits, 1)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)

	custom := Config{RunInterval: time.Minute, BatchSize: 5}.withDefaults()
	assert.Equal(t, time.Minute, custom.RunInterval)
	assert.Equal(t, 5, custom.BatchSize)
	assert.Equal(t, 30*time.Second, custom.JobTimeout)
}

func setupScheduler(t *testing.T, stub *stubStatusSync, cfg Config) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
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
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	sched, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		StatusSync: stub,
		TimeLogs:   timelogrepository.Provide(),
		Config:     cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &fixture{sched: sched, db: db, clock: fake, sync: stub}
}

func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		require.NotEmpty(t, family.GetMetric())
		return family.GetMetric()[0].GetGauge().GetValue()
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
