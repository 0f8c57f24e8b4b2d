package logger

import (
	"context"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/shopfloor/internal/observability/context"
	"github.com/smallbiznis/shopfloor/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = orgcontext.WithOrgID(ctx, 10)
	ctx = orgcontext.WithWorkerID(ctx, 20)

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "10", fields["org_id"])
	assert.Equal(t, "20", fields["worker_id"])
	assert.Equal(t, "", fields["trace_id"])
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	require.Error(t, err)
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                        "SELECT",
		"  update orders set status = ?":  "UPDATE",
		"WITH x AS (SELECT 1) DELETE FROM": "SELECT",
		"":                                "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM time_logs WHERE org_id = ?":            "time_logs",
		"UPDATE inventory_items SET quantity = quantity - ?":   "inventory_items",
		"INSERT INTO \"order_status_updates\" (id) VALUES (?)": "order_status_updates",
		"SELECT COUNT(1) FROM (SELECT id FROM orders) AS o":    "orders",
		"SELECT 1":                                             "",
		"DELETE FROM public.workers WHERE id = ?":              "workers",
	}
	for sql, want := range cases {
		assert.Equal(t, want, tableFromSQL(sql), sql)
	}
}

func TestGormLoggerUsesTimerPathThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	gormLog := NewGormLogger(GormLoggerConfig{
		Level:              gormlogger.Warn,
		SlowThreshold:      time.Second,
		TimerPathThreshold: 50 * time.Millisecond,
	})
	ctx := orgcontext.WithWorkerID(orgcontext.WithOrgID(context.Background(), 10), 20)
	begin := time.Now().Add(-200 * time.Millisecond)

	gormLog.Trace(ctx, begin, func() (string, int64) {
		return "UPDATE inventory_items SET quantity = quantity - ? WHERE quantity >= ?", 0
	}, nil)
	gormLog.Trace(ctx, begin, func() (string, int64) {
		return "SELECT id FROM workers WHERE id = ?", 1
	}, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "inventory_items", fields["table"])
	assert.Equal(t, true, fields["timer_path"])
	assert.Equal(t, true, fields["guard_missed"])
	assert.Equal(t, "10", fields["org_id"])
	assert.Equal(t, "20", fields["worker_id"])
}

func TestGormLoggerLogsFailedQueries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	gormLog := NewGormLogger(DefaultGormLoggerConfig())
	gormLog.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO time_logs (id) VALUES (?)", -1
	}, assert.AnError)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "time_logs", entry.ContextMap()["table"])
	assert.NotContains(t, entry.ContextMap(), "guard_missed")
}
