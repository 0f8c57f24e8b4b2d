package seed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/shopfloor/internal/migration"
	orderrepository "github.com/smallbiznis/shopfloor/internal/order/repository"
	workerrepository "github.com/smallbiznis/shopfloor/internal/worker/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureDemoDataIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.ApplySQLiteSchema(db))

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, EnsureDemoData(ctx, db, now))
	require.NoError(t, EnsureDemoData(ctx, db, now.Add(time.Hour)))

	var orders int64
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM orders WHERE org_id = ?`, DemoOrgID).Scan(&orders).Error)
	assert.Equal(t, int64(2), orders)

	worker, err := workerrepository.Provide().FindByID(ctx, db, DemoOrgID, DemoWorkerID)
	require.NoError(t, err)
	require.NotNil(t, worker)
	assert.True(t, worker.Active)
	assert.True(t, worker.HourlyRate.Equal(decimal.NewFromInt(180)))

	order, err := orderrepository.Provide().FindByID(ctx, db, DemoOrgID, DemoOrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	itemID, total, ok := order.MaterialRequirement()
	require.True(t, ok)
	assert.Equal(t, DemoItemID, itemID)
	assert.True(t, total.Equal(decimal.NewFromInt(5)))
}

func TestEnsureDemoDataRequiresHandle(t *testing.T) {
	assert.Error(t, EnsureDemoData(context.Background(), nil, time.Now()))
}
