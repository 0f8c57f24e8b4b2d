package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/shopfloor/internal/migration"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"github.com/smallbiznis/shopfloor/internal/order/repository"
	"github.com/smallbiznis/shopfloor/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestGetByIDIncludesMaterialLink(t *testing.T) {
	node := mustNode(t)
	svc, db := setupOrderService(t)
	orgID := node.Generate()
	itemID := node.Generate()
	perUnit := decimal.RequireFromString("0.5")
	orderID := seedOrder(t, db, node, orgID, orderdomain.StatusPending, &itemID, &perUnit)

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	resp, err := svc.GetByID(ctx, orderID.String())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, resp.Status)
	require.NotNil(t, resp.LinkedInventoryItemID)
	assert.Equal(t, itemID.String(), *resp.LinkedInventoryItemID)
	require.NotNil(t, resp.MaterialQuantityNeeded)
	assert.True(t, resp.MaterialQuantityNeeded.Equal(perUnit))

	_, err = svc.GetByID(ctx, node.Generate().String())
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	node := mustNode(t)
	svc, db := setupOrderService(t)
	orgID := node.Generate()
	seedOrder(t, db, node, orgID, orderdomain.StatusPending, nil, nil)
	seedOrder(t, db, node, orgID, orderdomain.StatusInProgress, nil, nil)

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	all, err := svc.List(ctx, orderdomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.List(ctx, orderdomain.ListRequest{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, orderdomain.StatusPending, pending[0].Status)

	_, err = svc.List(ctx, orderdomain.ListRequest{Status: "lost"})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidStatus)
}

func TestTransitionStatusGuard(t *testing.T) {
	node := mustNode(t)
	_, db := setupOrderService(t)
	orgID := node.Generate()
	orderID := seedOrder(t, db, node, orgID, orderdomain.StatusInProgress, nil, nil)
	repo := repository.Provide()
	now := time.Now().UTC()

	pending := orderdomain.StatusPending
	applied, err := repo.TransitionStatus(context.Background(), db, orgID, orderID, &pending, orderdomain.StatusInProgress, now)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.TransitionStatus(context.Background(), db, orgID, orderID, nil, orderdomain.StatusCompleted, now)
	require.NoError(t, err)
	assert.True(t, applied)

	order, err := repo.FindByID(context.Background(), db, orgID, orderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, order.Status)
	assert.Equal(t, int64(2), order.Version)
}

func setupOrderService(t *testing.T) (orderdomain.Service, *gorm.DB) {
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

	return New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()}), db
}

func seedOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID, status orderdomain.Status, itemID *snowflake.ID, perUnit *decimal.Decimal) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO orders (id, org_id, code, status, quantity, linked_inventory_item_id, material_quantity_needed, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, orgID, "WO-"+id.String(), string(status), decimal.NewFromInt(10), itemID, perUnit, now, now,
	).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
