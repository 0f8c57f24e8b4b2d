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
	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	"github.com/smallbiznis/shopfloor/internal/inventory/repository"
	"github.com/smallbiznis/shopfloor/internal/migration"
	"github.com/smallbiznis/shopfloor/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestDeductReducesQuantityAndRecordsMovement(t *testing.T) {
	node := mustNode(t)
	svc, db := setupInventoryService(t, node)
	orgID := node.Generate()
	itemID := seedItem(t, db, node, orgID, "Steel sheet", "10")
	sourceID := node.Generate()

	item, err := svc.Deduct(context.Background(), db, inventorydomain.DeductRequest{
		OrgID:      orgID,
		ItemID:     itemID,
		Amount:     decimal.NewFromInt(5),
		SourceType: inventorydomain.SourceTypeTimeLog,
		SourceID:   sourceID,
	})
	require.NoError(t, err)
	assert.True(t, item.Quantity.Equal(decimal.NewFromInt(5)), "quantity %s", item.Quantity)
	assert.Equal(t, int64(2), item.Version)

	movements, err := repository.Provide().ListMovements(context.Background(), db, orgID, itemID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].QtyDelta.Equal(decimal.NewFromInt(-5)))
	assert.Equal(t, inventorydomain.MovementReasonTimerStart, movements[0].Reason)
	assert.Equal(t, sourceID, movements[0].SourceID)
}

func TestDeductInsufficientStockLeavesQuantity(t *testing.T) {
	node := mustNode(t)
	svc, db := setupInventoryService(t, node)
	orgID := node.Generate()
	itemID := seedItem(t, db, node, orgID, "Copper wire", "5")

	_, err := svc.Deduct(context.Background(), db, inventorydomain.DeductRequest{
		OrgID:  orgID,
		ItemID: itemID,
		Amount: decimal.NewFromInt(20),
	})

	var stockErr *inventorydomain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Copper wire", stockErr.ItemName)
	assert.True(t, stockErr.Available.Equal(decimal.NewFromInt(5)))
	assert.True(t, currentQuantity(t, db, itemID).Equal(decimal.NewFromInt(5)))
	assert.Zero(t, countMovements(t, db))
}

func TestDeductZeroAmountIsNoop(t *testing.T) {
	node := mustNode(t)
	svc, db := setupInventoryService(t, node)
	orgID := node.Generate()
	itemID := seedItem(t, db, node, orgID, "Rivets", "10")

	item, err := svc.Deduct(context.Background(), db, inventorydomain.DeductRequest{
		OrgID:  orgID,
		ItemID: itemID,
		Amount: decimal.Zero,
	})
	require.NoError(t, err)
	assert.True(t, item.Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1), item.Version)
	assert.Zero(t, countMovements(t, db))

	_, err = svc.Deduct(context.Background(), db, inventorydomain.DeductRequest{
		OrgID:  orgID,
		ItemID: itemID,
		Amount: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, inventorydomain.ErrInvalidAmount)
	assert.True(t, currentQuantity(t, db, itemID).Equal(decimal.NewFromInt(10)))
}

func TestDeductGuardRejectsStaleRead(t *testing.T) {
	node := mustNode(t)
	_, db := setupInventoryService(t, node)
	orgID := node.Generate()
	itemID := seedItem(t, db, node, orgID, "Bolts", "3")

	repo := repository.Provide()
	affected, err := repo.DeductGuarded(context.Background(), db, orgID, itemID, decimal.NewFromInt(2), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// A second deduction sized against the original quantity must not apply.
	affected, err = repo.DeductGuarded(context.Background(), db, orgID, itemID, decimal.NewFromInt(2), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.True(t, currentQuantity(t, db, itemID).Equal(decimal.NewFromInt(1)))
}

func TestDeductUnknownItem(t *testing.T) {
	node := mustNode(t)
	svc, db := setupInventoryService(t, node)

	_, err := svc.Deduct(context.Background(), db, inventorydomain.DeductRequest{
		OrgID:  node.Generate(),
		ItemID: node.Generate(),
		Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, inventorydomain.ErrNotFound)
}

func TestGetByIDScopedToOrg(t *testing.T) {
	node := mustNode(t)
	svc, db := setupInventoryService(t, node)
	orgID := node.Generate()
	otherOrg := node.Generate()
	itemID := seedItem(t, db, node, orgID, "Paint", "7.5")

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	resp, err := svc.GetByID(ctx, itemID.String())
	require.NoError(t, err)
	assert.Equal(t, "Paint", resp.Name)
	assert.True(t, resp.Quantity.Equal(decimal.RequireFromString("7.5")))

	otherCtx := orgcontext.WithOrgID(context.Background(), int64(otherOrg))
	_, err = svc.GetByID(otherCtx, itemID.String())
	assert.ErrorIs(t, err, inventorydomain.ErrNotFound)

	_, err = svc.GetByID(context.Background(), itemID.String())
	assert.ErrorIs(t, err, inventorydomain.ErrInvalidOrg)

	_, err = svc.GetByID(ctx, "not-a-number")
	assert.ErrorIs(t, err, inventorydomain.ErrInvalidID)
}

func TestListReturnsOrgItems(t *testing.T) {
	node := mustNode(t)
	svc, db := setupInventoryService(t, node)
	orgID := node.Generate()
	seedItem(t, db, node, orgID, "B item", "1")
	seedItem(t, db, node, orgID, "A item", "2")
	seedItem(t, db, node, node.Generate(), "Other", "3")

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A item", items[0].Name)
	assert.Equal(t, "B item", items[1].Name)
}

func setupInventoryService(t *testing.T, node *snowflake.Node) (inventorydomain.Service, *gorm.DB) {
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

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
	})
	return svc, db
}

func seedItem(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID, name, quantity string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO inventory_items (id, org_id, name, sku, unit, quantity, version, created_at, updated_at)
		 VALUES (?, ?, ?, '', 'pcs', ?, 1, ?, ?)`,
		id, orgID, name, decimal.RequireFromString(quantity), now, now,
	).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return id
}

func currentQuantity(t *testing.T, db *gorm.DB, id snowflake.ID) decimal.Decimal {
	t.Helper()
	var item inventorydomain.InventoryItem
	if err := db.Raw(`SELECT id, quantity FROM inventory_items WHERE id = ?`, id).Scan(&item).Error; err != nil {
		t.Fatalf("read quantity: %v", err)
	}
	return item.Quantity
}

func countMovements(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM inventory_movements`).Scan(&count).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	return count
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
