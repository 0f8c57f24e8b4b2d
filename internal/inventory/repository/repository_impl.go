package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() inventorydomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*inventorydomain.InventoryItem, error) {
	var item inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, sku, unit, quantity, version, created_at, updated_at
		 FROM inventory_items WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]inventorydomain.InventoryItem, error) {
	var items []inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, sku, unit, quantity, version, created_at, updated_at
		 FROM inventory_items WHERE org_id = ? ORDER BY name ASC, id ASC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeductGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, amount decimal.Decimal, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE inventory_items
		 SET quantity = quantity - ?, version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND quantity >= ?`,
		amount,
		now,
		orgID,
		id,
		amount,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertMovement(ctx context.Context, db *gorm.DB, m *inventorydomain.Movement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO inventory_movements (id, org_id, item_id, qty_delta, reason, source_type, source_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.OrgID,
		m.ItemID,
		m.QtyDelta,
		m.Reason,
		m.SourceType,
		m.SourceID,
		m.CreatedAt,
	).Error
}

func (r *repo) ListMovements(ctx context.Context, db *gorm.DB, orgID, itemID snowflake.ID) ([]inventorydomain.Movement, error) {
	var movements []inventorydomain.Movement
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, item_id, qty_delta, reason, source_type, source_id, created_at
		 FROM inventory_movements WHERE org_id = ? AND item_id = ? ORDER BY created_at ASC, id ASC`,
		orgID,
		itemID,
	).Scan(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
