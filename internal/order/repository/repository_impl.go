package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"gorm.io/gorm"
)

const orderColumns = `id, org_id, code, status, quantity, linked_inventory_item_id,
	material_quantity_needed, version, created_at, updated_at`

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status *orderdomain.Status) ([]orderdomain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE org_id = ?`
	args := []any{orgID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var orders []orderdomain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from *orderdomain.Status, to orderdomain.Status, now time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, version = version + 1, updated_at = ?
		WHERE org_id = ? AND id = ?`
	args := []any{string(to), now, orgID, id}
	if from != nil {
		query += ` AND status = ?`
		args = append(args, string(*from))
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
