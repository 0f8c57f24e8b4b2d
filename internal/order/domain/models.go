package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDelayed    Status = "delayed"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid_status")

// ParseStatus normalizes and validates an order status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusDelayed, StatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Order is a production job that time is logged against.
type Order struct {
	ID                     snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID                  snowflake.ID     `json:"organization_id" gorm:"column:org_id;not null"`
	Code                   string           `json:"code" gorm:"type:text;not null"`
	Status                 Status           `json:"status" gorm:"type:text;not null"`
	Quantity               decimal.Decimal  `json:"quantity" gorm:"type:numeric;not null"`
	LinkedInventoryItemID  *snowflake.ID    `json:"linked_inventory_item_id,omitempty"`
	MaterialQuantityNeeded *decimal.Decimal `json:"material_quantity_needed,omitempty" gorm:"type:numeric"`
	Version                int64            `json:"version" gorm:"not null;default:1"`
	CreatedAt              time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time        `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// MaterialRequirement returns the linked item and the total amount the order consumes.
// ok is false when the order has no material link or no per-unit quantity.
func (o Order) MaterialRequirement() (itemID snowflake.ID, total decimal.Decimal, ok bool) {
	if o.LinkedInventoryItemID == nil || *o.LinkedInventoryItemID == 0 || o.MaterialQuantityNeeded == nil {
		return 0, decimal.Zero, false
	}
	return *o.LinkedInventoryItemID, o.Quantity.Mul(*o.MaterialQuantityNeeded), true
}
