package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InventoryItem is a stocked material. Quantity is never negative.
type InventoryItem struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null"`
	Name      string          `json:"name" gorm:"type:text;not null"`
	SKU       string          `json:"sku" gorm:"column:sku;type:text;not null"`
	Unit      string          `json:"unit" gorm:"type:text;not null"`
	Quantity  decimal.Decimal `json:"quantity" gorm:"type:numeric;not null"`
	Version   int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (InventoryItem) TableName() string { return "inventory_items" }

// Movement is an append-only record of a quantity change.
type Movement struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null"`
	ItemID     snowflake.ID    `json:"item_id" gorm:"not null"`
	QtyDelta   decimal.Decimal `json:"qty_delta" gorm:"type:numeric;not null"`
	Reason     string          `json:"reason" gorm:"type:text;not null"`
	SourceType string          `json:"source_type" gorm:"type:text;not null"`
	SourceID   snowflake.ID    `json:"source_id" gorm:"not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Movement) TableName() string { return "inventory_movements" }

const (
	MovementReasonTimerStart = "timer_start"

	SourceTypeTimeLog = "time_log"
)
