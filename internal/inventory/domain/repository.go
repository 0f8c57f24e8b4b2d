package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*InventoryItem, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]InventoryItem, error)
	// DeductGuarded subtracts amount only while the stored quantity still covers it.
	DeductGuarded(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, amount decimal.Decimal, now time.Time) (int64, error)
	InsertMovement(ctx context.Context, db *gorm.DB, m *Movement) error
	ListMovements(ctx context.Context, db *gorm.DB, orgID, itemID snowflake.ID) ([]Movement, error)
}
