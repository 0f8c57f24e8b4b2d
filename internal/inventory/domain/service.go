package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	// Deduct runs inside the caller's transaction.
	Deduct(ctx context.Context, tx *gorm.DB, req DeductRequest) (*InventoryItem, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context) ([]Response, error)
}

type DeductRequest struct {
	OrgID      snowflake.ID
	ItemID     snowflake.ID
	Amount     decimal.Decimal
	Reason     string
	SourceType string
	SourceID   snowflake.ID
}

type Response struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	SKU            string          `json:"sku"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func ToResponse(item *InventoryItem) *Response {
	return &Response{
		ID:             item.ID.String(),
		OrganizationID: item.OrgID.String(),
		Name:           item.Name,
		SKU:            item.SKU,
		Unit:           item.Unit,
		Quantity:       item.Quantity,
		Version:        item.Version,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}
