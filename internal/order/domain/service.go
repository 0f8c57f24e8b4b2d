package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	GetByID(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type ListRequest struct {
	Status string `form:"status"`
}

type Response struct {
	ID                     string           `json:"id"`
	OrganizationID         string           `json:"organization_id"`
	Code                   string           `json:"code"`
	Status                 Status           `json:"status"`
	Quantity               decimal.Decimal  `json:"quantity"`
	LinkedInventoryItemID  *string          `json:"linked_inventory_item_id,omitempty"`
	MaterialQuantityNeeded *decimal.Decimal `json:"material_quantity_needed,omitempty"`
	Version                int64            `json:"version"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

var (
	ErrNotFound            = errors.New("not_found")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidOrganization = errors.New("invalid_organization")
)

func ToResponse(o *Order) *Response {
	resp := &Response{
		ID:                     o.ID.String(),
		OrganizationID:         o.OrgID.String(),
		Code:                   o.Code,
		Status:                 o.Status,
		Quantity:               o.Quantity,
		MaterialQuantityNeeded: o.MaterialQuantityNeeded,
		Version:                o.Version,
		CreatedAt:              o.CreatedAt,
		UpdatedAt:              o.UpdatedAt,
	}
	if o.LinkedInventoryItemID != nil {
		linked := o.LinkedInventoryItemID.String()
		resp.LinkedInventoryItemID = &linked
	}
	return resp
}
