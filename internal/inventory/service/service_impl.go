package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shopfloor/internal/clock"
	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	"github.com/smallbiznis/shopfloor/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  inventorydomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  inventorydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) inventorydomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("inventory.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: c,
	}
}

func (s *Service) Deduct(ctx context.Context, tx *gorm.DB, req inventorydomain.DeductRequest) (*inventorydomain.InventoryItem, error) {
	if req.OrgID == 0 {
		return nil, inventorydomain.ErrInvalidOrg
	}
	if req.ItemID == 0 {
		return nil, inventorydomain.ErrInvalidID
	}
	if tx == nil {
		tx = s.db
	}

	item, err := s.repo.FindByID(ctx, tx, req.OrgID, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventorydomain.ErrNotFound
	}

	if _, err := inventorydomain.ApplyDeduction(item.Quantity, req.Amount); err != nil {
		var stockErr *inventorydomain.InsufficientStockError
		if errors.As(err, &stockErr) {
			stockErr.ItemName = item.Name
		}
		return nil, err
	}
	if req.Amount.IsZero() {
		return item, nil
	}

	now := s.clock.Now()
	affected, err := s.repo.DeductGuarded(ctx, tx, req.OrgID, req.ItemID, req.Amount, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Another deduction committed between the read and the guarded update.
		current, err := s.repo.FindByID(ctx, tx, req.OrgID, req.ItemID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, inventorydomain.ErrNotFound
		}
		return nil, &inventorydomain.InsufficientStockError{
			ItemName:  current.Name,
			Needed:    req.Amount,
			Available: current.Quantity,
		}
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = inventorydomain.MovementReasonTimerStart
	}
	movement := &inventorydomain.Movement{
		ID:         s.genID.Generate(),
		OrgID:      req.OrgID,
		ItemID:     req.ItemID,
		QtyDelta:   req.Amount.Neg(),
		Reason:     reason,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		CreatedAt:  now,
	}
	if err := s.repo.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, tx, req.OrgID, req.ItemID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, inventorydomain.ErrNotFound
	}

	s.log.Debug("inventory deducted",
		zap.String("item_id", req.ItemID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("remaining", updated.Quantity.String()),
	)
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*inventorydomain.Response, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	itemID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, inventorydomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventorydomain.ErrNotFound
	}
	return inventorydomain.ToResponse(item), nil
}

func (s *Service) List(ctx context.Context) ([]inventorydomain.Response, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]inventorydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *inventorydomain.ToResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, inventorydomain.ErrInvalidOrg
	}
	return orgID, nil
}
