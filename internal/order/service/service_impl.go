package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"github.com/smallbiznis/shopfloor/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo orderdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo orderdomain.Repository
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("order.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (*orderdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, orderdomain.ErrInvalidOrganization
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}

	order, err := s.repo.FindByID(ctx, s.db, orgID, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return orderdomain.ToResponse(order), nil
}

func (s *Service) List(ctx context.Context, req orderdomain.ListRequest) ([]orderdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, orderdomain.ErrInvalidOrganization
	}

	var status *orderdomain.Status
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := orderdomain.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		status = &parsed
	}

	orders, err := s.repo.List(ctx, s.db, orgID, status)
	if err != nil {
		return nil, err
	}

	resp := make([]orderdomain.Response, 0, len(orders))
	for i := range orders {
		resp = append(resp, *orderdomain.ToResponse(&orders[i]))
	}
	return resp, nil
}
