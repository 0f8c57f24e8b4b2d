package service

import (
	"context"

	"github.com/smallbiznis/shopfloor/internal/orgcontext"
	workerdomain "github.com/smallbiznis/shopfloor/internal/worker/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo workerdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo workerdomain.Repository
}

func New(p Params) workerdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("worker.service"),
		repo: p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context) (*workerdomain.Identity, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, workerdomain.ErrUnauthorized
	}
	workerID, ok := orgcontext.WorkerIDFromContext(ctx)
	if !ok {
		return nil, workerdomain.ErrUnauthorized
	}

	worker, err := s.repo.FindByID(ctx, s.db, orgID, workerID)
	if err != nil {
		return nil, err
	}
	if worker == nil {
		s.log.Debug("unknown worker for org",
			zap.String("org_id", orgID.String()),
			zap.String("worker_id", workerID.String()),
		)
		return nil, workerdomain.ErrUnauthorized
	}
	if !worker.Active {
		return nil, workerdomain.ErrWorkerInactive
	}

	return &workerdomain.Identity{
		OrgID:      worker.OrgID,
		WorkerID:   worker.ID,
		HourlyRate: worker.HourlyRate,
	}, nil
}
