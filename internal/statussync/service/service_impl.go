package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shopfloor/internal/clock"
	"github.com/smallbiznis/shopfloor/internal/config"
	"github.com/smallbiznis/shopfloor/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"github.com/smallbiznis/shopfloor/internal/realtime"
	statusdomain "github.com/smallbiznis/shopfloor/internal/statussync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxLastErrorLength = 512

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      statusdomain.Repository
	OrderRepo orderdomain.Repository
	Clock     clock.Clock
	Config    *config.WorkflowConfigHolder
	Publisher *realtime.Publisher `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      statusdomain.Repository
	orderRepo orderdomain.Repository
	clock     clock.Clock
	cfg       *config.WorkflowConfigHolder
	publisher *realtime.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) statusdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("statussync.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		clock:     c,
		cfg:       p.Config,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, req statusdomain.EnqueueRequest) (*statusdomain.StatusUpdate, error) {
	if req.OrgID == 0 || req.OrderID == 0 || req.TimeLogID == 0 {
		return nil, statusdomain.ErrInvalidRequest
	}
	to, err := orderdomain.ParseStatus(string(req.To))
	if err != nil {
		return nil, err
	}
	if tx == nil {
		tx = s.db
	}

	now := s.clock.Now()
	update := &statusdomain.StatusUpdate{
		ID:            s.genID.Generate(),
		OrgID:         req.OrgID,
		OrderID:       req.OrderID,
		TimeLogID:     req.TimeLogID,
		FromStatus:    req.From,
		ToStatus:      to,
		Reason:        strings.TrimSpace(req.Reason),
		State:         statusdomain.StatePending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(req.Metadata) > 0 {
		update.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.Insert(ctx, tx, update); err != nil {
		return nil, fmt.Errorf("enqueue status update: %w", err)
	}
	return update, nil
}

// Apply performs one attempt. The returned error is the transition failure, already
// recorded and logged; callers treat it as non-fatal.
func (s *Service) Apply(ctx context.Context, id snowflake.ID) (statusdomain.Outcome, error) {
	update, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	if update == nil {
		return "", statusdomain.ErrNotFound
	}
	switch update.State {
	case statusdomain.StateApplied:
		return statusdomain.OutcomeApplied, nil
	case statusdomain.StateFailed:
		return statusdomain.OutcomeFailed, nil
	}
	return s.attempt(ctx, update)
}

func (s *Service) ProcessDue(ctx context.Context, limit int) (statusdomain.ProcessResult, error) {
	var result statusdomain.ProcessResult
	if limit <= 0 {
		limit = s.cfg.Get().StatusSync.BatchSize
	}

	due, err := s.repo.ListDue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return result, err
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, _ := s.attempt(ctx, &due[i])
		result.Processed++
		switch outcome {
		case statusdomain.OutcomeApplied:
			result.Applied++
		case statusdomain.OutcomeSkipped:
			result.Skipped++
		case statusdomain.OutcomeRetrying:
			result.Retrying++
		case statusdomain.OutcomeFailed:
			result.Failed++
		}
	}
	return result, nil
}

func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx, s.db)
}

func (s *Service) attempt(ctx context.Context, update *statusdomain.StatusUpdate) (statusdomain.Outcome, error) {
	now := s.clock.Now()
	changed, err := s.orderRepo.TransitionStatus(ctx, s.db, update.OrgID, update.OrderID, update.FromStatus, update.ToStatus, now)
	if err != nil {
		return s.recordFailure(ctx, update, err)
	}

	if _, err := s.repo.MarkApplied(ctx, s.db, update.ID, now); err != nil {
		s.log.Warn("status update applied but not marked",
			zap.String("status_update_id", update.ID.String()),
			zap.String("order_id", update.OrderID.String()),
			zap.Error(err),
		)
	}

	if !changed {
		// The order already moved past the guarded status.
		s.metrics.RecordStatusSync(ctx, string(statusdomain.OutcomeSkipped))
		return statusdomain.OutcomeSkipped, nil
	}

	s.metrics.RecordStatusSync(ctx, string(statusdomain.OutcomeApplied))
	s.publishOrder(ctx, update)
	return statusdomain.OutcomeApplied, nil
}

func (s *Service) recordFailure(ctx context.Context, update *statusdomain.StatusUpdate, cause error) (statusdomain.Outcome, error) {
	cfg := s.cfg.Get().StatusSync
	now := s.clock.Now()

	attempts := update.Attempts + 1
	attempt := statusdomain.Attempt{
		Attempts:      attempts,
		State:         statusdomain.StatePending,
		NextAttemptAt: now.Add(statusdomain.Backoff(cfg.BaseBackoff, cfg.MaxBackoff, update.Attempts)),
		LastError:     truncate(cause.Error(), maxLastErrorLength),
		Now:           now,
	}
	outcome := statusdomain.OutcomeRetrying
	if attempts >= cfg.MaxAttempts {
		attempt.State = statusdomain.StateFailed
		outcome = statusdomain.OutcomeFailed
	}

	fields := []zap.Field{
		zap.String("operation", "order_status_transition"),
		zap.String("status_update_id", update.ID.String()),
		zap.String("org_id", update.OrgID.String()),
		zap.String("order_id", update.OrderID.String()),
		zap.String("time_log_id", update.TimeLogID.String()),
		zap.String("to_status", string(update.ToStatus)),
		zap.Int("attempts", attempts),
		zap.String("outcome", string(outcome)),
		zap.Error(cause),
	}
	if update.FromStatus != nil {
		fields = append(fields, zap.String("from_status", string(*update.FromStatus)))
	}
	s.log.Warn("order status update failed", fields...)

	if err := s.repo.RecordFailure(ctx, s.db, update.ID, attempt); err != nil {
		s.log.Warn("record status update attempt",
			zap.String("status_update_id", update.ID.String()),
			zap.Error(err),
		)
	}
	s.metrics.RecordStatusSync(ctx, string(outcome))
	return outcome, cause
}

func (s *Service) publishOrder(ctx context.Context, update *statusdomain.StatusUpdate) {
	if s.publisher == nil {
		return
	}
	order, err := s.orderRepo.FindByID(ctx, s.db, update.OrgID, update.OrderID)
	if err != nil || order == nil {
		if err == nil {
			err = errors.New("order disappeared")
		}
		s.log.Warn("read order for realtime event",
			zap.String("order_id", update.OrderID.String()),
			zap.Error(err),
		)
		return
	}

	var old any
	if update.FromStatus != nil {
		old = map[string]any{"id": order.ID.String(), "status": *update.FromStatus}
	}
	s.publisher.Updated(ctx, order.OrgID, realtime.TableOrders, order.ID, order.Version, orderdomain.ToResponse(order), old)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
