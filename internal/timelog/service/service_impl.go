package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shopfloor/internal/clock"
	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	"github.com/smallbiznis/shopfloor/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"github.com/smallbiznis/shopfloor/internal/ratelimit"
	"github.com/smallbiznis/shopfloor/internal/realtime"
	statusdomain "github.com/smallbiznis/shopfloor/internal/statussync/domain"
	timelogdomain "github.com/smallbiznis/shopfloor/internal/timelog/domain"
	workerdomain "github.com/smallbiznis/shopfloor/internal/worker/domain"
	"github.com/smallbiznis/shopfloor/pkg/db"
	"github.com/smallbiznis/shopfloor/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       timelogdomain.Repository
	OrderRepo  orderdomain.Repository
	Inventory  inventorydomain.Service
	Workers    workerdomain.Service
	StatusSync statusdomain.Service
	Clock      clock.Clock
	Limiter    *ratelimit.TimerLimiter `optional:"true"`
	Publisher  *realtime.Publisher     `optional:"true"`
	Metrics    *metrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       timelogdomain.Repository
	orderRepo  orderdomain.Repository
	inventory  inventorydomain.Service
	workers    workerdomain.Service
	statusSync statusdomain.Service
	clock      clock.Clock
	limiter    *ratelimit.TimerLimiter
	publisher  *realtime.Publisher
	metrics    *metrics.Metrics
}

func New(p Params) timelogdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("timelog.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		orderRepo:  p.OrderRepo,
		inventory:  p.Inventory,
		workers:    p.Workers,
		statusSync: p.StatusSync,
		clock:      c,
		limiter:    p.Limiter,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
	}
}

// startEffects is what a committed start leaves for the post-commit phase.
type startEffects struct {
	log      *timelogdomain.TimeLog
	item     *inventorydomain.InventoryItem
	statusID snowflake.ID
}

func (s *Service) Start(ctx context.Context, req timelogdomain.StartRequest) (*timelogdomain.Response, error) {
	identity, err := s.workers.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := parseID(req.OrderID)
	if err != nil {
		return nil, err
	}

	release, err := s.lockWorker(ctx, identity)
	if err != nil {
		s.metrics.RecordTimerRejected(ctx, "start", "busy")
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	active, err := s.repo.FindActiveByWorker(ctx, s.db, identity.OrgID, identity.WorkerID)
	if err != nil {
		return nil, s.persistenceError(ctx, "find_active_time_log", identity, orderID, 0, nil, err)
	}
	if active != nil {
		s.metrics.RecordTimerRejected(ctx, "start", "conflict")
		return nil, &timelogdomain.ConflictError{WorkerID: identity.WorkerID, ActiveLogID: active.ID}
	}

	order, err := s.orderRepo.FindByID(ctx, s.db, identity.OrgID, orderID)
	if err != nil {
		return nil, s.persistenceError(ctx, "find_order", identity, orderID, 0, nil, err)
	}
	if order == nil {
		s.metrics.RecordTimerRejected(ctx, "start", "order_not_found")
		return nil, timelogdomain.ErrOrderNotFound
	}

	now := s.clock.Now()
	log := &timelogdomain.TimeLog{
		ID:         s.genID.Generate(),
		OrgID:      identity.OrgID,
		OrderID:    order.ID,
		WorkerID:   identity.WorkerID,
		StartTime:  now,
		Status:     timelogdomain.StatusRunning,
		HourlyRate: identity.HourlyRate,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inputs := map[string]string{
		"worker_id":   identity.WorkerID.String(),
		"hourly_rate": identity.HourlyRate.String(),
	}

	effects := startEffects{log: log}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A zero requirement consumes nothing and leaves the item untouched.
		if itemID, amount, ok := order.MaterialRequirement(); ok && !amount.IsZero() {
			inputs["item_id"] = itemID.String()
			inputs["amount"] = amount.String()
			item, err := s.inventory.Deduct(ctx, tx, inventorydomain.DeductRequest{
				OrgID:      identity.OrgID,
				ItemID:     itemID,
				Amount:     amount,
				Reason:     inventorydomain.MovementReasonTimerStart,
				SourceType: inventorydomain.SourceTypeTimeLog,
				SourceID:   log.ID,
			})
			if err != nil {
				return err
			}
			effects.item = item
		}

		if err := s.repo.Insert(ctx, tx, log); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return &timelogdomain.ConflictError{WorkerID: identity.WorkerID}
			}
			return err
		}

		if order.Status == orderdomain.StatusPending {
			from := orderdomain.StatusPending
			update, err := s.statusSync.Enqueue(ctx, tx, statusdomain.EnqueueRequest{
				OrgID:     identity.OrgID,
				OrderID:   order.ID,
				TimeLogID: log.ID,
				From:      &from,
				To:        orderdomain.StatusInProgress,
				Reason:    statusdomain.ReasonTimerStart,
				Metadata:  map[string]any{"worker_id": identity.WorkerID.String()},
			})
			if err != nil {
				return err
			}
			effects.statusID = update.ID
		}
		return nil
	})
	if err != nil {
		return nil, s.startError(ctx, identity, order.ID, log.ID, inputs, err)
	}

	s.metrics.RecordTimerStart(ctx, identity.OrgID.String())
	if effects.item != nil {
		s.metrics.RecordStockDeduction(ctx, identity.OrgID.String(), 1)
	}
	s.afterStart(context.WithoutCancel(ctx), effects)

	return timelogdomain.ToResponse(log, now), nil
}

func (s *Service) Stop(ctx context.Context, req timelogdomain.StopRequest) (*timelogdomain.StopResult, error) {
	identity, err := s.workers.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logID, err := parseID(req.TimeLogID)
	if err != nil {
		return nil, err
	}
	finalStatus := orderdomain.StatusCompleted
	if strings.TrimSpace(req.FinalOrderStatus) != "" {
		if finalStatus, err = orderdomain.ParseStatus(req.FinalOrderStatus); err != nil {
			return nil, err
		}
	}

	release, err := s.lockWorker(ctx, identity)
	if err != nil {
		s.metrics.RecordTimerRejected(ctx, "stop", "busy")
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	log, err := s.ownedLog(ctx, identity, logID)
	if err != nil {
		return nil, err
	}
	if !log.Active() {
		s.metrics.RecordTimerRejected(ctx, "stop", "not_active")
		return nil, timelogdomain.ErrNotFound
	}

	now := s.clock.Now()
	duration := log.ElapsedSeconds(now)
	cost := timelogdomain.Cost(log.HourlyRate, duration)
	inputs := map[string]string{
		"worker_id":        identity.WorkerID.String(),
		"hourly_rate":      log.HourlyRate.String(),
		"duration_seconds": strconv.FormatInt(duration, 10),
		"total_cost":       cost.StringFixed(2),
		"final_status":     string(finalStatus),
	}

	var statusID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed, err := s.repo.Complete(ctx, tx, timelogdomain.CompleteParams{
			OrgID:           identity.OrgID,
			ID:              log.ID,
			Version:         log.Version,
			EndTime:         now,
			DurationSeconds: duration,
			TotalCost:       cost,
		})
		if err != nil {
			return err
		}
		if !closed {
			// Either already closed, or paused/resumed after the duration was computed.
			current, err := s.repo.FindByID(ctx, tx, identity.OrgID, log.ID)
			if err != nil {
				return err
			}
			if current == nil || !current.Active() {
				return timelogdomain.ErrNotFound
			}
			return timelogdomain.ErrInvalidTransition
		}

		update, err := s.statusSync.Enqueue(ctx, tx, statusdomain.EnqueueRequest{
			OrgID:     identity.OrgID,
			OrderID:   log.OrderID,
			TimeLogID: log.ID,
			To:        finalStatus,
			Reason:    statusdomain.ReasonTimerStop,
			Metadata: map[string]any{
				"worker_id":        identity.WorkerID.String(),
				"duration_seconds": duration,
			},
		})
		if err != nil {
			return err
		}
		statusID = update.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, timelogdomain.ErrNotFound) {
			s.metrics.RecordTimerRejected(ctx, "stop", "not_active")
			return nil, err
		}
		if errors.Is(err, timelogdomain.ErrInvalidTransition) {
			s.metrics.RecordTimerRejected(ctx, "stop", "stale")
			return nil, err
		}
		return nil, s.persistenceError(ctx, "stop_timer", identity, log.OrderID, log.ID, inputs, err)
	}

	s.metrics.RecordTimerStop(ctx, identity.OrgID.String(), string(finalStatus))
	afterCtx := context.WithoutCancel(ctx)
	stopped := s.reload(afterCtx, log, func(l *timelogdomain.TimeLog) {
		l.Status = timelogdomain.StatusCompleted
		l.EndTime = &now
		l.DurationSeconds = &duration
		l.TotalCost = &cost
		l.Version++
	})
	s.publisher.Updated(afterCtx, stopped.OrgID, realtime.TableTimeLogs, stopped.ID, stopped.Version,
		timelogdomain.ToResponse(stopped, now), timelogdomain.ToResponse(log, now))
	s.applyStatus(afterCtx, statusID)

	return &timelogdomain.StopResult{
		TimeLog:        *timelogdomain.ToResponse(stopped, now),
		NewOrderStatus: finalStatus,
	}, nil
}

func (s *Service) Pause(ctx context.Context, id string) (*timelogdomain.Response, error) {
	return s.transition(ctx, "pause", id, timelogdomain.StatusRunning, func(log *timelogdomain.TimeLog, now time.Time) (bool, error) {
		accumulated := log.ElapsedSeconds(now)
		paused, err := s.repo.Pause(ctx, s.db, log.OrgID, log.ID, accumulated, now)
		if paused {
			log.Status = timelogdomain.StatusPaused
			log.AccumulatedSeconds = accumulated
		}
		return paused, err
	})
}

func (s *Service) Resume(ctx context.Context, id string) (*timelogdomain.Response, error) {
	return s.transition(ctx, "resume", id, timelogdomain.StatusPaused, func(log *timelogdomain.TimeLog, now time.Time) (bool, error) {
		resumed, err := s.repo.Resume(ctx, s.db, log.OrgID, log.ID, now)
		if resumed {
			log.Status = timelogdomain.StatusRunning
			log.ResumedAt = &now
		}
		return resumed, err
	})
}

func (s *Service) Active(ctx context.Context) (*timelogdomain.Response, error) {
	identity, err := s.workers.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	log, err := s.repo.FindActiveByWorker(ctx, s.db, identity.OrgID, identity.WorkerID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, timelogdomain.ErrNotFound
	}
	return timelogdomain.ToResponse(log, s.clock.Now()), nil
}

func (s *Service) List(ctx context.Context, req timelogdomain.ListRequest) (*timelogdomain.ListResponse, error) {
	identity, err := s.workers.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	filter := timelogdomain.ListFilter{OrgID: identity.OrgID}
	if strings.TrimSpace(req.WorkerID) != "" {
		workerID, err := parseID(req.WorkerID)
		if err != nil {
			return nil, err
		}
		filter.WorkerID = &workerID
	}
	if strings.TrimSpace(req.OrderID) != "" {
		orderID, err := parseID(req.OrderID)
		if err != nil {
			return nil, err
		}
		filter.OrderID = &orderID
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := timelogdomain.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, timelogdomain.ErrInvalidCursor
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, timelogdomain.ErrInvalidCursor
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, timelogdomain.ErrInvalidCursor
		}
		filter.AfterCreatedAt = &createdAt
		filter.AfterID = afterID
	}

	limit := req.Pagination.Limit()
	filter.Limit = limit + 1

	logs, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*timelogdomain.TimeLog, 0, len(logs))
	for i := range logs {
		items = append(items, &logs[i])
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(l *timelogdomain.TimeLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        l.ID.String(),
			CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			s.log.Warn("encode time log cursor", zap.Error(err))
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	now := s.clock.Now()
	resp := &timelogdomain.ListResponse{
		Data:     make([]timelogdomain.Response, 0, len(items)),
		PageInfo: *pageInfo,
	}
	for _, l := range items {
		resp.Data = append(resp.Data, *timelogdomain.ToResponse(l, now))
	}
	return resp, nil
}

func (s *Service) transition(
	ctx context.Context,
	operation string,
	id string,
	from timelogdomain.Status,
	apply func(log *timelogdomain.TimeLog, now time.Time) (bool, error),
) (*timelogdomain.Response, error) {
	identity, err := s.workers.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	log, err := s.ownedLog(ctx, identity, logID)
	if err != nil {
		return nil, err
	}
	if log.Status != from {
		s.metrics.RecordTimerRejected(ctx, operation, "invalid_transition")
		return nil, timelogdomain.ErrInvalidTransition
	}

	before := *log
	now := s.clock.Now()
	changed, err := apply(log, now)
	if err != nil {
		return nil, s.persistenceError(ctx, operation+"_timer", identity, log.OrderID, log.ID, nil, err)
	}
	if !changed {
		s.metrics.RecordTimerRejected(ctx, operation, "invalid_transition")
		return nil, timelogdomain.ErrInvalidTransition
	}
	log.Version++
	log.UpdatedAt = now

	s.publisher.Updated(context.WithoutCancel(ctx), log.OrgID, realtime.TableTimeLogs, log.ID, log.Version,
		timelogdomain.ToResponse(log, now), timelogdomain.ToResponse(&before, now))
	return timelogdomain.ToResponse(log, now), nil
}

func (s *Service) ownedLog(ctx context.Context, identity *workerdomain.Identity, id snowflake.ID) (*timelogdomain.TimeLog, error) {
	log, err := s.repo.FindByID(ctx, s.db, identity.OrgID, id)
	if err != nil {
		return nil, s.persistenceError(ctx, "find_time_log", identity, 0, id, nil, err)
	}
	if log == nil {
		return nil, timelogdomain.ErrNotFound
	}
	if log.WorkerID != identity.WorkerID {
		return nil, timelogdomain.ErrForbidden
	}
	return log, nil
}

func (s *Service) afterStart(ctx context.Context, effects startEffects) {
	log := effects.log
	s.publisher.Inserted(ctx, log.OrgID, realtime.TableTimeLogs, log.ID, log.Version,
		timelogdomain.ToResponse(log, log.StartTime))
	if item := effects.item; item != nil {
		s.publisher.Updated(ctx, item.OrgID, realtime.TableInventoryItems, item.ID, item.Version,
			inventorydomain.ToResponse(item), nil)
	}
	s.applyStatus(ctx, effects.statusID)
}

// applyStatus makes the first attempt at a recorded order-status change. Failures
// are logged by the status sync service and retried by the reconcile job.
func (s *Service) applyStatus(ctx context.Context, id snowflake.ID) {
	if id == 0 {
		return
	}
	if _, err := s.statusSync.Apply(ctx, id); err != nil {
		s.log.Debug("order status update deferred",
			zap.String("status_update_id", id.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) reload(ctx context.Context, fallback *timelogdomain.TimeLog, patch func(*timelogdomain.TimeLog)) *timelogdomain.TimeLog {
	current, err := s.repo.FindByID(ctx, s.db, fallback.OrgID, fallback.ID)
	if err == nil && current != nil {
		return current
	}
	patched := *fallback
	patch(&patched)
	return &patched
}

func (s *Service) lockWorker(ctx context.Context, identity *workerdomain.Identity) (func(context.Context), error) {
	release, ok, err := s.limiter.LockWorker(ctx, identity.OrgID.String(), identity.WorkerID.String())
	if err != nil {
		// The unique index still guards the invariant without the lock.
		s.log.Warn("worker lock unavailable",
			zap.String("org_id", identity.OrgID.String()),
			zap.String("worker_id", identity.WorkerID.String()),
			zap.Error(err),
		)
		return func(context.Context) {}, nil
	}
	if !ok {
		return nil, timelogdomain.ErrBusy
	}
	return release, nil
}

func (s *Service) startError(ctx context.Context, identity *workerdomain.Identity, orderID, logID snowflake.ID, inputs map[string]string, err error) error {
	var stockErr *inventorydomain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		s.metrics.RecordTimerRejected(ctx, "start", "insufficient_stock")
		return err
	case errors.Is(err, timelogdomain.ErrActiveTimerExists):
		s.metrics.RecordTimerRejected(ctx, "start", "conflict")
		return err
	case errors.Is(err, inventorydomain.ErrNotFound):
		s.metrics.RecordTimerRejected(ctx, "start", "item_not_found")
		return err
	default:
		return s.persistenceError(ctx, "start_timer", identity, orderID, logID, inputs, err)
	}
}

func (s *Service) persistenceError(ctx context.Context, op string, identity *workerdomain.Identity, orderID, logID snowflake.ID, inputs map[string]string, err error) error {
	perr := &timelogdomain.PersistenceError{
		Op:        op,
		OrgID:     identity.OrgID,
		OrderID:   orderID,
		TimeLogID: logID,
		Inputs:    inputs,
		Err:       err,
	}
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("org_id", identity.OrgID.String()),
		zap.String("worker_id", identity.WorkerID.String()),
		zap.Error(err),
	}
	if orderID != 0 {
		fields = append(fields, zap.String("order_id", orderID.String()))
	}
	if logID != 0 {
		fields = append(fields, zap.String("time_log_id", logID.String()))
	}
	for k, v := range inputs {
		fields = append(fields, zap.String("input."+k, v))
	}
	s.log.Error("timer persistence failed", fields...)
	s.metrics.RecordTimerRejected(ctx, op, "persistence")
	return perr
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, timelogdomain.ErrInvalidID
	}
	return id, nil
}
