package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	timelogdomain "github.com/smallbiznis/shopfloor/internal/timelog/domain"
	"gorm.io/gorm"
)

const logColumns = `id, org_id, order_id, worker_id, start_time, end_time, resumed_at,
	accumulated_seconds, status, hourly_rate, duration_seconds, total_cost, version,
	created_at, updated_at`

type repo struct{}

func Provide() timelogdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*timelogdomain.TimeLog, error) {
	var log timelogdomain.TimeLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM time_logs WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&log).Error
	if err != nil {
		return nil, err
	}
	if log.ID == 0 {
		return nil, nil
	}
	return &log, nil
}

func (r *repo) FindActiveByWorker(ctx context.Context, db *gorm.DB, orgID, workerID snowflake.ID) (*timelogdomain.TimeLog, error) {
	var log timelogdomain.TimeLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM time_logs
		 WHERE org_id = ? AND worker_id = ? AND status IN (?, ?)
		 ORDER BY start_time DESC
		 LIMIT 1`,
		orgID,
		workerID,
		string(timelogdomain.StatusRunning),
		string(timelogdomain.StatusPaused),
	).Scan(&log).Error
	if err != nil {
		return nil, err
	}
	if log.ID == 0 {
		return nil, nil
	}
	return &log, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, log *timelogdomain.TimeLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO time_logs (`+logColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.OrgID,
		log.OrderID,
		log.WorkerID,
		log.StartTime,
		log.EndTime,
		log.ResumedAt,
		log.AccumulatedSeconds,
		string(log.Status),
		log.HourlyRate,
		log.DurationSeconds,
		log.TotalCost,
		log.Version,
		log.CreatedAt,
		log.UpdatedAt,
	).Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, req timelogdomain.CompleteParams) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE time_logs
		 SET status = ?, end_time = ?, duration_seconds = ?, total_cost = ?,
		     version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND version = ? AND status IN (?, ?)`,
		string(timelogdomain.StatusCompleted),
		req.EndTime,
		req.DurationSeconds,
		req.TotalCost,
		req.EndTime,
		req.OrgID,
		req.ID,
		req.Version,
		string(timelogdomain.StatusRunning),
		string(timelogdomain.StatusPaused),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Pause(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, accumulatedSeconds int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE time_logs
		 SET status = ?, accumulated_seconds = ?, version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		string(timelogdomain.StatusPaused),
		accumulatedSeconds,
		now,
		orgID,
		id,
		string(timelogdomain.StatusRunning),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Resume(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE time_logs
		 SET status = ?, resumed_at = ?, version = version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		string(timelogdomain.StatusRunning),
		now,
		now,
		orgID,
		id,
		string(timelogdomain.StatusPaused),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter timelogdomain.ListFilter) ([]timelogdomain.TimeLog, error) {
	query := `SELECT ` + logColumns + ` FROM time_logs WHERE org_id = ?`
	args := []any{filter.OrgID}
	if filter.WorkerID != nil {
		query += ` AND worker_id = ?`
		args = append(args, *filter.WorkerID)
	}
	if filter.OrderID != nil {
		query += ` AND order_id = ?`
		args = append(args, *filter.OrderID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.AfterCreatedAt != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, *filter.AfterCreatedAt, *filter.AfterCreatedAt, filter.AfterID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var logs []timelogdomain.TimeLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM time_logs WHERE status IN (?, ?)`,
		string(timelogdomain.StatusRunning),
		string(timelogdomain.StatusPaused),
	).Scan(&count).Error
	return count, err
}
