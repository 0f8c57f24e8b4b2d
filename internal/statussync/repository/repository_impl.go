package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	statusdomain "github.com/smallbiznis/shopfloor/internal/statussync/domain"
	"gorm.io/gorm"
)

const updateColumns = `id, org_id, order_id, time_log_id, from_status, to_status, reason, state,
	attempts, next_attempt_at, last_error, metadata, created_at, updated_at`

type repo struct{}

func Provide() statusdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, update *statusdomain.StatusUpdate) error {
	var fromStatus any
	if update.FromStatus != nil {
		fromStatus = string(*update.FromStatus)
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_status_updates (`+updateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		update.ID,
		update.OrgID,
		update.OrderID,
		update.TimeLogID,
		fromStatus,
		string(update.ToStatus),
		update.Reason,
		string(update.State),
		update.Attempts,
		update.NextAttemptAt,
		update.LastError,
		update.Metadata,
		update.CreatedAt,
		update.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*statusdomain.StatusUpdate, error) {
	var update statusdomain.StatusUpdate
	err := db.WithContext(ctx).Raw(
		`SELECT `+updateColumns+` FROM order_status_updates WHERE id = ?`,
		id,
	).Scan(&update).Error
	if err != nil {
		return nil, err
	}
	if update.ID == 0 {
		return nil, nil
	}
	return &update, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]statusdomain.StatusUpdate, error) {
	var updates []statusdomain.StatusUpdate
	err := db.WithContext(ctx).Raw(
		`SELECT `+updateColumns+` FROM order_status_updates
		 WHERE state = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		string(statusdomain.StatePending),
		now,
		limit,
	).Scan(&updates).Error
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE order_status_updates
		 SET state = ?, last_error = NULL, updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(statusdomain.StateApplied),
		now,
		id,
		string(statusdomain.StatePending),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, attempt statusdomain.Attempt) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_status_updates
		 SET attempts = ?, state = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		attempt.Attempts,
		string(attempt.State),
		attempt.NextAttemptAt,
		attempt.LastError,
		attempt.Now,
		id,
		string(statusdomain.StatePending),
	).Error
}

func (r *repo) CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM order_status_updates WHERE state = ?`,
		string(statusdomain.StatePending),
	).Scan(&count).Error
	return count, err
}
