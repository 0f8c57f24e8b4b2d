package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*TimeLog, error)
	FindActiveByWorker(ctx context.Context, db *gorm.DB, orgID, workerID snowflake.ID) (*TimeLog, error)
	Insert(ctx context.Context, db *gorm.DB, log *TimeLog) error
	// Complete closes an active log still at req.Version. Returns false when the log
	// was closed or changed since it was read.
	Complete(ctx context.Context, db *gorm.DB, req CompleteParams) (bool, error)
	Pause(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, accumulatedSeconds int64, now time.Time) (bool, error)
	Resume(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]TimeLog, error)
	CountActive(ctx context.Context, db *gorm.DB) (int64, error)
}

type CompleteParams struct {
	OrgID           snowflake.ID
	ID              snowflake.ID
	Version         int64
	EndTime         time.Time
	DurationSeconds int64
	TotalCost       decimal.Decimal
}

type ListFilter struct {
	OrgID    snowflake.ID
	WorkerID *snowflake.ID
	OrderID  *snowflake.ID
	Status   *Status
	// Rows strictly after this (created_at, id) position in descending order.
	AfterCreatedAt *time.Time
	AfterID        snowflake.ID
	Limit          int
}
