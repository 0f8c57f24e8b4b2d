package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, update *StatusUpdate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*StatusUpdate, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]StatusUpdate, error)
	// MarkApplied only moves pending rows. Returns whether a row changed.
	MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, attempt Attempt) error
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}

// Attempt is the bookkeeping written after a failed apply.
type Attempt struct {
	Attempts      int
	State         State
	NextAttemptAt time.Time
	LastError     string
	Now           time.Time
}
