package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"gorm.io/gorm"
)

type Service interface {
	// Enqueue records the intent inside the caller's transaction.
	Enqueue(ctx context.Context, tx *gorm.DB, req EnqueueRequest) (*StatusUpdate, error)
	Apply(ctx context.Context, id snowflake.ID) (Outcome, error)
	ProcessDue(ctx context.Context, limit int) (ProcessResult, error)
	PendingCount(ctx context.Context) (int64, error)
}

type EnqueueRequest struct {
	OrgID     snowflake.ID
	OrderID   snowflake.ID
	TimeLogID snowflake.ID
	From      *orderdomain.Status
	To        orderdomain.Status
	Reason    string
	Metadata  map[string]any
}

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRetrying Outcome = "retrying"
	OutcomeFailed   Outcome = "failed"
)

type ProcessResult struct {
	Processed int
	Applied   int
	Skipped   int
	Retrying  int
	Failed    int
}

var (
	ErrNotFound       = errors.New("status_update_not_found")
	ErrInvalidRequest = errors.New("invalid_status_update")
)

// Backoff returns base doubled once per previous attempt, capped at ceiling.
func Backoff(base, ceiling time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempts <= 0 {
		return min(base, ceiling)
	}
	if attempts >= 62 {
		return ceiling
	}
	delay := base << attempts
	if delay <= 0 || delay > ceiling || delay>>attempts != base {
		return ceiling
	}
	return delay
}
