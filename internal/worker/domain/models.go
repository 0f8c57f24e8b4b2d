package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Worker is a person who logs time against orders.
type Worker struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null"`
	Name       string          `json:"name" gorm:"type:text;not null"`
	HourlyRate decimal.Decimal `json:"hourly_rate" gorm:"type:numeric;not null"`
	Active     bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Worker) TableName() string { return "workers" }

// Identity is the acting worker for a request.
type Identity struct {
	OrgID      snowflake.ID
	WorkerID   snowflake.ID
	HourlyRate decimal.Decimal
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Worker, error)
}

type Service interface {
	// Resolve loads the identity for the org and worker ids carried by ctx.
	Resolve(ctx context.Context) (*Identity, error)
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrWorkerInactive = errors.New("worker_inactive")
)
