package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"gorm.io/datatypes"
)

type State string

const (
	StatePending State = "pending"
	StateApplied State = "applied"
	StateFailed  State = "failed"
)

const (
	ReasonTimerStart = "timer_start"
	ReasonTimerStop  = "timer_stop"
)

// StatusUpdate is an order-status change recorded alongside a timer transition and
// applied after the primary transaction commits.
type StatusUpdate struct {
	ID            snowflake.ID        `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID        `json:"organization_id" gorm:"column:org_id;not null"`
	OrderID       snowflake.ID        `json:"order_id" gorm:"not null"`
	TimeLogID     snowflake.ID        `json:"time_log_id" gorm:"not null"`
	FromStatus    *orderdomain.Status `json:"from_status,omitempty"`
	ToStatus      orderdomain.Status  `json:"to_status" gorm:"not null"`
	Reason        string              `json:"reason" gorm:"not null"`
	State         State               `json:"state" gorm:"not null"`
	Attempts      int                 `json:"attempts" gorm:"not null"`
	NextAttemptAt time.Time           `json:"next_attempt_at" gorm:"not null"`
	LastError     *string             `json:"last_error,omitempty"`
	Metadata      datatypes.JSONMap   `json:"metadata,omitempty"`
	CreatedAt     time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time           `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (StatusUpdate) TableName() string { return "order_status_updates" }
