package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

var ErrInvalidStatus = errors.New("invalid_status")

func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusRunning, StatusPaused, StatusCompleted:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// TimeLog is one worker's work session against one order.
type TimeLog struct {
	ID                 snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID     `json:"organization_id" gorm:"column:org_id;not null"`
	OrderID            snowflake.ID     `json:"order_id" gorm:"not null"`
	WorkerID           snowflake.ID     `json:"worker_id" gorm:"not null"`
	StartTime          time.Time        `json:"start_time" gorm:"not null"`
	EndTime            *time.Time       `json:"end_time,omitempty"`
	ResumedAt          *time.Time       `json:"resumed_at,omitempty"`
	AccumulatedSeconds int64            `json:"accumulated_seconds" gorm:"not null;default:0"`
	Status             Status           `json:"status" gorm:"type:text;not null"`
	HourlyRate         decimal.Decimal  `json:"hourly_rate" gorm:"type:numeric;not null"`
	DurationSeconds    *int64           `json:"duration_seconds,omitempty"`
	TotalCost          *decimal.Decimal `json:"total_cost,omitempty" gorm:"type:numeric"`
	Version            int64            `json:"version" gorm:"not null;default:1"`
	CreatedAt          time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time        `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (TimeLog) TableName() string { return "time_logs" }

// Active reports whether the log still holds the worker's timer slot.
func (l TimeLog) Active() bool {
	return l.Status == StatusRunning || l.Status == StatusPaused
}

// ElapsedSeconds is the worked time as of now. The open segment never counts negative.
func (l TimeLog) ElapsedSeconds(now time.Time) int64 {
	total := l.AccumulatedSeconds
	if l.Status != StatusRunning {
		return max(total, 0)
	}
	segmentStart := l.StartTime
	if l.ResumedAt != nil {
		segmentStart = *l.ResumedAt
	}
	if segment := int64(now.Sub(segmentStart) / time.Second); segment > 0 {
		total += segment
	}
	return max(total, 0)
}

var secondsPerHour = decimal.NewFromInt(3600)

// Cost is hourlyRate * seconds / 3600 rounded half away from zero to cents.
func Cost(hourlyRate decimal.Decimal, seconds int64) decimal.Decimal {
	if seconds <= 0 {
		return decimal.Zero.Round(2)
	}
	return hourlyRate.Mul(decimal.NewFromInt(seconds)).DivRound(secondsPerHour, 2)
}
