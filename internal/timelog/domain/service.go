package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"github.com/smallbiznis/shopfloor/pkg/db/pagination"
)

type Service interface {
	Start(ctx context.Context, req StartRequest) (*Response, error)
	Stop(ctx context.Context, req StopRequest) (*StopResult, error)
	Pause(ctx context.Context, id string) (*Response, error)
	Resume(ctx context.Context, id string) (*Response, error)
	Active(ctx context.Context) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

type StartRequest struct {
	OrderID string `json:"order_id"`
}

type StopRequest struct {
	TimeLogID        string `json:"-"`
	FinalOrderStatus string `json:"final_order_status"`
}

type StopResult struct {
	TimeLog        Response           `json:"time_log"`
	NewOrderStatus orderdomain.Status `json:"new_order_status"`
}

type ListRequest struct {
	pagination.Pagination
	WorkerID string `form:"worker_id"`
	OrderID  string `form:"order_id"`
	Status   string `form:"status"`
}

type ListResponse struct {
	Data     []Response          `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Response struct {
	ID                 string           `json:"id"`
	OrganizationID     string           `json:"organization_id"`
	OrderID            string           `json:"order_id"`
	WorkerID           string           `json:"worker_id"`
	Status             Status           `json:"status"`
	StartTime          time.Time        `json:"start_time"`
	EndTime            *time.Time       `json:"end_time,omitempty"`
	ResumedAt          *time.Time       `json:"resumed_at,omitempty"`
	AccumulatedSeconds int64            `json:"accumulated_seconds"`
	ElapsedSeconds     int64            `json:"elapsed_seconds"`
	HourlyRate         decimal.Decimal  `json:"hourly_rate"`
	DurationSeconds    *int64           `json:"duration_seconds,omitempty"`
	TotalCost          *decimal.Decimal `json:"total_cost,omitempty"`
	Version            int64            `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ToResponse renders a log with its elapsed time as of now.
func ToResponse(l *TimeLog, now time.Time) *Response {
	elapsed := l.ElapsedSeconds(now)
	if l.DurationSeconds != nil {
		elapsed = *l.DurationSeconds
	}
	return &Response{
		ID:                 l.ID.String(),
		OrganizationID:     l.OrgID.String(),
		OrderID:            l.OrderID.String(),
		WorkerID:           l.WorkerID.String(),
		Status:             l.Status,
		StartTime:          l.StartTime,
		EndTime:            l.EndTime,
		ResumedAt:          l.ResumedAt,
		AccumulatedSeconds: l.AccumulatedSeconds,
		ElapsedSeconds:     elapsed,
		HourlyRate:         l.HourlyRate,
		DurationSeconds:    l.DurationSeconds,
		TotalCost:          l.TotalCost,
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}
