package domain

import (
	"errors"

	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	workerdomain "github.com/smallbiznis/shopfloor/internal/worker/domain"
)

// StartOutcome is the caller-facing result of starting a timer.
type StartOutcome struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message"`
	TimeLogID string `json:"time_log_id,omitempty"`
}

// StopOutcome is the caller-facing result of stopping a timer.
type StopOutcome struct {
	Success        bool               `json:"success"`
	Error          string             `json:"error,omitempty"`
	Message        string             `json:"message"`
	NewOrderStatus orderdomain.Status `json:"new_order_status,omitempty"`
}

func NewStartOutcome(resp *Response, err error) StartOutcome {
	if err != nil {
		code, message := describe(err)
		return StartOutcome{Error: code, Message: message}
	}
	return StartOutcome{Success: true, Message: "Timer started", TimeLogID: resp.ID}
}

func NewStopOutcome(result *StopResult, err error) StopOutcome {
	if err != nil {
		code, message := describe(err)
		return StopOutcome{Error: code, Message: message}
	}
	return StopOutcome{Success: true, Message: "Timer stopped", NewOrderStatus: result.NewOrderStatus}
}

// Message renders err for display. Unknown failures get a generic message.
func Message(err error) string {
	_, message := describe(err)
	return message
}

// Code is the stable machine-readable name for err.
func Code(err error) string {
	code, _ := describe(err)
	return code
}

func describe(err error) (code, message string) {
	var stockErr *inventorydomain.InsufficientStockError
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &stockErr):
		return "insufficient_stock", stockErr.Error()
	case errors.Is(err, ErrActiveTimerExists):
		return "active_timer_exists", "active timer already exists"
	case errors.Is(err, ErrBusy):
		return "worker_busy", "another timer action is in progress"
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, orderdomain.ErrNotFound):
		return "order_not_found", "order not found"
	case errors.Is(err, inventorydomain.ErrNotFound):
		return "inventory_item_not_found", "linked inventory item not found"
	case errors.Is(err, ErrNotFound):
		return "time_log_not_found", "time log not found"
	case errors.Is(err, ErrForbidden):
		return "time_log_forbidden", "time log belongs to another worker"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition", "time log cannot make that transition"
	case errors.Is(err, ErrInvalidID):
		return "invalid_id", "invalid id"
	case errors.Is(err, orderdomain.ErrInvalidStatus):
		return "invalid_order_status", "invalid order status"
	case errors.Is(err, workerdomain.ErrWorkerInactive):
		return "worker_inactive", "worker is inactive"
	case errors.Is(err, workerdomain.ErrUnauthorized):
		return "unauthorized", "unauthorized"
	default:
		return "internal_error", "timer operation failed, please retry"
	}
}
