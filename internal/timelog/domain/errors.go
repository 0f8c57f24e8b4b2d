package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrActiveTimerExists = errors.New("active_timer_exists")
	ErrNotFound          = errors.New("time_log_not_found")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrForbidden         = errors.New("time_log_forbidden")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidCursor     = errors.New("invalid_cursor")
	ErrBusy              = errors.New("worker_busy")
)

// ConflictError rejects a start while the worker still has an active log.
type ConflictError struct {
	WorkerID    snowflake.ID
	ActiveLogID snowflake.ID
}

func (e *ConflictError) Error() string {
	return "active timer already exists"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrActiveTimerExists
}

// PersistenceError wraps a store failure with what is needed to reproduce it.
type PersistenceError struct {
	Op        string
	OrgID     snowflake.ID
	OrderID   snowflake.ID
	TimeLogID snowflake.ID
	Inputs    map[string]string
	Err       error
}

func (e *PersistenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Op)
	if e.OrderID != 0 {
		fmt.Fprintf(&b, " order=%s", e.OrderID)
	}
	if e.TimeLogID != 0 {
		fmt.Fprintf(&b, " time_log=%s", e.TimeLogID)
	}
	keys := make([]string, 0, len(e.Inputs))
	for k := range e.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Inputs[k])
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
