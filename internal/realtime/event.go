package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Table string

const (
	TableOrders         Table = "orders"
	TableInventoryItems Table = "inventory_items"
	TableTimeLogs       Table = "time_logs"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

var (
	ErrInvalidTable   = errors.New("invalid_table")
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidOrg     = errors.New("invalid_organization")
	ErrInvalidEvent   = errors.New("invalid_event")
)

func ParseTable(value string) (Table, error) {
	table := Table(strings.ToLower(strings.TrimSpace(value)))
	switch table {
	case TableOrders, TableInventoryItems, TableTimeLogs:
		return table, nil
	default:
		return "", ErrInvalidTable
	}
}

// Event is a committed row change for one tenant and table.
type Event struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	Table       Table           `json:"table"`
	Kind        Kind            `json:"kind"`
	RecordID    string          `json:"record_id"`
	Version     int64           `json:"version"`
	New         json.RawMessage `json:"new,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

func (e Event) validate() error {
	if strings.TrimSpace(e.OrgID) == "" {
		return ErrInvalidOrg
	}
	if _, err := ParseTable(string(e.Table)); err != nil {
		return err
	}
	if e.ID == "" || e.RecordID == "" {
		return ErrInvalidEvent
	}
	return nil
}
