package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Count actions recorded in a counter's history.
const (
	ActionIncrement  = "INCREMENT"
	ActionDecrement  = "DECREMENT"
	ActionReset      = "RESET"
	ActionManualEdit = "MANUAL_EDIT"
	ActionUndo       = "UNDO"
	ActionRedo       = "REDO"
)

// IsValidAction reports whether action is one of the known history tags.
func IsValidAction(action string) bool {
	switch action {
	case ActionIncrement, ActionDecrement, ActionReset, ActionManualEdit, ActionUndo, ActionRedo:
		return true
	}
	return false
}

// CountHistoryItem is one entry in a counter's append-only history.
// OldCount always equals the counter's count immediately before the
// transaction that emitted the item.
type CountHistoryItem struct {
	Timestamp time.Time `json:"timestamp"`
	OldCount  int       `json:"oldCount"`
	NewCount  int       `json:"newCount"`
	Action    string    `json:"action"`
}

// CountHistory is the serialized history column. It round-trips as a JSON
// array; an empty history serializes to [], never null.
type CountHistory []CountHistoryItem

func (h CountHistory) Value() (driver.Value, error) {
	if h == nil {
		h = CountHistory{}
	}
	return json.Marshal(h)
}

func (h *CountHistory) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*h = CountHistory{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported count_history column type %T", src)
	}
	if len(data) == 0 {
		*h = CountHistory{}
		return nil
	}
	return json.Unmarshal(data, h)
}

// AreaCounter is one area's live count for an event. Counters carry no
// mutation API of their own; every change flows through the attendance
// service so that history and the event aggregate stay synchronized.
type AreaCounter struct {
	bun.BaseModel `bun:"table:area_counters,alias:ac"`

	ID             string       `bun:"id,pk" json:"id"`
	EventID        string       `bun:"event_id" json:"event_id"`
	AreaTemplateID string       `bun:"area_template_id" json:"area_template_id"`
	Count          int          `bun:"count" json:"count"`
	Capacity       int          `bun:"capacity" json:"capacity"`
	CountHistory   CountHistory `bun:"count_history,type:jsonb" json:"count_history"`
	Notes          string       `bun:"notes" json:"notes"`
	LastUpdated    time.Time    `bun:"last_updated" json:"last_updated"`
}
