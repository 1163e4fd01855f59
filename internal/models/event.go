package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is one counted occurrence at a venue. TotalAttendance is derived:
// after every committed mutation it equals the sum of Count over the event's
// area counters. TotalCapacity is fixed at creation time.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string     `bun:"id,pk" json:"id"`
	VenueID         string     `bun:"venue_id" json:"venue_id"`
	EventTypeID     string     `bun:"event_type_id,nullzero" json:"event_type_id,omitempty"`
	Date            time.Time  `bun:"date" json:"date"`
	EventType       string     `bun:"event_type" json:"event_type"`
	EventName       string     `bun:"event_name" json:"event_name"`
	TotalCapacity   int        `bun:"total_capacity" json:"total_capacity"`
	TotalAttendance int        `bun:"total_attendance" json:"total_attendance"`
	CountedBy       string     `bun:"counted_by" json:"counted_by"`
	Notes           string     `bun:"notes" json:"notes"`
	Weather         string     `bun:"weather" json:"weather"`
	IsLocked        bool       `bun:"is_locked" json:"is_locked"`
	CompletedAt     *time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at" json:"updated_at"`
}

type CreateEventRequest struct {
	VenueID     string    `json:"venue_id"`
	EventTypeID string    `json:"event_type_id,omitempty"`
	EventType   string    `json:"event_type"`
	EventName   string    `json:"event_name"`
	Date        time.Time `json:"date"`
	CountedBy   string    `json:"counted_by"`
	Notes       string    `json:"notes,omitempty"`
	Weather     string    `json:"weather,omitempty"`
}

// EventSnapshot is the read model served to subscribers: the aggregate plus
// all of its counters in display order. It is only ever built after a
// committed transaction, never mid-transaction.
type EventSnapshot struct {
	Event    Event         `json:"event"`
	Counters []AreaCounter `json:"counters"`
}
