package models

import (
	"errors"
	"time"
)

// CountChangedEvent is published to Kafka after every committed count
// mutation. It carries the aggregate total as of the commit so downstream
// consumers (report generator, dashboards) never have to re-sum counters.
type CountChangedEvent struct {
	EventID         string    `json:"event_id"`
	AreaCounterID   string    `json:"area_counter_id"`
	OldCount        int       `json:"old_count"`
	NewCount        int       `json:"new_count"`
	Action          string    `json:"action"`
	TotalAttendance int       `json:"total_attendance"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewCountChangedEvent validates the action tag before the event goes on
// the wire.
func NewCountChangedEvent(eventID, counterID string, oldCount, newCount int, action string, total int, ts time.Time) (CountChangedEvent, error) {
	if !IsValidAction(action) {
		return CountChangedEvent{}, errors.New("unknown count action: " + action)
	}
	return CountChangedEvent{
		EventID:         eventID,
		AreaCounterID:   counterID,
		OldCount:        oldCount,
		NewCount:        newCount,
		Action:          action,
		TotalAttendance: total,
		Timestamp:       ts,
	}, nil
}

// AreaTemplateEvent is consumed from the venue service's template topic.
// UpdatedAt is a Unix timestamp, matching the publisher's wire format.
type AreaTemplateEvent struct {
	TemplateID   string `json:"template_id"`
	VenueID      string `json:"venue_id"`
	Name         string `json:"name"`
	AreaType     string `json:"area_type"`
	Capacity     int    `json:"capacity"`
	DisplayOrder int    `json:"display_order"`
	Active       bool   `json:"active"`
	UpdatedAt    int64  `json:"updated_at"`
}
