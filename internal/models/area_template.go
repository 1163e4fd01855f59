package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AreaTemplate is a local mirror of the venue service's area catalog. The
// venue service owns templates; this table is kept in sync by the Kafka
// consumer and is only read here, to fan out counters at event creation and
// to order projection snapshots.
type AreaTemplate struct {
	bun.BaseModel `bun:"table:area_templates"`

	ID           string    `bun:"id,pk" json:"id"`
	VenueID      string    `bun:"venue_id" json:"venue_id"`
	Name         string    `bun:"name" json:"name"`
	AreaType     string    `bun:"area_type" json:"area_type"`
	Capacity     int       `bun:"capacity" json:"capacity"`
	DisplayOrder int       `bun:"display_order" json:"display_order"`
	Active       bool      `bun:"active" json:"active"`
	UpdatedAt    time.Time `bun:"updated_at" json:"updated_at"`
}
