package db

import (
	"context"
	"fmt"

	"ms-attendance/internal/models"
)

// GetActiveTemplates returns the venue's active area templates in display
// order. Event creation fans out one counter per template returned here.
func (d *DB) GetActiveTemplates(ctx context.Context, venueID string) ([]models.AreaTemplate, error) {
	templates := []models.AreaTemplate{}
	err := d.Bun.NewSelect().
		Model(&templates).
		Where("venue_id = ?", venueID).
		Where("active = ?", true).
		Order("display_order", "id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// UpsertTemplate applies a catalog update from the venue service. The venue
// service owns templates; this mirror is write-through from its topic only.
func (d *DB) UpsertTemplate(ctx context.Context, template models.AreaTemplate) error {
	_, err := d.Bun.NewInsert().
		Model(&template).
		On("CONFLICT (id) DO UPDATE").
		Set("venue_id = EXCLUDED.venue_id").
		Set("name = EXCLUDED.name").
		Set("area_type = EXCLUDED.area_type").
		Set("capacity = EXCLUDED.capacity").
		Set("display_order = EXCLUDED.display_order").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", template.ID, err)
	}
	return nil
}
