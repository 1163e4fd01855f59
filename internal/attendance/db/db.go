package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-attendance/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetEventByID returns the event or models.ErrEventNotFound.
func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, models.ErrEventNotFound)
		}
		return nil, err
	}
	return &event, nil
}

// GetCounterByID returns the counter, checking that it belongs to the event.
func (d *DB) GetCounterByID(ctx context.Context, eventID, counterID string) (*models.AreaCounter, error) {
	var counter models.AreaCounter
	err := d.Bun.NewSelect().
		Model(&counter).
		Where("ac.id = ?", counterID).
		Where("ac.event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("counter %s in event %s: %w", counterID, eventID, models.ErrCounterNotFound)
		}
		return nil, err
	}
	return &counter, nil
}

// GetCountersByEvent returns the event's counters ordered by the display
// order of their area templates. Counters whose template has since been
// removed from the catalog sort last.
func (d *DB) GetCountersByEvent(ctx context.Context, eventID string) ([]models.AreaCounter, error) {
	counters := []models.AreaCounter{}
	err := d.Bun.NewSelect().
		Model(&counters).
		Join("LEFT JOIN area_templates AS t ON t.id = ac.area_template_id").
		Where("ac.event_id = ?", eventID).
		OrderExpr("COALESCE(t.display_order, 999999) ASC, ac.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return counters, nil
}

// GetSnapshot returns the event aggregate together with all of its counters.
func (d *DB) GetSnapshot(ctx context.Context, eventID string) (*models.EventSnapshot, error) {
	event, err := d.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	counters, err := d.GetCountersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &models.EventSnapshot{Event: *event, Counters: counters}, nil
}

// CreateEvent inserts the event and its fanned-out counters in one
// transaction, so a half-created event is never observable.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event, counters []models.AreaCounter) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if len(counters) > 0 {
			if _, err := tx.NewInsert().Model(&counters).Exec(ctx); err != nil {
				return fmt.Errorf("insert counters: %w", err)
			}
		}
		return nil
	})
}

// ApplyCount is the transactional primitive behind every count mutation.
// Inside one transaction it re-checks the lock, reads the counter's current
// count as oldCount, writes the new count with one appended history item,
// and recomputes the event's total attendance as the sum over all sibling
// counters. Either all of it commits or none of it does.
func (d *DB) ApplyCount(ctx context.Context, eventID, counterID string, newCount int, action string) (*models.AreaCounter, *models.Event, error) {
	var counter models.AreaCounter
	var event models.Event

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().
			Model(&event).
			Where("id = ?", eventID).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("event %s: %w", eventID, models.ErrEventNotFound)
			}
			return err
		}
		if event.IsLocked {
			return fmt.Errorf("event %s: %w", eventID, models.ErrEventLocked)
		}

		if err := tx.NewSelect().
			Model(&counter).
			Where("ac.id = ?", counterID).
			Where("ac.event_id = ?", eventID).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("counter %s in event %s: %w", counterID, eventID, models.ErrCounterNotFound)
			}
			return err
		}

		now := time.Now().UTC()
		counter.CountHistory = append(counter.CountHistory, models.CountHistoryItem{
			Timestamp: now,
			OldCount:  counter.Count,
			NewCount:  newCount,
			Action:    action,
		})
		counter.Count = newCount
		counter.LastUpdated = now

		if _, err := tx.NewUpdate().
			Model(&counter).
			Column("count", "count_history", "last_updated").
			Where("id = ?", counter.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update counter: %w", err)
		}

		var total int
		if err := tx.NewSelect().
			Model((*models.AreaCounter)(nil)).
			ColumnExpr("COALESCE(SUM(count), 0)").
			Where("event_id = ?", eventID).
			Scan(ctx, &total); err != nil {
			return fmt.Errorf("recompute total: %w", err)
		}

		event.TotalAttendance = total
		event.UpdatedAt = now
		if _, err := tx.NewUpdate().
			Model(&event).
			Column("total_attendance", "updated_at").
			Where("id = ?", event.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update event total: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &counter, &event, nil
}

// SetLock flips the event's lock flag. Locking stamps CompletedAt;
// unlocking clears it. Counters are never touched.
func (d *DB) SetLock(ctx context.Context, eventID string, locked bool) (*models.Event, error) {
	event, err := d.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	event.IsLocked = locked
	event.UpdatedAt = now
	if locked {
		event.CompletedAt = &now
	} else {
		event.CompletedAt = nil
	}

	_, err = d.Bun.NewUpdate().
		Model(event).
		Column("is_locked", "completed_at", "updated_at").
		Where("id = ?", event.ID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}
	return event, nil
}

// DeleteEvent removes the event and cascades its counters. The dependency
// check against linked records (incident reports and the like) is owned by
// the caller's layer, not here.
func (d *DB) DeleteEvent(ctx context.Context, eventID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.Event)(nil)).
			Where("id = ?", eventID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("event %s: %w", eventID, models.ErrEventNotFound)
		}
		if _, err := tx.NewDelete().
			Model((*models.AreaCounter)(nil)).
			Where("event_id = ?", eventID).
			Exec(ctx); err != nil {
			return err
		}
		return nil
	})
}

// UpdateCounterNotes writes caller-owned notes. Notes are not a count
// mutation: no history item, no aggregate recompute, no lock check.
func (d *DB) UpdateCounterNotes(ctx context.Context, eventID, counterID, notes string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.AreaCounter)(nil)).
		Set("notes = ?", notes).
		Where("id = ?", counterID).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("counter %s in event %s: %w", counterID, eventID, models.ErrCounterNotFound)
	}
	return nil
}

// UpdateEventNotes writes caller-owned event metadata.
func (d *DB) UpdateEventNotes(ctx context.Context, eventID, notes, weather string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("notes = ?", notes).
		Set("weather = ?", weather).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("event %s: %w", eventID, models.ErrEventNotFound)
	}
	return nil
}
