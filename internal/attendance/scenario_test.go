package attendance_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-attendance/internal/attendance"
	"ms-attendance/internal/attendance/actionlog"
	attdb "ms-attendance/internal/attendance/db"
	"ms-attendance/internal/models"
)

// stubLease always grants the writer lease; single-instance tests have no
// competing replica.
type stubLease struct{}

func (stubLease) AcquireWrite(eventID, ownerID string) (bool, error) { return true, nil }
func (stubLease) ReleaseWrite(eventID, ownerID string) error         { return nil }

type stubPublisher struct {
	mu     sync.Mutex
	events []models.CountChangedEvent
}

func (p *stubPublisher) PublishCountChanged(event models.CountChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type captureEmitter struct {
	mu        sync.Mutex
	snapshots []models.EventSnapshot
}

func (e *captureEmitter) Emit(snapshot models.EventSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots = append(e.snapshots, snapshot)
}

func (e *captureEmitter) last() models.EventSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshots[len(e.snapshots)-1]
}

func newScenario(t *testing.T) (*attendance.AttendanceService, *actionlog.ActionLog, *stubPublisher, *captureEmitter) {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	attdb.Migrate(bunDB)

	database := &attdb.DB{Bun: bunDB}
	for i, name := range []string{"Main Hall", "Balcony", "Overflow"} {
		require.NoError(t, database.UpsertTemplate(context.Background(), models.AreaTemplate{
			ID:           "tmpl" + name[:1],
			VenueID:      "venue1",
			Name:         name,
			AreaType:     "seating",
			Capacity:     100,
			DisplayOrder: i + 1,
			Active:       true,
			UpdatedAt:    time.Now().UTC(),
		}))
	}

	publisher := &stubPublisher{}
	emitter := &captureEmitter{}
	service := attendance.NewAttendanceService(database, stubLease{}, publisher, emitter)
	return service, actionlog.NewActionLog(service), publisher, emitter
}

func TestFullCountingSession(t *testing.T) {
	ctx := context.Background()
	service, _, publisher, emitter := newScenario(t)

	snapshot, err := service.CreateEvent(ctx, models.CreateEventRequest{
		VenueID:   "venue1",
		EventName: "Sunday 9am",
		Date:      time.Now().UTC(),
		CountedBy: "staff1",
	})
	require.NoError(t, err)
	require.Len(t, snapshot.Counters, 3)
	assert.Equal(t, 300, snapshot.Event.TotalCapacity)
	assert.Equal(t, 0, snapshot.Event.TotalAttendance)

	eventID := snapshot.Event.ID
	area1 := snapshot.Counters[0].ID
	area2 := snapshot.Counters[1].ID

	// Three increments of five on the first area
	for i := 0; i < 3; i++ {
		_, err := service.Increment(ctx, eventID, area1, 5)
		require.NoError(t, err)
	}
	current, err := service.Snapshot(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 15, current.Event.TotalAttendance)
	assert.Equal(t, 15, current.Counters[0].Count)

	result, err := service.Decrement(ctx, eventID, area1, 2)
	require.NoError(t, err)
	assert.Equal(t, 13, result.NewCount)
	assert.Equal(t, 13, result.Event.TotalAttendance)

	// Finalize. Every further count edit is refused.
	locked, err := service.LockEvent(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked)
	require.NotNil(t, locked.CompletedAt)

	_, err = service.Increment(ctx, eventID, area1, 1)
	assert.ErrorIs(t, err, models.ErrEventLocked)

	current, err = service.Snapshot(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 13, current.Event.TotalAttendance)

	_, err = service.UnlockEvent(ctx, eventID)
	require.NoError(t, err)

	// Resetting an untouched area records the reset without moving totals
	result, err = service.Reset(ctx, eventID, area2)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewCount)
	require.Len(t, result.Counter.CountHistory, 1)
	item := result.Counter.CountHistory[0]
	assert.Equal(t, models.ActionReset, item.Action)
	assert.Equal(t, 0, item.OldCount)
	assert.Equal(t, 0, item.NewCount)
	assert.Equal(t, 13, result.Event.TotalAttendance)

	// Every emitted snapshot is internally consistent
	for _, snap := range emitter.snapshots {
		sum := 0
		for _, counter := range snap.Counters {
			sum += counter.Count
		}
		assert.Equal(t, snap.Event.TotalAttendance, sum)
	}

	// One change event per committed mutation: 3 increments, 1 decrement,
	// 1 reset
	assert.Len(t, publisher.events, 5)
	final := publisher.events[len(publisher.events)-1]
	assert.Equal(t, models.ActionReset, final.Action)
	assert.Equal(t, 13, final.TotalAttendance)
}

func TestUndoRedoAgainstRealStore(t *testing.T) {
	ctx := context.Background()
	service, log, _, emitter := newScenario(t)

	snapshot, err := service.CreateEvent(ctx, models.CreateEventRequest{
		VenueID:   "venue1",
		EventName: "Wednesday Evening",
		Date:      time.Now().UTC(),
		CountedBy: "staff2",
	})
	require.NoError(t, err)
	eventID := snapshot.Event.ID
	counterID := snapshot.Counters[0].ID

	result, err := service.SetCount(ctx, eventID, counterID, 7)
	require.NoError(t, err)
	log.Record(eventID, counterID, result.OldCount, result.NewCount)

	undone, err := log.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, undone.NewCount)
	assert.Equal(t, 0, undone.Event.TotalAttendance)

	redone, err := log.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, redone.NewCount)
	assert.Equal(t, 7, redone.Event.TotalAttendance)

	// Replays append their own history items behind the original edit
	history := redone.Counter.CountHistory
	require.Len(t, history, 3)
	assert.Equal(t, models.ActionManualEdit, history[0].Action)
	assert.Equal(t, models.ActionUndo, history[1].Action)
	assert.Equal(t, models.ActionRedo, history[2].Action)
	assert.Equal(t, 7, history[1].OldCount)
	assert.Equal(t, 0, history[1].NewCount)
	assert.Equal(t, 0, history[2].OldCount)
	assert.Equal(t, 7, history[2].NewCount)

	latest := emitter.last()
	assert.Equal(t, 7, latest.Event.TotalAttendance)
}

func TestConcurrentIncrementsStaySerialized(t *testing.T) {
	ctx := context.Background()
	service, _, _, emitter := newScenario(t)

	first, err := service.CreateEvent(ctx, models.CreateEventRequest{
		VenueID:   "venue1",
		EventName: "Morning Service",
		Date:      time.Now().UTC(),
		CountedBy: "staff1",
	})
	require.NoError(t, err)
	second, err := service.CreateEvent(ctx, models.CreateEventRequest{
		VenueID:   "venue1",
		EventName: "Evening Service",
		Date:      time.Now().UTC(),
		CountedBy: "staff2",
	})
	require.NoError(t, err)

	firstCounter := first.Counters[0].ID
	secondCounter := second.Counters[0].ID

	// Writers on one event serialize; writers on different events are
	// independent
	const workers = 8
	const perWorker = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := service.Increment(ctx, first.Event.ID, firstCounter, 1)
				assert.NoError(t, err)
				_, err = service.Increment(ctx, second.Event.ID, secondCounter, 2)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snapshot, err := service.Snapshot(ctx, first.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, snapshot.Counters[0].Count)
	assert.Equal(t, workers*perWorker, snapshot.Event.TotalAttendance)

	// No increment was lost or applied against a stale read: each history
	// item starts from the previous item's result
	history := snapshot.Counters[0].CountHistory
	require.Len(t, history, workers*perWorker)
	assert.Equal(t, 0, history[0].OldCount)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].NewCount, history[i].OldCount)
	}

	snapshot, err = service.Snapshot(ctx, second.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*workers*perWorker, snapshot.Event.TotalAttendance)

	for _, snap := range emitter.snapshots {
		sum := 0
		for _, counter := range snap.Counters {
			sum += counter.Count
		}
		assert.Equal(t, snap.Event.TotalAttendance, sum)
	}
}

func TestUndoBlockedByLockStaysReplayable(t *testing.T) {
	ctx := context.Background()
	service, log, _, _ := newScenario(t)

	snapshot, err := service.CreateEvent(ctx, models.CreateEventRequest{
		VenueID:   "venue1",
		EventName: "Special Event",
		Date:      time.Now().UTC(),
		CountedBy: "staff3",
	})
	require.NoError(t, err)
	eventID := snapshot.Event.ID
	counterID := snapshot.Counters[0].ID

	result, err := service.Increment(ctx, eventID, counterID, 4)
	require.NoError(t, err)
	log.Record(eventID, counterID, result.OldCount, result.NewCount)

	_, err = service.LockEvent(ctx, eventID)
	require.NoError(t, err)

	_, err = log.Undo(ctx)
	assert.ErrorIs(t, err, models.ErrEventLocked)
	assert.True(t, log.CanUndo())

	_, err = service.UnlockEvent(ctx, eventID)
	require.NoError(t, err)

	undone, err := log.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, undone.NewCount)
}
