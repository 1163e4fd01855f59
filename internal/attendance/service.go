package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
)

type DBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event, counters []models.AreaCounter) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetCounterByID(ctx context.Context, eventID, counterID string) (*models.AreaCounter, error)
	GetCountersByEvent(ctx context.Context, eventID string) ([]models.AreaCounter, error)
	GetSnapshot(ctx context.Context, eventID string) (*models.EventSnapshot, error)
	ApplyCount(ctx context.Context, eventID, counterID string, newCount int, action string) (*models.AreaCounter, *models.Event, error)
	SetLock(ctx context.Context, eventID string, locked bool) (*models.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	GetActiveTemplates(ctx context.Context, venueID string) ([]models.AreaTemplate, error)
	UpdateCounterNotes(ctx context.Context, eventID, counterID, notes string) error
	UpdateEventNotes(ctx context.Context, eventID, notes, weather string) error
}

// EventLock is the cross-instance writer lease. Within one process the
// per-event mutex already serializes writers; the lease extends that
// discipline across replicas sharing one database.
type EventLock interface {
	AcquireWrite(eventID, ownerID string) (bool, error)
	ReleaseWrite(eventID, ownerID string) error
}

type KafkaPublisher interface {
	PublishCountChanged(event models.CountChangedEvent) error
}

// SnapshotEmitter receives a consistent snapshot after every committed
// transaction. It must never be called mid-transaction.
type SnapshotEmitter interface {
	Emit(snapshot models.EventSnapshot)
}

// MutationResult reports one committed count mutation. OldCount is the
// counter's count immediately before the transaction, which is what the
// undo log records.
type MutationResult struct {
	OldCount int
	NewCount int
	Counter  models.AreaCounter
	Event    models.Event
}

// AttendanceService coordinates every counter mutation: it serializes
// writers per event, applies the counter write and the aggregate recompute
// as one transaction through the DB layer, and only then publishes the new
// snapshot and the Kafka change event.
type AttendanceService struct {
	DB      DBLayer
	Lock    EventLock
	Kafka   KafkaPublisher
	Emitter SnapshotEmitter

	instanceID string

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

func NewAttendanceService(db DBLayer, lock EventLock, kafka KafkaPublisher, emitter SnapshotEmitter) *AttendanceService {
	return &AttendanceService{
		DB:         db,
		Lock:       lock,
		Kafka:      kafka,
		Emitter:    emitter,
		instanceID: utils.GenerateInstanceID(),
		writers:    make(map[string]*sync.Mutex),
	}
}

// eventMutex returns the mutex serializing writes to one event. Different
// events get independent mutexes and never block each other.
func (s *AttendanceService) eventMutex(eventID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.writers[eventID]
	if !ok {
		m = &sync.Mutex{}
		s.writers[eventID] = m
	}
	return m
}

// CreateEvent creates the event with one zero counter per active area
// template of the venue. Total capacity is fixed here from the template
// capacities and never recomputed afterwards.
func (s *AttendanceService) CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.EventSnapshot, error) {
	templates, err := s.DB.GetActiveTemplates(ctx, req.VenueID)
	if err != nil {
		return nil, fmt.Errorf("load area templates for venue %s: %w", req.VenueID, err)
	}

	now := time.Now().UTC()
	event := &models.Event{
		ID:          utils.GenerateEventID(),
		VenueID:     req.VenueID,
		EventTypeID: req.EventTypeID,
		EventType:   req.EventType,
		EventName:   req.EventName,
		Date:        req.Date,
		CountedBy:   req.CountedBy,
		Notes:       req.Notes,
		Weather:     req.Weather,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	counters := make([]models.AreaCounter, 0, len(templates))
	for _, t := range templates {
		event.TotalCapacity += t.Capacity
		counters = append(counters, models.AreaCounter{
			ID:             utils.GenerateCounterID(),
			EventID:        event.ID,
			AreaTemplateID: t.ID,
			Count:          0,
			Capacity:       t.Capacity,
			CountHistory:   models.CountHistory{},
			LastUpdated:    now,
		})
	}

	if err := s.DB.CreateEvent(ctx, event, counters); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	snapshot := models.EventSnapshot{Event: *event, Counters: counters}
	s.Emitter.Emit(snapshot)
	return &snapshot, nil
}

// Snapshot returns the current consistent read model for an event.
func (s *AttendanceService) Snapshot(ctx context.Context, eventID string) (*models.EventSnapshot, error) {
	return s.DB.GetSnapshot(ctx, eventID)
}

// Increment adds amount to the counter, clamping at zero. A negative amount
// decrements. The history tag follows the sign of the requested amount.
// The writer lease is taken before the current count is read: a count read
// outside the lease could be stale against a commit from another replica.
func (s *AttendanceService) Increment(ctx context.Context, eventID, counterID string, amount int) (*MutationResult, error) {
	m := s.eventMutex(eventID)
	m.Lock()
	defer m.Unlock()

	release, err := s.acquireLease(eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	counter, err := s.DB.GetCounterByID(ctx, eventID, counterID)
	if err != nil {
		return nil, err
	}

	newCount := counter.Count + amount
	if newCount < 0 {
		newCount = 0
	}
	action := models.ActionIncrement
	if amount < 0 {
		action = models.ActionDecrement
	}
	return s.apply(ctx, eventID, counterID, newCount, action)
}

// Decrement subtracts amount, never driving the count below zero.
func (s *AttendanceService) Decrement(ctx context.Context, eventID, counterID string, amount int) (*MutationResult, error) {
	return s.Increment(ctx, eventID, counterID, -amount)
}

// SetCount writes an absolute count as a manual edit.
func (s *AttendanceService) SetCount(ctx context.Context, eventID, counterID string, newCount int) (*MutationResult, error) {
	return s.SetCountWithAction(ctx, eventID, counterID, newCount, models.ActionManualEdit)
}

// SetCountWithAction is the primitive the action log replays through, so
// undo and redo carry their own history tags down the same serialized path.
func (s *AttendanceService) SetCountWithAction(ctx context.Context, eventID, counterID string, newCount int, action string) (*MutationResult, error) {
	if newCount < 0 {
		return nil, fmt.Errorf("target count %d: %w", newCount, models.ErrNegativeCount)
	}
	if !models.IsValidAction(action) {
		return nil, fmt.Errorf("%q: %w", action, models.ErrUnknownAction)
	}

	m := s.eventMutex(eventID)
	m.Lock()
	defer m.Unlock()

	release, err := s.acquireLease(eventID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.apply(ctx, eventID, counterID, newCount, action)
}

// Reset sets the counter to zero. A counter already at zero still gains a
// RESET history item.
func (s *AttendanceService) Reset(ctx context.Context, eventID, counterID string) (*MutationResult, error) {
	return s.SetCountWithAction(ctx, eventID, counterID, 0, models.ActionReset)
}

// acquireLease takes the cross-instance writer lease and returns its
// release func. Every mutation path acquires the lease before reading any
// counter state: a count read outside the lease can be stale against a
// concurrent commit on another replica.
func (s *AttendanceService) acquireLease(eventID string) (func(), error) {
	ok, err := s.Lock.AcquireWrite(eventID, s.instanceID)
	if err != nil {
		return nil, fmt.Errorf("writer lease for event %s: %w", eventID, err)
	}
	if !ok {
		return nil, fmt.Errorf("event %s has an active writer on another instance", eventID)
	}
	return func() {
		if err := s.Lock.ReleaseWrite(eventID, s.instanceID); err != nil {
			fmt.Printf("Failed to release writer lease for event %s: %v\n", eventID, err)
		}
	}, nil
}

// apply runs the transaction and, only after commit, publishes the snapshot
// and the change event. Callers hold the event mutex and the writer lease.
func (s *AttendanceService) apply(ctx context.Context, eventID, counterID string, newCount int, action string) (*MutationResult, error) {
	counter, event, err := s.DB.ApplyCount(ctx, eventID, counterID, newCount, action)
	if err != nil {
		return nil, err
	}

	// The transaction appended exactly one item; its OldCount is the
	// pre-transaction count.
	last := counter.CountHistory[len(counter.CountHistory)-1]

	s.emitSnapshot(ctx, eventID)

	changeEvent, err := models.NewCountChangedEvent(eventID, counterID, last.OldCount, counter.Count, action, event.TotalAttendance, last.Timestamp)
	if err == nil {
		if err := s.Kafka.PublishCountChanged(changeEvent); err != nil {
			fmt.Printf("Kafka publish error (count changed): %v\n", err)
		}
	}

	return &MutationResult{
		OldCount: last.OldCount,
		NewCount: counter.Count,
		Counter:  *counter,
		Event:    *event,
	}, nil
}

// LockEvent freezes further counter edits and stamps the completion time.
func (s *AttendanceService) LockEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m := s.eventMutex(eventID)
	m.Lock()
	defer m.Unlock()

	event, err := s.DB.SetLock(ctx, eventID, true)
	if err != nil {
		return nil, err
	}
	s.emitSnapshot(ctx, eventID)
	return event, nil
}

// UnlockEvent resumes edits on a finalized event.
func (s *AttendanceService) UnlockEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m := s.eventMutex(eventID)
	m.Lock()
	defer m.Unlock()

	event, err := s.DB.SetLock(ctx, eventID, false)
	if err != nil {
		return nil, err
	}
	s.emitSnapshot(ctx, eventID)
	return event, nil
}

// DeleteEvent removes the event and its counters. Refusing deletion while
// external dependents exist is the caller's responsibility.
func (s *AttendanceService) DeleteEvent(ctx context.Context, eventID string) error {
	m := s.eventMutex(eventID)
	m.Lock()
	defer m.Unlock()

	if err := s.DB.DeleteEvent(ctx, eventID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.writers, eventID)
	s.mu.Unlock()
	return nil
}

// UpdateCounterNotes writes caller-owned counter notes. Notes are metadata,
// not a count mutation, so the lock gate does not apply.
func (s *AttendanceService) UpdateCounterNotes(ctx context.Context, eventID, counterID, notes string) error {
	return s.DB.UpdateCounterNotes(ctx, eventID, counterID, notes)
}

// UpdateEventNotes writes caller-owned event metadata.
func (s *AttendanceService) UpdateEventNotes(ctx context.Context, eventID, notes, weather string) error {
	return s.DB.UpdateEventNotes(ctx, eventID, notes, weather)
}

func (s *AttendanceService) emitSnapshot(ctx context.Context, eventID string) {
	snapshot, err := s.DB.GetSnapshot(ctx, eventID)
	if err != nil {
		fmt.Printf("Failed to load snapshot for event %s: %v\n", eventID, err)
		return
	}
	s.Emitter.Emit(*snapshot)
}
