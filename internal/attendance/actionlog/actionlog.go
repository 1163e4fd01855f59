package actionlog

import (
	"context"
	"sync"
	"time"

	"ms-attendance/internal/attendance"
	"ms-attendance/internal/models"
)

// Coordinator is the slice of the attendance service the log replays
// through. Undo and redo reuse the same serialized transaction path as
// every other mutation.
type Coordinator interface {
	SetCountWithAction(ctx context.Context, eventID, counterID string, newCount int, action string) (*attendance.MutationResult, error)
}

// Action is one recorded count transition. The log replays absolute values:
// redoing after an intervening edit to the same counter still restores
// exactly NewCount, last writer wins.
type Action struct {
	EventID       string
	AreaCounterID string
	OldCount      int
	NewCount      int
	Timestamp     time.Time
}

// ActionLog is the per-session undo/redo stack pair. Every successful
// non-replay mutation is recorded here and clears the redo stack.
type ActionLog struct {
	coordinator Coordinator

	mu        sync.Mutex
	undoStack []Action
	redoStack []Action
}

func NewActionLog(coordinator Coordinator) *ActionLog {
	return &ActionLog{coordinator: coordinator}
}

// Record pushes a freshly applied mutation and invalidates redo.
func (l *ActionLog) Record(eventID, counterID string, oldCount, newCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undoStack = append(l.undoStack, Action{
		EventID:       eventID,
		AreaCounterID: counterID,
		OldCount:      oldCount,
		NewCount:      newCount,
		Timestamp:     time.Now().UTC(),
	})
	l.redoStack = nil
}

// Undo replays the last action's old count. A no-op when nothing is
// undoable. On failure (for example the event got locked in the meantime)
// both stacks are left untouched, so the action stays poppable.
func (l *ActionLog) Undo(ctx context.Context) (*attendance.MutationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.undoStack) == 0 {
		return nil, nil
	}
	action := l.undoStack[len(l.undoStack)-1]

	result, err := l.coordinator.SetCountWithAction(ctx, action.EventID, action.AreaCounterID, action.OldCount, models.ActionUndo)
	if err != nil {
		return nil, err
	}

	l.undoStack = l.undoStack[:len(l.undoStack)-1]
	l.redoStack = append(l.redoStack, action)
	return result, nil
}

// Redo replays the last undone action's new count.
func (l *ActionLog) Redo(ctx context.Context) (*attendance.MutationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.redoStack) == 0 {
		return nil, nil
	}
	action := l.redoStack[len(l.redoStack)-1]

	result, err := l.coordinator.SetCountWithAction(ctx, action.EventID, action.AreaCounterID, action.NewCount, models.ActionRedo)
	if err != nil {
		return nil, err
	}

	l.redoStack = l.redoStack[:len(l.redoStack)-1]
	l.undoStack = append(l.undoStack, action)
	return result, nil
}

func (l *ActionLog) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undoStack) > 0
}

func (l *ActionLog) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.redoStack) > 0
}

// Clear drops both stacks, for example when the session switches events.
func (l *ActionLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undoStack = nil
	l.redoStack = nil
}
