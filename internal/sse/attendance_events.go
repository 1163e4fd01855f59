package sse

import (
	"context"
	"sync"

	"ms-attendance/internal/models"
)

// AttendanceEmitter manages SSE connections and snapshot broadcasting for
// attendance projections. It receives snapshots only after a committed
// transaction, so subscribers never observe a counter and a stale total
// together.
type AttendanceEmitter struct {
	// Event channel clients map - key: eventID, value: slice of client channels
	eventClients     map[string][]chan models.EventSnapshot
	eventClientMutex sync.RWMutex
}

// NewAttendanceEmitter creates a new SSE emitter for attendance snapshots
func NewAttendanceEmitter() *AttendanceEmitter {
	return &AttendanceEmitter{
		eventClients: make(map[string][]chan models.EventSnapshot),
	}
}

// SubscribeToEvent adds a client to the event's snapshot stream
func (e *AttendanceEmitter) SubscribeToEvent(ctx context.Context, eventID string) chan models.EventSnapshot {
	clientChan := make(chan models.EventSnapshot, 10)

	e.eventClientMutex.Lock()
	if e.eventClients[eventID] == nil {
		e.eventClients[eventID] = []chan models.EventSnapshot{}
	}
	e.eventClients[eventID] = append(e.eventClients[eventID], clientChan)
	e.eventClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeEventClient(eventID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a committed snapshot to all subscribers of its event
func (e *AttendanceEmitter) Emit(snapshot models.EventSnapshot) {
	e.eventClientMutex.RLock()
	clients := e.eventClients[snapshot.Event.ID]
	e.eventClientMutex.RUnlock()

	for _, clientChan := range clients {
		// Non-blocking send to avoid slowing down emitter if client is slow
		select {
		case clientChan <- snapshot:
			// Successfully sent
		default:
			// Channel buffer full, skip this client for now
		}
	}
}

// removeEventClient drops a disconnected client
func (e *AttendanceEmitter) removeEventClient(eventID string, clientChan chan models.EventSnapshot) {
	e.eventClientMutex.Lock()
	defer e.eventClientMutex.Unlock()

	clients := e.eventClients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			// Remove client from slice
			e.eventClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(e.eventClients[eventID]) == 0 {
		delete(e.eventClients, eventID)
	}
}

// SubscriberCount returns how many clients are watching an event
func (e *AttendanceEmitter) SubscriberCount(eventID string) int {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()
	return len(e.eventClients[eventID])
}
