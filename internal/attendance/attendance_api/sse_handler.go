package attendance_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/attendance"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/sse"
)

// SSEHandler streams live attendance snapshots to subscribers
type SSEHandler struct {
	Logger  *logger.Logger
	Emitter *sse.AttendanceEmitter
	Service *attendance.AttendanceService
}

func NewSSEHandler(log *logger.Logger, emitter *sse.AttendanceEmitter, service *attendance.AttendanceService) *SSEHandler {
	return &SSEHandler{
		Logger:  log,
		Emitter: emitter,
		Service: service,
	}
}

// HandleEventAttendance streams attendance snapshots for one event. A late
// joiner receives the current consistent snapshot immediately, then every
// committed change after that.
func (h *SSEHandler) HandleEventAttendance(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		http.Error(w, "Event ID is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	h.setupSSEHeaders(w)

	// Create a context that cancels when the client disconnects
	ctx := r.Context()

	// Subscribe before fetching the initial snapshot so no commit between
	// the two is lost.
	snapshotChan := h.Emitter.SubscribeToEvent(ctx, eventID)

	current, err := h.Service.Snapshot(ctx, eventID)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to load initial snapshot for event %s: %v", eventID, err))
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":\"%s\"}\n\n", eventID)
	flusher.Flush()

	if err := h.writeSnapshot(w, flusher, *current); err != nil {
		return
	}

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to attendance stream for event: %s", eventID))

	for {
		select {
		case snapshot, ok := <-snapshotChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for event: %s", eventID))
				return
			}
			if err := h.writeSnapshot(w, flusher, snapshot); err != nil {
				continue
			}

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from attendance stream for event: %s", eventID))
			return
		}
	}
}

func (h *SSEHandler) writeSnapshot(w http.ResponseWriter, flusher http.Flusher, snapshot interface{}) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize snapshot: %v", err))
		return err
	}

	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", jsonData)
	flusher.Flush()
	return nil
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}
