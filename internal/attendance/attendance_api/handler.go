package attendance_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/attendance"
	"ms-attendance/internal/attendance/actionlog"
	"ms-attendance/internal/auth"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
)

type Handler struct {
	Service   *attendance.AttendanceService
	ActionLog *actionlog.ActionLog
	Logger    *logger.Logger
}

func NewHandler(service *attendance.AttendanceService, log *actionlog.ActionLog) *Handler {
	return &Handler{
		Service:   service,
		ActionLog: log,
		Logger:    logger.NewLogger(),
	}
}

type amountRequest struct {
	Amount int `json:"amount"`
}

type countRequest struct {
	Count int `json:"count"`
}

type notesRequest struct {
	Notes   string `json:"notes"`
	Weather string `json:"weather,omitempty"`
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrEventNotFound), errors.Is(err, models.ErrCounterNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrEventLocked):
		status = http.StatusLocked
	case errors.Is(err, models.ErrNegativeCount), errors.Is(err, models.ErrUnknownAction):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(utils.ErrorResponse(op+" failed", err.Error()))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEvent: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CountedBy == "" {
		req.CountedBy = auth.UserID(r.Context())
	}
	if req.CountedBy == "" {
		// No auth middleware configured; fall back to the token subject
		// without verification, for attribution only
		if raw, err := auth.ExtractTokenFromRequest(r); err == nil {
			if sub, err := auth.ExtractUserIDFromJWT(raw); err == nil {
				req.CountedBy = sub
			}
		}
	}

	snapshot, err := h.Service.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, "CreateEvent", err)
		return
	}

	h.Logger.LogEvent("CREATE", snapshot.Event.ID, fmt.Sprintf("%d areas, capacity %d", len(snapshot.Counters), snapshot.Event.TotalCapacity))
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("event created", snapshot))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	snapshot, err := h.Service.Snapshot(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "GetEvent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	h.Logger.Info("API", fmt.Sprintf("DeleteEvent: eventID=%s", eventID))

	if err := h.Service.DeleteEvent(r.Context(), eventID); err != nil {
		h.writeError(w, "DeleteEvent", err)
		return
	}
	h.Logger.LogEvent("DELETE", eventID, "event and counters removed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	h.mutateByAmount(w, r, "Increment", false)
}

func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.mutateByAmount(w, r, "Decrement", true)
}

func (h *Handler) mutateByAmount(w http.ResponseWriter, r *http.Request, op string, negate bool) {
	eventID := chi.URLParam(r, "eventID")
	counterID := chi.URLParam(r, "counterID")

	req := amountRequest{Amount: 1}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	amount := req.Amount
	if negate {
		amount = -amount
	}

	result, err := h.Service.Increment(r.Context(), eventID, counterID, amount)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	h.ActionLog.Record(eventID, counterID, result.OldCount, result.NewCount)

	h.Logger.LogCount(op, counterID, fmt.Sprintf("%d -> %d (total %d)", result.OldCount, result.NewCount, result.Event.TotalAttendance))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("count updated", result))
}

func (h *Handler) SetCount(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	counterID := chi.URLParam(r, "counterID")

	var req countRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.SetCount(r.Context(), eventID, counterID, req.Count)
	if err != nil {
		h.writeError(w, "SetCount", err)
		return
	}
	h.ActionLog.Record(eventID, counterID, result.OldCount, result.NewCount)

	h.Logger.LogCount("SET", counterID, fmt.Sprintf("%d -> %d (total %d)", result.OldCount, result.NewCount, result.Event.TotalAttendance))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("count updated", result))
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	counterID := chi.URLParam(r, "counterID")

	result, err := h.Service.Reset(r.Context(), eventID, counterID)
	if err != nil {
		h.writeError(w, "Reset", err)
		return
	}
	h.ActionLog.Record(eventID, counterID, result.OldCount, result.NewCount)

	h.Logger.LogCount("RESET", counterID, fmt.Sprintf("%d -> 0", result.OldCount))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("counter reset", result))
}

func (h *Handler) LockEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.Service.LockEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "LockEvent", err)
		return
	}
	h.Logger.LogEvent("LOCK", eventID, "event locked")
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("event locked", event))
}

func (h *Handler) UnlockEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.Service.UnlockEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "UnlockEvent", err)
		return
	}
	h.Logger.LogEvent("UNLOCK", eventID, "event unlocked")
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("event unlocked", event))
}

func (h *Handler) UpdateEventNotes(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateEventNotes(r.Context(), eventID, req.Notes, req.Weather); err != nil {
		h.writeError(w, "UpdateEventNotes", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("notes updated", nil))
}

func (h *Handler) UpdateCounterNotes(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	counterID := chi.URLParam(r, "counterID")

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateCounterNotes(r.Context(), eventID, counterID, req.Notes); err != nil {
		h.writeError(w, "UpdateCounterNotes", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("notes updated", nil))
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	result, err := h.ActionLog.Undo(r.Context())
	if err != nil {
		h.writeError(w, "Undo", err)
		return
	}
	if result == nil {
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("nothing to undo", h.actionState()))
		return
	}
	h.Logger.LogCount("UNDO", result.Counter.ID, fmt.Sprintf("%d -> %d", result.OldCount, result.NewCount))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("undone", result))
}

func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	result, err := h.ActionLog.Redo(r.Context())
	if err != nil {
		h.writeError(w, "Redo", err)
		return
	}
	if result == nil {
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("nothing to redo", h.actionState()))
		return
	}
	h.Logger.LogCount("REDO", result.Counter.ID, fmt.Sprintf("%d -> %d", result.OldCount, result.NewCount))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("redone", result))
}

func (h *Handler) ActionState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.actionState())
}

func (h *Handler) actionState() map[string]bool {
	return map[string]bool{
		"can_undo": h.ActionLog.CanUndo(),
		"can_redo": h.ActionLog.CanRedo(),
	}
}
