package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"remindify/internal/services"
)

// ReminderHandler serves reminder endpoints.
type ReminderHandler struct {
	reminderService services.ReminderService
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(rs services.ReminderService) *ReminderHandler {
	return &ReminderHandler{reminderService: rs}
}

// SnoozePayload is the body of POST /api/v1/reminders/{id}/snooze.
type SnoozePayload struct {
	Minutes int `json:"minutes"`
}

// UnreadCountResponse is returned by GET /api/v1/reminders/unread-count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

// ListReceivedHandler handles GET /api/v1/reminders?status=&unread=.
func (h *ReminderHandler) ListReceivedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	filter := services.ReminderListFilter{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSONError(w, "invalid unread flag", http.StatusBadRequest)
			return
		}
		filter.UnreadOnly = unread
	}

	reminders, err := h.reminderService.ListReceived(r.Context(), userID, filter)
	if err != nil {
		writeServiceError(w, "list reminders", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminders)
}

// ListSentHandler handles GET /api/v1/reminders/sent.
func (h *ReminderHandler) ListSentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	reminders, err := h.reminderService.ListSent(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list sent reminders", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminders)
}

// UnreadCountHandler handles GET /api/v1/reminders/unread-count.
func (h *ReminderHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	n, err := h.reminderService.UnreadCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "count unread reminders", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, UnreadCountResponse{Unread: n})
}

// CreateHandler handles POST /api/v1/reminders.
func (h *ReminderHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var input services.ReminderInput
	if !decodeJSON(w, r, &input) {
		return
	}

	reminder, err := h.reminderService.Create(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, "create reminder", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, reminder)
}

// GetHandler handles GET /api/v1/reminders/{id}.
func (h *ReminderHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reminder, err := h.reminderService.Get(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, "get reminder", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminder)
}

// UpdateHandler handles PUT /api/v1/reminders/{id}.
func (h *ReminderHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var update services.ReminderUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	reminder, err := h.reminderService.Update(r.Context(), id, userID, update)
	if err != nil {
		writeServiceError(w, "update reminder", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminder)
}

// DeleteHandler handles DELETE /api/v1/reminders/{id}.
func (h *ReminderHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.reminderService.Delete(r.Context(), id, userID); err != nil {
		writeServiceError(w, "delete reminder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SnoozeHandler handles POST /api/v1/reminders/{id}/snooze.
func (h *ReminderHandler) SnoozeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload SnoozePayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	reminder, err := h.reminderService.Snooze(r.Context(), id, userID, time.Duration(payload.Minutes)*time.Minute)
	if err != nil {
		writeServiceError(w, "snooze reminder", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminder)
}

// MarkDoneHandler handles POST /api/v1/reminders/{id}/done.
func (h *ReminderHandler) MarkDoneHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reminder, err := h.reminderService.MarkDone(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, "mark reminder done", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminder)
}

// MarkReadHandler handles POST /api/v1/reminders/{id}/read.
func (h *ReminderHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reminder, err := h.reminderService.MarkRead(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, "mark reminder read", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reminder)
}
