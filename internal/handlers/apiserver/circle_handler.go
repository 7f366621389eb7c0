package apiserver

import (
	"net/http"
	"strconv"

	"remindify/internal/models"
	"remindify/internal/services"
)

// CircleHandler exposes the connection lifecycle over HTTP.
type CircleHandler struct {
	connService  services.ConnectionService
	auditService services.AuditService
}

// NewCircleHandler creates a new CircleHandler.
func NewCircleHandler(cs services.ConnectionService, as services.AuditService) *CircleHandler {
	return &CircleHandler{connService: cs, auditService: as}
}

// SendRequestPayload is the body of POST /api/v1/circle/requests.
type SendRequestPayload struct {
	Username string `json:"username"`
	Label    string `json:"label,omitempty"`
}

// RelabelPayload is the body of PUT /api/v1/circle/connections/{id}/label.
type RelabelPayload struct {
	Label string `json:"label"`
}

// ListMembersHandler handles GET /api/v1/circle.
func (h *CircleHandler) ListMembersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	members, err := h.connService.ListAcceptedMembers(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list circle", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, members)
}

// ListIncomingHandler handles GET /api/v1/circle/requests/incoming.
func (h *CircleHandler) ListIncomingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	pending, err := h.connService.ListPendingIncoming(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list incoming requests", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pending)
}

// ListOutgoingHandler handles GET /api/v1/circle/requests/outgoing.
func (h *CircleHandler) ListOutgoingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	pending, err := h.connService.ListPendingOutgoing(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list outgoing requests", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pending)
}

// SendRequestHandler handles POST /api/v1/circle/requests.
func (h *CircleHandler) SendRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	var payload SendRequestPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	conn, err := h.connService.SendRequest(r.Context(), userID, payload.Username, payload.Label)
	if err != nil {
		writeServiceError(w, "send circle request", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, conn)
}

// AcceptRequestHandler handles POST /api/v1/circle/requests/{id}/accept.
func (h *CircleHandler) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	conn, err := h.connService.AcceptRequest(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, "accept circle request", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, conn)
}

// RejectRequestHandler handles POST /api/v1/circle/requests/{id}/reject.
func (h *CircleHandler) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.connService.RejectRequest(r.Context(), id, userID); err != nil {
		writeServiceError(w, "reject circle request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelRequestHandler handles DELETE /api/v1/circle/requests/{id}.
func (h *CircleHandler) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.connService.CancelRequest(r.Context(), id, userID); err != nil {
		writeServiceError(w, "cancel circle request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RelabelHandler handles PUT /api/v1/circle/connections/{id}/label.
func (h *CircleHandler) RelabelHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload RelabelPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	conn, err := h.connService.Relabel(r.Context(), id, userID, payload.Label)
	if err != nil {
		writeServiceError(w, "relabel connection", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, conn)
}

// RemoveMemberHandler handles DELETE /api/v1/circle/members/{userID}. Removing someone who
// is not in the circle also returns 204.
func (h *CircleHandler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	otherID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := h.connService.RemoveConnection(r.Context(), userID, otherID); err != nil {
		writeServiceError(w, "remove circle member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HistoryHandler handles GET /api/v1/circle/history?limit=.
func (h *CircleHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.auditService.ListHistory(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, "list circle history", err)
		return
	}
	if events == nil {
		events = []models.ConnectionEvent{}
	}
	writeJSONResponse(w, http.StatusOK, events)
}
