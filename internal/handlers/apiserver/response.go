package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"remindify/internal/middleware"
	"remindify/internal/services"
	"remindify/internal/storage"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of replies that carry no data.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError maps a service error kind to its HTTP status. Unknown errors are
// logged with op and reported as 500 without details.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrSelfReference),
		errors.Is(err, services.ErrInvalidInput):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrDuplicateConnection),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrCooldownActive),
		errors.Is(err, services.ErrUserAlreadyExists),
		errors.Is(err, services.ErrUsernameImmutable):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrNotAuthorized):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrInvalidCredentials):
		writeJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrStorageUnavailable):
		log.Printf("%s: %v", op, err)
		writeJSONError(w, "storage temporarily unavailable, please retry", http.StatusServiceUnavailable)
	default:
		log.Printf("%s: %v", op, err)
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// actingUser returns the authenticated user or writes a 401.
func actingUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// pathID parses the mux variable name as a row ID or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := storage.ParseID(mux.Vars(r)[name])
	if err != nil {
		writeJSONError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
