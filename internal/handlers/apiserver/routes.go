package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"remindify/internal/middleware"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Auth     *AuthHandler
	User     *UserHandler
	Circle   *CircleHandler
	Reminder *ReminderHandler
}

// RegisterRoutes mounts the public auth routes on r and everything else under /api/v1
// behind authMW. limiter throttles circle request creation and may be nil.
func RegisterRoutes(r *mux.Router, h Handlers, authMW mux.MiddlewareFunc, limiter *middleware.UserRateLimiter) {
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Auth.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW)

	api.HandleFunc("/auth/logout", h.Auth.Logout).Methods(http.MethodPost)

	// Users; /users/me and /users/search must precede /users/{userID}
	api.HandleFunc("/users/me", h.User.GetMyProfileHandler).Methods(http.MethodGet)
	api.HandleFunc("/users/me", h.User.UpdateMyProfileHandler).Methods(http.MethodPut)
	api.HandleFunc("/users/search", h.User.SearchUsersHandler).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID:[0-9]+}", h.User.GetUserProfileHandler).Methods(http.MethodGet)

	// Circle
	sendRequest := h.Circle.SendRequestHandler
	if limiter != nil {
		sendRequest = limiter.Wrap(sendRequest)
	}
	api.HandleFunc("/circle", h.Circle.ListMembersHandler).Methods(http.MethodGet)
	api.HandleFunc("/circle/history", h.Circle.HistoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/circle/requests/incoming", h.Circle.ListIncomingHandler).Methods(http.MethodGet)
	api.HandleFunc("/circle/requests/outgoing", h.Circle.ListOutgoingHandler).Methods(http.MethodGet)
	api.HandleFunc("/circle/requests", sendRequest).Methods(http.MethodPost)
	api.HandleFunc("/circle/requests/{id}/accept", h.Circle.AcceptRequestHandler).Methods(http.MethodPost)
	api.HandleFunc("/circle/requests/{id}/reject", h.Circle.RejectRequestHandler).Methods(http.MethodPost)
	api.HandleFunc("/circle/requests/{id}", h.Circle.CancelRequestHandler).Methods(http.MethodDelete)
	api.HandleFunc("/circle/connections/{id}/label", h.Circle.RelabelHandler).Methods(http.MethodPut)
	api.HandleFunc("/circle/members/{userID}", h.Circle.RemoveMemberHandler).Methods(http.MethodDelete)

	// Reminders
	api.HandleFunc("/reminders", h.Reminder.ListReceivedHandler).Methods(http.MethodGet)
	api.HandleFunc("/reminders", h.Reminder.CreateHandler).Methods(http.MethodPost)
	api.HandleFunc("/reminders/sent", h.Reminder.ListSentHandler).Methods(http.MethodGet)
	api.HandleFunc("/reminders/unread-count", h.Reminder.UnreadCountHandler).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{id:[0-9]+}", h.Reminder.GetHandler).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{id:[0-9]+}", h.Reminder.UpdateHandler).Methods(http.MethodPut)
	api.HandleFunc("/reminders/{id:[0-9]+}", h.Reminder.DeleteHandler).Methods(http.MethodDelete)
	api.HandleFunc("/reminders/{id:[0-9]+}/snooze", h.Reminder.SnoozeHandler).Methods(http.MethodPost)
	api.HandleFunc("/reminders/{id:[0-9]+}/done", h.Reminder.MarkDoneHandler).Methods(http.MethodPost)
	api.HandleFunc("/reminders/{id:[0-9]+}/read", h.Reminder.MarkReadHandler).Methods(http.MethodPost)
}
