package apiserver

import (
	"net/http"

	"remindify/internal/models"
	"remindify/internal/services"
)

// UserHandler serves profile and user search endpoints.
type UserHandler struct {
	userService services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMyProfileHandler handles GET /api/v1/users/me.
func (h *UserHandler) GetMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "get profile", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateMyProfileRequest is the body of PUT /api/v1/users/me.
// Username is optional and only accepted if unchanged.
type UpdateMyProfileRequest struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName"`
}

// UpdateMyProfileHandler handles PUT /api/v1/users/me.
func (h *UserHandler) UpdateMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req UpdateMyProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, req.Username, req.DisplayName)
	if err != nil {
		writeServiceError(w, "update profile", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// GetUserProfileHandler handles GET /api/v1/users/{userID} and returns public info only.
func (h *UserHandler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "get user", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user.BasicInfo())
}

// SearchUsersHandler handles GET /api/v1/users/search?query=.
func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(w, r)
	if !ok {
		return
	}

	users, err := h.userService.SearchUsers(r.Context(), r.URL.Query().Get("query"), userID)
	if err != nil {
		writeServiceError(w, "search users", err)
		return
	}
	if users == nil {
		users = []models.UserBasicInfo{}
	}
	writeJSONResponse(w, http.StatusOK, users)
}
