package apiserver

import (
	"net/http"

	"remindify/internal/middleware"
	"remindify/internal/models"
	"remindify/internal/services"
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	AuthService services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{AuthService: authService}
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password"`
}

// LoginRequest is the body of POST /auth/login. Username may also be an email address.
type LoginRequest struct {
	UsernameOrEmail string `json:"username"`
	Password        string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSONError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.DisplayName, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, "register", err)
		return
	}
	user.PasswordHash = ""
	writeJSONResponse(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UsernameOrEmail == "" || req.Password == "" {
		writeJSONError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := h.AuthService.Login(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		writeServiceError(w, "login", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// Logout revokes the token the request was made with.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if err := h.AuthService.Logout(r.Context(), claims); err != nil {
		writeServiceError(w, "logout", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, MessageResponse{Message: "logged out"})
}
