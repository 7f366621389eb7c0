package apiserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindify/internal/config"
	"remindify/internal/middleware"
	"remindify/internal/models"
	"remindify/internal/services"
	"remindify/internal/storage"
)

var testAuthConfig = config.AuthConfig{
	JWTSecretKey: "handler-secret",
	JWTExpiry:    time.Hour,
	Issuer:       "remindify-test",
}

type testServer struct {
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.InitDB(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "api.db"),
	}, "silent")
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrateTables(db))

	userRepo := storage.NewGormUserRepository(db)
	connRepo := storage.NewGormConnectionRepository(db)
	audit := services.NewAuditService(storage.NewGormConnectionEventRepository(db))

	authService := services.NewAuthService(userRepo, nil, testAuthConfig)
	userService := services.NewUserService(userRepo)
	connService := services.NewConnectionService(userRepo, connRepo, services.NewDirectEventPublisher(audit), nil,
		config.CircleConfig{DefaultLabel: "Friend", MaxLabelLength: 50})
	reminderService := services.NewReminderService(storage.NewGormReminderRepository(db), userRepo, connRepo,
		config.ReminderConfig{MaxSnooze: 24 * time.Hour, DueWindow: 5 * time.Minute})

	r := mux.NewRouter()
	RegisterRoutes(r, Handlers{
		Auth:     NewAuthHandler(authService),
		User:     NewUserHandler(userService),
		Circle:   NewCircleHandler(connService, audit),
		Reminder: NewReminderHandler(reminderService),
	}, middleware.AuthMiddleware(testAuthConfig.JWTSecretKey, nil), middleware.NewUserRateLimiter(60, 3))

	return &testServer{router: r}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signup registers username and returns its ID and a token.
func (s *testServer) signup(t *testing.T, username string) (uint, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Username: username, Password: "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{UsernameOrEmail: username, Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.User.ID, resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCircleLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signup(t, "alice")
	bobID, bob := s.signup(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/v1/circle/requests", alice, SendRequestPayload{Username: "bob", Label: "Coworker"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conn := decode[models.Connection](t, rec)

	rec = s.do(t, http.MethodGet, "/api/v1/circle/requests/incoming", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	incoming := decode[[]services.PendingRequest](t, rec)
	require.Len(t, incoming, 1)
	assert.Equal(t, aliceID, incoming[0].User.ID)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/circle/requests/%d/accept", conn.ID), alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/circle/requests/%d/accept", conn.ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/circle/connections/%d/label", conn.ID), bob, RelabelPayload{Label: "Manager"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/circle", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]services.CircleMember](t, rec)
	require.Len(t, members, 1)
	assert.Equal(t, bobID, members[0].User.ID)
	assert.Equal(t, "Manager", members[0].Label)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/circle/members/%d", bobID), alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/circle/members/%d", bobID), alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/circle", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]services.CircleMember](t, rec))

	rec = s.do(t, http.MethodGet, "/api/v1/circle/history?limit=10", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ConnectionEvent](t, rec), 4)
}

func TestCircleErrorStatusCodes(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")
	_, bob := s.signup(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/v1/circle/requests", alice, SendRequestPayload{Username: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/circle/requests", alice, SendRequestPayload{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/circle/requests", alice, SendRequestPayload{Username: "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/circle/requests", bob, SendRequestPayload{Username: "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/circle/requests/abc/accept", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/circle/requests/999/accept", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/circle", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendRequestIsRateLimited(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/circle/requests", alice, SendRequestPayload{Username: "ghost"})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestReminderEndpoints(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")
	bobID, bob := s.signup(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/v1/reminders", alice, services.ReminderInput{
		RecipientID: bobID,
		Subject:     "Water plants",
		Body:        "The ferns need water",
		ScheduledAt: time.Now().Add(time.Minute),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reminder := decode[models.Reminder](t, rec)

	rec = s.do(t, http.MethodGet, "/api/v1/reminders/unread-count", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[UnreadCountResponse](t, rec).Unread)

	rec = s.do(t, http.MethodGet, "/api/v1/reminders?status=pending&unread=true", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	received := decode[[]models.ReminderWithSender](t, rec)
	require.Len(t, received, 1)
	assert.True(t, received[0].Due)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reminders/%d/snooze", reminder.ID), alice, SnoozePayload{Minutes: 30})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reminders/%d/snooze", reminder.ID), bob, SnoozePayload{Minutes: 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ReminderStatusSnoozed, decode[models.Reminder](t, rec).Status)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reminders/%d/done", reminder.ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/reminders/%d", reminder.ID), alice, services.ReminderUpdate{
		Subject: "Water plants", Body: "The ferns need water", ScheduledAt: time.Now(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/reminders?status=bogus", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/reminders/%d", reminder.ID), alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/reminders/%d", reminder.ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signup(t, "alice")

	rec := s.do(t, http.MethodPut, "/api/v1/users/me", alice, UpdateMyProfileRequest{Username: "alicia", DisplayName: "Alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/users/me", alice, UpdateMyProfileRequest{DisplayName: "Alice L."})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", aliceID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice L.", decode[models.UserBasicInfo](t, rec).DisplayName)

	rec = s.do(t, http.MethodGet, "/api/v1/users/search?query=", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{UsernameOrEmail: "alice", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrSelfReference, http.StatusBadRequest},
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrDuplicateConnection, http.StatusConflict},
		{services.ErrInvalidState, http.StatusConflict},
		{services.ErrCooldownActive, http.StatusConflict},
		{services.ErrNotAuthorized, http.StatusForbidden},
		{fmt.Errorf("%w: get connection: %w", services.ErrStorageUnavailable, errors.New("conn refused")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, "test", tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
