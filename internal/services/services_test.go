package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"remindify/internal/config"
	"remindify/internal/models"
	"remindify/internal/storage"
)

type testEnv struct {
	db        *gorm.DB
	users     storage.UserRepository
	conns     storage.ConnectionRepository
	reminders storage.ReminderRepository
	events    storage.ConnectionEventRepository
	publisher *fakePublisher
	cooldown  *fakeCooldown
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.InitDB(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "services.db"),
	}, "silent")
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrateTables(db))

	return &testEnv{
		db:        db,
		users:     storage.NewGormUserRepository(db),
		conns:     storage.NewGormConnectionRepository(db),
		reminders: storage.NewGormReminderRepository(db),
		events:    storage.NewGormConnectionEventRepository(db),
		publisher: &fakePublisher{},
		cooldown:  &fakeCooldown{},
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, DisplayName: username, PasswordHash: "x"}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

var testCircleConfig = config.CircleConfig{
	DefaultLabel:   "Friend",
	MaxLabelLength: 50,
}

func (e *testEnv) connectionService(cfg config.CircleConfig) ConnectionService {
	return NewConnectionService(e.users, e.conns, e.publisher, e.cooldown, cfg)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.ConnectionEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event *models.ConnectionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []models.ConnectionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ConnectionEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type cooldownKey struct{ requester, recipient uint }

type fakeCooldown struct {
	mu      sync.Mutex
	entries map[cooldownKey]time.Duration
}

func (c *fakeCooldown) Start(_ context.Context, requesterID, recipientID uint, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[cooldownKey]time.Duration{}
	}
	c.entries[cooldownKey{requesterID, recipientID}] = d
	return nil
}

func (c *fakeCooldown) Active(_ context.Context, requesterID, recipientID uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[cooldownKey{requesterID, recipientID}]
	return ok, nil
}
