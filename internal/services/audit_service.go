package services

import (
	"context"
	"log"
	"time"

	"remindify/internal/models"
	"remindify/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AuditService keeps the history of connection lifecycle transitions. Connection rows are
// deleted on reject, cancel and remove, so this log is the only record that they existed.
type AuditService interface {
	// Record stores event once; a replayed event with the same EventID is ignored.
	Record(ctx context.Context, event *models.ConnectionEvent) error
	ListHistory(ctx context.Context, userID uint, limit int) ([]models.ConnectionEvent, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type auditService struct {
	eventRepo storage.ConnectionEventRepository
}

// NewAuditService creates a new AuditService.
func NewAuditService(eventRepo storage.ConnectionEventRepository) AuditService {
	return &auditService{eventRepo: eventRepo}
}

func (s *auditService) Record(ctx context.Context, event *models.ConnectionEvent) error {
	if event == nil || event.EventID == "" {
		return invalidInput("event id is required")
	}
	inserted, err := s.eventRepo.Append(ctx, event)
	if err != nil {
		return storageErr("append connection event", err)
	}
	if !inserted {
		log.Printf("Connection event %s already recorded, skipping", event.EventID)
	}
	return nil
}

func (s *auditService) ListHistory(ctx context.Context, userID uint, limit int) ([]models.ConnectionEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	events, err := s.eventRepo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, storageErr("list connection events", err)
	}
	return events, nil
}

func (s *auditService) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, invalidInput("retention must be positive")
	}
	n, err := s.eventRepo.DeleteOlderThan(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, storageErr("prune connection events", err)
	}
	return n, nil
}
