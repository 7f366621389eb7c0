package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"remindify/internal/models"
)

// ConnectionEventRepository stores the append-only connection audit log.
type ConnectionEventRepository interface {
	// Append inserts the event unless one with the same EventID already exists.
	Append(ctx context.Context, event *models.ConnectionEvent) (inserted bool, err error)
	ListForUser(ctx context.Context, userID uint, limit int) ([]models.ConnectionEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormConnectionEventRepository struct {
	db *gorm.DB
}

// NewGormConnectionEventRepository creates a new GORM-based ConnectionEventRepository.
func NewGormConnectionEventRepository(db *gorm.DB) ConnectionEventRepository {
	return &gormConnectionEventRepository{db: db}
}

func (r *gormConnectionEventRepository) Append(ctx context.Context, event *models.ConnectionEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForUser returns the newest events first for pairs the user took part in.
func (r *gormConnectionEventRepository) ListForUser(ctx context.Context, userID uint, limit int) ([]models.ConnectionEvent, error) {
	var events []models.ConnectionEvent
	err := r.db.WithContext(ctx).
		Where("requester_id = ? OR recipient_id = ?", userID, userID).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormConnectionEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("occurred_at < ?", cutoff).Delete(&models.ConnectionEvent{})
	return res.RowsAffected, res.Error
}
