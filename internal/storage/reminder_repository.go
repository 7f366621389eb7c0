package storage

import (
	"context"

	"gorm.io/gorm"

	"remindify/internal/models"
)

// ReminderFilter narrows a recipient's reminder listing.
// An empty Status means every status.
type ReminderFilter struct {
	Status     models.ReminderStatus
	UnreadOnly bool
}

// ReminderGuard restricts a conditional reminder update. Zero fields are not checked.
type ReminderGuard struct {
	SenderID    uint
	RecipientID uint
	NotStatus   models.ReminderStatus
}

// ReminderRepository defines the interface for reminder data operations.
type ReminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, id uint) (*models.Reminder, error)
	UpdateFields(ctx context.Context, id uint, guard ReminderGuard, fields map[string]any) (applied bool, err error)
	Delete(ctx context.Context, id uint) error
	ListForRecipient(ctx context.Context, recipientID uint, filter ReminderFilter) ([]models.Reminder, error)
	ListBySender(ctx context.Context, senderID uint) ([]models.Reminder, error)
	CountUnread(ctx context.Context, recipientID uint) (int64, error)
}

type gormReminderRepository struct {
	db *gorm.DB
}

// NewGormReminderRepository creates a new GORM-based ReminderRepository.
func NewGormReminderRepository(db *gorm.DB) ReminderRepository {
	return &gormReminderRepository{db: db}
}

func (r *gormReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	return r.db.WithContext(ctx).Create(reminder).Error
}

// GetByID returns gorm.ErrRecordNotFound for missing or deleted reminders.
func (r *gormReminderRepository) GetByID(ctx context.Context, id uint) (*models.Reminder, error) {
	var reminder models.Reminder
	if err := r.db.WithContext(ctx).First(&reminder, id).Error; err != nil {
		return nil, err
	}
	return &reminder, nil
}

// UpdateFields writes only the given columns of a live reminder matching guard.
// Deleted reminders never match, so a stale write cannot bring one back.
func (r *gormReminderRepository) UpdateFields(ctx context.Context, id uint, guard ReminderGuard, fields map[string]any) (bool, error) {
	if id == 0 || len(fields) == 0 {
		return false, gorm.ErrMissingWhereClause
	}
	query := r.db.WithContext(ctx).Model(&models.Reminder{}).Where("id = ?", id)
	if guard.SenderID != 0 {
		query = query.Where("sender_id = ?", guard.SenderID)
	}
	if guard.RecipientID != 0 {
		query = query.Where("recipient_id = ?", guard.RecipientID)
	}
	if guard.NotStatus != "" {
		query = query.Where("status <> ?", guard.NotStatus)
	}
	res := query.Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete soft-deletes the reminder.
func (r *gormReminderRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Reminder{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListForRecipient orders by scheduled time, soonest first.
func (r *gormReminderRepository) ListForRecipient(ctx context.Context, recipientID uint, filter ReminderFilter) ([]models.Reminder, error) {
	query := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var reminders []models.Reminder
	err := query.Order("scheduled_at ASC, id ASC").Find(&reminders).Error
	return reminders, err
}

func (r *gormReminderRepository) ListBySender(ctx context.Context, senderID uint) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("scheduled_at ASC, id ASC").
		Find(&reminders).Error
	return reminders, err
}

func (r *gormReminderRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}
