package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"remindify/internal/models"
)

// ConnectionRepository defines the data operations on the connections table.
//
// Every state change is a single conditional statement on one row, so a transition that
// lost a race reports applied == false instead of overwriting the winner.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection) error
	GetByID(ctx context.Context, id uint) (*models.Connection, error)
	FindByPair(ctx context.Context, userA, userB uint) (*models.Connection, error)
	TransitionStatus(ctx context.Context, id uint, from, to models.ConnectionStatus) (applied bool, err error)
	UpdateLabel(ctx context.Context, id uint, label string) (applied bool, err error)
	DeleteWithStatus(ctx context.Context, id uint, status models.ConnectionStatus) (applied bool, err error)
	ListAccepted(ctx context.Context, userID uint) ([]models.Connection, error)
	ListPendingIncoming(ctx context.Context, recipientID uint) ([]models.Connection, error)
	ListPendingOutgoing(ctx context.Context, requesterID uint) ([]models.Connection, error)
}

type gormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GORM-based ConnectionRepository.
func NewGormConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

// Create inserts conn. A second row for the same pair fails with gorm.ErrDuplicatedKey
// when the DB was opened with TranslateError.
func (r *gormConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	conn.EnsureCanonicalOrder()
	return r.db.WithContext(ctx).Create(conn).Error
}

// GetByID returns gorm.ErrRecordNotFound if the row does not exist.
func (r *gormConnectionRepository) GetByID(ctx context.Context, id uint) (*models.Connection, error) {
	var conn models.Connection
	if err := r.db.WithContext(ctx).First(&conn, id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

// FindByPair looks up the row for the unordered pair {userA, userB}, in any status.
// No row is not an error here: it returns nil, nil.
func (r *gormConnectionRepository) FindByPair(ctx context.Context, userA, userB uint) (*models.Connection, error) {
	low, high := models.PairKey(userA, userB)
	var conn models.Connection
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *gormConnectionRepository) TransitionStatus(ctx context.Context, id uint, from, to models.ConnectionStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateLabel only touches accepted connections.
func (r *gormConnectionRepository) UpdateLabel(ctx context.Context, id uint, label string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ? AND status = ?", id, models.ConnectionStatusAccepted).
		Update("label", label)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteWithStatus hard-deletes the row only while it is still in status.
func (r *gormConnectionRepository) DeleteWithStatus(ctx context.Context, id uint, status models.ConnectionStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, status).
		Delete(&models.Connection{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListAccepted returns every accepted connection the user is part of, in either direction.
func (r *gormConnectionRepository) ListAccepted(ctx context.Context, userID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("(requester_id = ? OR recipient_id = ?) AND status = ?", userID, userID, models.ConnectionStatusAccepted).
		Order("created_at ASC, id ASC").
		Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) ListPendingIncoming(ctx context.Context, recipientID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status = ?", recipientID, models.ConnectionStatusPending).
		Order("created_at ASC, id ASC").
		Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) ListPendingOutgoing(ctx context.Context, requesterID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND status = ?", requesterID, models.ConnectionStatusPending).
		Order("created_at ASC, id ASC").
		Find(&conns).Error
	return conns, err
}
