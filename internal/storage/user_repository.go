package storage

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"remindify/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, id uint, displayName string) error
	SearchUsers(ctx context.Context, query string, currentUserID uint, limit int) ([]models.UserBasicInfo, error)
	GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error)
	GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) (map[uint]*models.UserBasicInfo, error)
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

var basicInfoColumns = []string{"id", "username", "display_name"}

func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID returns gorm.ErrRecordNotFound when no user has the id.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername expects an already canonicalised username.
func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateDisplayName changes only the display name; the username column is never written after creation.
func (r *gormUserRepository) UpdateDisplayName(ctx context.Context, id uint, displayName string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("display_name", displayName)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchUsers does a case-insensitive substring match on username and display name,
// excluding the caller.
func (r *gormUserRepository) SearchUsers(ctx context.Context, query string, currentUserID uint, limit int) ([]models.UserBasicInfo, error) {
	users := []models.UserBasicInfo{}
	searchTerm := "%" + strings.ToLower(query) + "%"

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("(LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?) AND id <> ?", searchTerm, searchTerm, currentUserID).
		Select(basicInfoColumns).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *gormUserRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	var basicInfo models.UserBasicInfo
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(basicInfoColumns).
		Where("id = ?", id).
		First(&basicInfo).Error
	if err != nil {
		return nil, err
	}
	return &basicInfo, nil
}

// GetMultipleBasicInfoByIDs returns the public info of the given users keyed by ID.
// Missing IDs are simply absent from the map.
func (r *gormUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) (map[uint]*models.UserBasicInfo, error) {
	result := make(map[uint]*models.UserBasicInfo, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var basicInfos []*models.UserBasicInfo
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(basicInfoColumns).
		Where("id IN ?", userIDs).
		Find(&basicInfos).Error
	if err != nil {
		return nil, err
	}
	for _, info := range basicInfos {
		result[info.ID] = info
	}
	return result, nil
}
