package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"remindify/internal/models"
	"remindify/internal/storage"
)

var ErrUsernameImmutable = errors.New("username cannot be changed once set")

const (
	minDisplayNameLength = 3
	maxDisplayNameLength = 64
	searchResultLimit    = 20
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)

// CanonicalUsername is the form usernames are stored and looked up in.
func CanonicalUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername checks an already canonical username.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return invalidInput("username must be 3-32 characters of a-z, 0-9, '_', '.' or '-'")
	}
	return nil
}

func normalizeDisplayName(displayName string) (string, error) {
	displayName = strings.TrimSpace(displayName)
	n := utf8.RuneCountInString(displayName)
	if n < minDisplayNameLength || n > maxDisplayNameLength {
		return "", invalidInput("display name must be %d-%d characters", minDisplayNameLength, maxDisplayNameLength)
	}
	return displayName, nil
}

// UserService covers profile reads, profile edits and user search.
type UserService interface {
	GetProfile(ctx context.Context, userID uint) (*models.User, error)
	// UpdateProfile changes the display name. A non-empty username that differs from the
	// stored one fails with ErrUsernameImmutable.
	UpdateProfile(ctx context.Context, userID uint, username, displayName string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, currentUserID uint) ([]models.UserBasicInfo, error)
}

type userService struct {
	userRepo storage.UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, storageErr("get user", err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uint, username, displayName string) (*models.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if username != "" && CanonicalUsername(username) != user.Username {
		return nil, ErrUsernameImmutable
	}

	name, err := normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if name == user.DisplayName {
		return user, nil
	}

	if err := s.userRepo.UpdateDisplayName(ctx, userID, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, storageErr("update display name", err)
	}
	user.DisplayName = name
	return user, nil
}

func (s *userService) SearchUsers(ctx context.Context, query string, currentUserID uint) ([]models.UserBasicInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidInput("search query is required")
	}
	users, err := s.userRepo.SearchUsers(ctx, query, currentUserID, searchResultLimit)
	if err != nil {
		return nil, storageErr("search users", err)
	}
	return users, nil
}
