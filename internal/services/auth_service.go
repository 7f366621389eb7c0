package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"remindify/internal/auth"
	"remindify/internal/config"
	"remindify/internal/models"
	"remindify/internal/storage"
)

var (
	ErrUserAlreadyExists  = errors.New("username or email already in use")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const minPasswordLength = 8

// AuthService handles registration, login and logout.
type AuthService interface {
	Register(ctx context.Context, username, displayName, email, password string) (*models.User, error)
	Login(ctx context.Context, usernameOrEmail, password string) (token string, user *models.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

type authService struct {
	userRepo  storage.UserRepository
	blacklist auth.TokenBlacklist
	cfg       config.AuthConfig
}

// NewAuthService creates a new AuthService. blacklist may be nil, in which case
// logout cannot revoke tokens before they expire.
func NewAuthService(userRepo storage.UserRepository, blacklist auth.TokenBlacklist, cfg config.AuthConfig) AuthService {
	return &authService{
		userRepo:  userRepo,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

func (s *authService) Register(ctx context.Context, username, displayName, email, password string) (*models.User, error) {
	// 1. Validate input
	username = CanonicalUsername(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = username
	}
	displayName, err := normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, invalidInput("password must be at least %d characters", minPasswordLength)
	}
	email = strings.ToLower(strings.TrimSpace(email))

	// 2. Check uniqueness
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageErr("check username", err)
	}
	if email != "" {
		if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
			return nil, ErrUserAlreadyExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storageErr("check email", err)
		}
	}

	// 3. Create
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser := &models.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
	}
	if email != "" {
		newUser.Email = &email
	}

	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, storageErr("create user", err)
	}

	log.Printf("User %d registered as %q", newUser.ID, newUser.Username)
	return newUser, nil
}

func (s *authService) Login(ctx context.Context, usernameOrEmail, password string) (string, *models.User, error) {
	identifier := strings.ToLower(strings.TrimSpace(usernameOrEmail))

	user, err := s.userRepo.GetByUsername(ctx, identifier)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.userRepo.GetByEmail(ctx, identifier)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	} else if err != nil {
		return "", nil, storageErr("find user for login", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Username, s.cfg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user.PasswordHash = ""
	return token, user, nil
}

func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return invalidInput("token has no id or expiry")
	}
	if s.blacklist == nil {
		log.Printf("Logout for user %d: no token blacklist configured, token stays valid until expiry", claims.UserID)
		return nil
	}
	if err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
