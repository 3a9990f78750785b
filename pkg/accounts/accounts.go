// Package accounts registers and authenticates users and issues api tokens.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/database"
)

// MinPasswordLength is the basic password policy.
const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrRoleNotFound       = errors.New("role not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = fmt.Errorf("password too short (min %d)", MinPasswordLength)
)

// Service handles user accounts.
type Service struct {
	db     *gorm.DB
	cost   int
	tokens TokenConfig
}

// Option customises a Service.
type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost (tests use bcrypt.MinCost).
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithTokens configures api token signing.
func WithTokens(tc TokenConfig) Option {
	return func(s *Service) { s.tokens = tc }
}

// NewService creates an account service.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, cost: bcrypt.DefaultCost, tokens: defaultTokenConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword hashes plain with bcrypt at cost.
func HashPassword(plain string, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// Register creates a user with the given role name.
func (s *Service) Register(ctx context.Context, name, email, password, roleName string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	db := s.db.WithContext(ctx)
	// pre-check existing (optimistic)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	var role models.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
		}
		return nil, fmt.Errorf("loading role: %w", err)
	}

	hashed, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}
	rid := role.ID
	user := models.User{Name: name, Email: email, HashedPassword: hashed, RoleID: &rid, Role: role}
	if err := db.Omit("Role").Create(&user).Error; err != nil {
		if database.IsUniqueConstraintError(err) { // race after the initial check
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &user, nil
}

// Authenticate returns the user owning email when password matches.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role.Permissions").Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// FindByID loads a user with its role and permissions.
func (s *Service) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role.Permissions").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ResetPassword replaces the password of the user owning email.
func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	hashed, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", normalizeEmail(email)).Update("hashed_password", hashed)
	if res.Error != nil {
		return fmt.Errorf("update failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AssignRole moves the user to the named role.
func (s *Service) AssignRole(ctx context.Context, userID uint, roleName string) (*models.User, error) {
	db := s.db.WithContext(ctx)
	var role models.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
	}
	res := db.Model(&models.User{}).Where("id = ?", userID).Update("role_id", role.ID)
	if res.Error != nil {
		return nil, fmt.Errorf("assigning role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.FindByID(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
