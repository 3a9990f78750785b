package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"ultrashots/models"
)

// ErrInvalidToken covers malformed, expired, revoked or unknown tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenConfig controls api token signing and lifetimes.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func defaultTokenConfig() TokenConfig {
	return TokenConfig{
		Secret:     []byte("dev-insecure-secret-change"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

// TokenPair is returned by token issuing endpoints.
type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Claims carried by an access token.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// IssueTokens signs an access token for user and stores a fresh refresh token.
func (s *Service) IssueTokens(ctx context.Context, user *models.User) (TokenPair, error) {
	access, exp, err := s.signAccessToken(user)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate token: %w", err)
	}
	raw, _, err := s.createRefreshToken(s.db.WithContext(ctx), user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: raw, ExpiresAt: exp}, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the presented one.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	var pair TokenPair
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rt, err := findRefreshToken(tx, raw)
		if err != nil || !rt.Usable(time.Now()) {
			return ErrInvalidToken
		}
		var user models.User
		if err := tx.Preload("Role").First(&user, rt.UserID).Error; err != nil {
			return ErrInvalidToken
		}
		access, exp, err := s.signAccessToken(&user)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		newRaw, newRT, err := s.createRefreshToken(tx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to rotate refresh token: %w", err)
		}
		if err := tx.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).
			Updates(map[string]any{"revoked": true, "replaced_by_id": newRT.ID}).Error; err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		pair = TokenPair{AccessToken: access, RefreshToken: newRaw, ExpiresAt: exp}
		return nil
	})
	return pair, err
}

// Revoke marks a refresh token as unusable (logout).
func (s *Service) Revoke(ctx context.Context, raw string) error {
	db := s.db.WithContext(ctx)
	rt, err := findRefreshToken(db, raw)
	if err != nil {
		return ErrInvalidToken
	}
	if err := db.Model(rt).Update("revoked", true).Error; err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ParseAccessToken validates a signed access token.
func (s *Service) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return s.tokens.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) signAccessToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.tokens.AccessTTL)
	claims := Claims{
		Email: user.Email,
		Role:  user.Role.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokens.Secret)
	return signed, exp, err
}

// createRefreshToken generates a random refresh token, stores its hash with expiry and
// returns the raw token string.
func (s *Service) createRefreshToken(db *gorm.DB, userID uint) (string, *models.RefreshToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	raw := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(raw), ExpiresAt: time.Now().Add(s.tokens.RefreshTTL)}
	if err := db.Create(&rt).Error; err != nil {
		return "", nil, err
	}
	return raw, &rt, nil
}

func findRefreshToken(db *gorm.DB, raw string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", hashToken(raw)).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
