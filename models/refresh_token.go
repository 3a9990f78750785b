package models

import "time"

// RefreshToken stores a hashed api refresh token. Rotation revokes the old row and points
// ReplacedByID at its successor so reuse of a rotated token can be detected.
type RefreshToken struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserID       uint      `gorm:"index;not null"`
	User         User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	TokenHash    string    `gorm:"size:128;not null;uniqueIndex"`
	ExpiresAt    time.Time `gorm:"index;not null"`
	Revoked      bool      `gorm:"default:false"`
	ReplacedByID *uint
}

// Usable reports whether the token can still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
