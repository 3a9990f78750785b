package models

import (
	"time"
)

// User model
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Email           string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	HashedPassword  []byte     `gorm:"not null" json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	RoleID          *uint      `gorm:"index" json:"role_id"`
	Role            Role       `gorm:"foreignKey:RoleID;references:ID" json:"role"`
}

// Can reports whether the user's role grants permission. Role.Permissions must be preloaded.
func (u User) Can(permission string) bool {
	if u.RoleID == nil {
		return false
	}
	return u.Role.HasPermission(permission)
}
