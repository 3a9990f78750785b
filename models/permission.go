package models

import "time"

// Permission is an action on a resource, named "resource.action" (e.g. "customers.update").
type Permission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	Roles       []Role    `gorm:"many2many:role_permissions;" json:"-"`
}
