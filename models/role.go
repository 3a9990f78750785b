package models

import (
	"strings"
	"time"
)

// RoleSuperAdmin is granted every permission regardless of its permission list.
const RoleSuperAdmin = "super-admin"

// Role represents a named set of permissions. Every user carries at most one role.
type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Name        string       `gorm:"size:32;uniqueIndex;not null" json:"name"`
	Description string       `gorm:"size:255" json:"description"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// HasPermission reports whether the role grants name. Permissions must be preloaded.
func (r Role) HasPermission(name string) bool {
	if r.Name == RoleSuperAdmin {
		return true
	}
	for _, p := range r.Permissions {
		if p.Name == name {
			return true
		}
	}
	return false
}

// PermissionNames returns the granted permission names in the order they were loaded.
func (r Role) PermissionNames() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.Name)
	}
	return out
}

// Label turns "super-admin" into "Super Admin".
func (r Role) Label() string {
	parts := strings.Split(r.Name, "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
