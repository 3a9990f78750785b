// Package models holds the GORM models of the application.
package models

// All returns every model in foreign-key order: roles and permissions first, so the users
// foreign key can be applied, then customers before projects and logos.
func All() []any {
	return []any{
		&Permission{},
		&Role{},
		&User{},
		&RefreshToken{},
		&Customer{},
		&Project{},
		&Logo{},
		&Subscriber{},
	}
}
