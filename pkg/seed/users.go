package seed

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/accounts"
)

type usersSeeder struct {
	f    *Fixtures
	cost int
}

func (usersSeeder) Name() string { return Users }

func (s usersSeeder) Seed(ctx context.Context, db *gorm.DB) (Result, error) {
	var res Result
	var roles []models.Role
	if err := db.Find(&roles).Error; err != nil {
		return res, err
	}
	roleIDs := make(map[string]uint, len(roles))
	for _, r := range roles {
		roleIDs[r.Name] = r.ID
	}

	verified := time.Now()
	for _, uf := range s.f.Users {
		id, ok := roleIDs[uf.Role]
		if !ok {
			return res, fmt.Errorf("role %s missing for %s", uf.Role, uf.Email)
		}
		var u models.User
		err := ensure(db, models.User{Email: uf.Email}, &u, func() (models.User, error) {
			hashed, err := accounts.HashPassword(uf.Password, s.cost)
			if err != nil {
				return models.User{}, err
			}
			return models.User{
				Name:            uf.Name,
				Email:           uf.Email,
				HashedPassword:  hashed,
				EmailVerifiedAt: &verified,
				RoleID:          &id,
			}, nil
		}, &res)
		if err != nil {
			return res, fmt.Errorf("user %s: %w", uf.Email, err)
		}
	}
	return res, nil
}
