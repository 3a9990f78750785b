package seed

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"ultrashots/models"
)

type rolesSeeder struct{ f *Fixtures }

func (rolesSeeder) Name() string { return RolesAndPermissions }

func (s rolesSeeder) Seed(ctx context.Context, db *gorm.DB) (Result, error) {
	var res Result
	descriptions := make(map[string]string)
	for _, p := range s.f.Permissions.Extra {
		descriptions[p.Name] = p.Description
	}

	names := s.f.PermissionNames()
	perms := make(map[string]models.Permission, len(names))
	for _, name := range names {
		var p models.Permission
		err := ensure(db, models.Permission{Name: name}, &p, func() (models.Permission, error) {
			d, ok := descriptions[name]
			if !ok {
				resource, action, _ := strings.Cut(name, ".")
				d = fmt.Sprintf("Can %s %s", action, resource)
			}
			return models.Permission{Name: name, Description: d}, nil
		}, &res)
		if err != nil {
			return res, fmt.Errorf("permission %s: %w", name, err)
		}
		perms[name] = p
	}

	for _, rf := range s.f.Roles {
		var role models.Role
		err := ensure(db, models.Role{Name: rf.Name}, &role, func() (models.Role, error) {
			return models.Role{Name: rf.Name, Description: rf.Description}, nil
		}, &res)
		if err != nil {
			return res, fmt.Errorf("role %s: %w", rf.Name, err)
		}
		granted := ExpandPermissions(rf.Permissions, names)
		if len(granted) == 0 {
			return res, fmt.Errorf("role %s: patterns %v match no permission", rf.Name, rf.Permissions)
		}
		list := make([]models.Permission, 0, len(granted))
		for _, n := range granted {
			list = append(list, perms[n])
		}
		if err := db.Model(&role).Association("Permissions").Replace(list); err != nil {
			return res, fmt.Errorf("role %s permissions: %w", rf.Name, err)
		}
	}
	return res, nil
}
