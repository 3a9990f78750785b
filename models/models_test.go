package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Brand Refresh":            "brand-refresh",
		"  Café & Bar -- 2024!  ":  "caf-bar-2024",
		"already-a-slug":           "already-a-slug",
		"***":                      "",
		"Q3 / Q4 Campaign Rollout": "q3-q4-campaign-rollout",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestRole_Permissions(t *testing.T) {
	editor := Role{Name: "editor", Permissions: []Permission{{Name: "projects.view"}, {Name: "logos.create"}}}
	assert.True(t, editor.HasPermission("logos.create"))
	assert.False(t, editor.HasPermission("users.delete"))
	assert.Equal(t, []string{"projects.view", "logos.create"}, editor.PermissionNames())

	root := Role{Name: RoleSuperAdmin}
	assert.True(t, root.HasPermission("anything.at.all"))
	assert.Empty(t, root.PermissionNames())
}

func TestRole_Label(t *testing.T) {
	assert.Equal(t, "Super Admin", Role{Name: "super-admin"}.Label())
	assert.Equal(t, "Viewer", Role{Name: "viewer"}.Label())
	assert.Equal(t, "", Role{}.Label())
}

func TestUser_Can(t *testing.T) {
	id := uint(3)
	u := User{RoleID: &id, Role: Role{Name: "viewer", Permissions: []Permission{{Name: "customers.view"}}}}
	assert.True(t, u.Can("customers.view"))
	assert.False(t, u.Can("customers.update"))

	u.RoleID = nil
	assert.False(t, u.Can("customers.view"), "users without a role have no permissions")
}

func TestRefreshToken_Usable(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tok := RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, tok.Usable(now))
	assert.False(t, tok.Usable(now.Add(time.Hour)))

	tok.Revoked = true
	assert.False(t, tok.Usable(now))
}
