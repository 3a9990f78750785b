package seed

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Fixtures is the seed data set.
type Fixtures struct {
	Permissions PermissionFixtures
	Roles       []RoleFixture     `validate:"min=1,dive"`
	Users       []UserFixture     `validate:"min=1,dive"`
	Customers   []CustomerFixture `validate:"min=1,dive"`
	Projects    ProjectFixtures
	Subscribers SubscriberFixtures
	Logos       []string `validate:"dive,required"`
}

type PermissionFixtures struct {
	Resources []string            `yaml:"resources" validate:"min=1,dive,required"`
	Actions   []string            `yaml:"actions" validate:"min=1,dive,required"`
	Extra     []PermissionFixture `yaml:"extra" validate:"dive"`
}

type PermissionFixture struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
}

type RoleFixture struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions" validate:"min=1,dive,required"`
}

type UserFixture struct {
	Name     string `yaml:"name" validate:"required"`
	Email    string `yaml:"email" validate:"required,email"`
	Password string `yaml:"password" validate:"required,min=8"`
	Role     string `yaml:"role" validate:"required"`
	Label    string `yaml:"label"`
}

type CustomerFixture struct {
	Name     string                   `yaml:"name" validate:"required"`
	Company  string                   `yaml:"company"`
	Email    string                   `yaml:"email" validate:"required,email"`
	Phone    string                   `yaml:"phone"`
	Website  string                   `yaml:"website" validate:"omitempty,url"`
	Country  string                   `yaml:"country" validate:"omitempty,len=2"`
	Status   string                   `yaml:"status" validate:"oneof=active inactive lead"`
	Notes    string                   `yaml:"notes"`
	Projects []CustomerProjectFixture `yaml:"projects" validate:"dive"`
}

type CustomerProjectFixture struct {
	Title  string `yaml:"title" validate:"required"`
	Status string `yaml:"status" validate:"oneof=planning in_progress on_hold completed cancelled"`
	Budget int64  `yaml:"budget" validate:"min=0"`
}

type ProjectFixtures struct {
	Count        int      `yaml:"count" validate:"min=0"`
	Seed         int64    `yaml:"seed"`
	Titles       []string `yaml:"titles" validate:"required_with=Count,dive,required"`
	Descriptions []string `yaml:"descriptions"`
}

type SubscriberFixtures struct {
	Count      int      `yaml:"count" validate:"min=0"`
	Seed       int64    `yaml:"seed"`
	FirstNames []string `yaml:"first_names" validate:"min=1"`
	LastNames  []string `yaml:"last_names" validate:"min=1"`
	Domains    []string `yaml:"domains" validate:"min=1,dive,hostname"`
	Sources    []string `yaml:"sources" validate:"min=1"`
}

// LoadFixtures decodes and validates the embedded data set.
func LoadFixtures() (*Fixtures, error) {
	var (
		f     Fixtures
		roles struct {
			PermissionFixtures `yaml:",inline"`
			Roles              []RoleFixture `yaml:"roles"`
		}
		users struct {
			Users []UserFixture `yaml:"users"`
		}
		customers struct {
			Customers []CustomerFixture `yaml:"customers"`
		}
		projects struct {
			Projects ProjectFixtures `yaml:"projects"`
		}
		subscribers struct {
			Subscribers SubscriberFixtures `yaml:"subscribers"`
		}
		logos struct {
			Logos []string `yaml:"logos"`
		}
	)
	files := map[string]any{
		"roles.yaml":       &roles,
		"users.yaml":       &users,
		"customers.yaml":   &customers,
		"projects.yaml":    &projects,
		"subscribers.yaml": &subscribers,
		"logos.yaml":       &logos,
	}
	for name, out := range files {
		raw, err := dataFS.ReadFile(path.Join("data", name))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", name, err)
		}
		if err := yaml.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("parse fixture %s: %w", name, err)
		}
	}

	f.Permissions = roles.PermissionFixtures
	f.Roles = roles.Roles
	f.Users = users.Users
	f.Customers = customers.Customers
	f.Projects = projects.Projects
	f.Subscribers = subscribers.Subscribers
	f.Logos = logos.Logos

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field rules and that users reference known roles.
func (f *Fixtures) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("invalid fixtures: %w", err)
	}
	roles := make(map[string]bool, len(f.Roles))
	for _, r := range f.Roles {
		roles[r.Name] = true
	}
	for _, u := range f.Users {
		if !roles[u.Role] {
			return fmt.Errorf("invalid fixtures: user %s has unknown role %q", u.Email, u.Role)
		}
	}
	return nil
}

// PermissionNames returns every permission: resource x action, then the extras.
func (f *Fixtures) PermissionNames() []string {
	var out []string
	for _, res := range f.Permissions.Resources {
		for _, act := range f.Permissions.Actions {
			out = append(out, res+"."+act)
		}
	}
	for _, p := range f.Permissions.Extra {
		out = append(out, p.Name)
	}
	return out
}

// ProjectTotal is the number of projects a full run creates.
func (f *Fixtures) ProjectTotal() int {
	n := f.Projects.Count
	for _, c := range f.Customers {
		n += len(c.Projects)
	}
	return n
}

// ExpandPermissions resolves role patterns against all. "*" grants everything,
// "res.*" every action on res and "*.act" act on every resource.
func ExpandPermissions(patterns, all []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range all {
		for _, p := range patterns {
			if matchPermission(p, name) && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func matchPermission(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	pr, pa, ok := strings.Cut(pattern, ".")
	if !ok {
		return false
	}
	nr, na, ok := strings.Cut(name, ".")
	if !ok {
		return false
	}
	return (pr == "*" || pr == nr) && (pa == "*" || pa == na)
}
