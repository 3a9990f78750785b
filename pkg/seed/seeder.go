// Package seed fills an empty database with demo data. Seeders run one after another in a
// fixed order; each is idempotent, so a run can be repeated safely.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ultrashots/pkg/logger"
	"ultrashots/pkg/media"
)

// Seeder names in canonical order.
const (
	RolesAndPermissions = "roles"
	Users               = "users"
	Customers           = "customers"
	Projects            = "projects"
	Logos               = "logos"
	Subscribers         = "subscribers"
)

// Seeder inserts one kind of record.
type Seeder interface {
	Name() string
	Seed(ctx context.Context, db *gorm.DB) (Result, error)
}

// Result counts the records a seeder created and the ones it found already present.
type Result struct {
	Created  int
	Existing int
}

// Runner executes seeders in order and prints a summary.
type Runner struct {
	db       *gorm.DB
	log      *slog.Logger
	out      io.Writer
	noColor  bool
	cost     int
	store    *media.Store
	now      func() time.Time
	fixtures *Fixtures
	seeders  []Seeder
	defaults []string
}

// Option customises a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.log = l } }

// WithOutput redirects the console summary (default os.Stdout).
func WithOutput(w io.Writer) Option { return func(r *Runner) { r.out = w } }

// NoColor disables ANSI colours in the summary.
func NoColor() Option { return func(r *Runner) { r.noColor = true } }

// WithBcryptCost sets the cost used to hash seeded passwords.
func WithBcryptCost(cost int) Option { return func(r *Runner) { r.cost = cost } }

// WithMedia lets the logo seeder write placeholder images into store.
func WithMedia(store *media.Store) Option { return func(r *Runner) { r.store = store } }

// WithFixtures replaces the embedded data set.
func WithFixtures(f *Fixtures) Option { return func(r *Runner) { r.fixtures = f } }

// WithClock sets the reference time for generated dates.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithSeeders replaces the seeder list. All of them run by default, in the given order.
func WithSeeders(seeders ...Seeder) Option {
	return func(r *Runner) {
		r.seeders = seeders
		r.defaults = nil
		for _, s := range seeders {
			r.defaults = append(r.defaults, s.Name())
		}
	}
}

// NewRunner builds the standard runner: roles and permissions, users, customers, projects,
// logos, subscribers. Logos are skipped by Run and only seeded when asked for by name.
func NewRunner(db *gorm.DB, opts ...Option) (*Runner, error) {
	r := &Runner{
		db:   db,
		log:  logger.Discard(),
		out:  os.Stdout,
		cost: bcrypt.DefaultCost,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fixtures == nil {
		f, err := LoadFixtures()
		if err != nil {
			return nil, err
		}
		r.fixtures = f
	}
	if r.seeders == nil {
		f, now := r.fixtures, r.now()
		r.seeders = []Seeder{
			rolesSeeder{f: f},
			usersSeeder{f: f, cost: r.cost},
			customersSeeder{f: f, now: now},
			projectsSeeder{f: f, now: now},
			logosSeeder{f: f, store: r.store},
			subscribersSeeder{f: f, now: now},
		}
		r.defaults = []string{RolesAndPermissions, Users, Customers, Projects, Subscribers}
	}
	return r, nil
}

// Names lists every known seeder in canonical order.
func (r *Runner) Names() []string {
	out := make([]string, 0, len(r.seeders))
	for _, s := range r.seeders {
		out = append(out, s.Name())
	}
	return out
}

// Run executes the default seeders.
func (r *Runner) Run(ctx context.Context) error {
	return r.Only(ctx, r.defaults...)
}

// Only executes the named seeders, still in canonical order. The first failure aborts the run.
func (r *Runner) Only(ctx context.Context, names ...string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var selected []Seeder
	for _, s := range r.seeders {
		if want[s.Name()] {
			selected = append(selected, s)
			delete(want, s.Name())
		}
	}
	if len(want) > 0 {
		return fmt.Errorf("unknown seeder: %s", strings.Join(slices.Sorted(maps.Keys(want)), ", "))
	}

	r.color(color.FgGreen).Fprintln(r.out, "Starting database seeding...")
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		var res Result
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = s.Seed(ctx, tx)
			return err
		})
		if err != nil {
			r.log.Error("seeder failed", "seeder", s.Name(), "error", err)
			return fmt.Errorf("seed %s: %w", s.Name(), err)
		}
		r.log.Info("seeded", "seeder", s.Name(), "created", res.Created, "existing", res.Existing, "took", time.Since(start))
		fmt.Fprintf(r.out, "  %-12s %d created, %d existing\n", s.Name(), res.Created, res.Existing)
	}
	r.printSummary()
	return nil
}

func (r *Runner) printSummary() {
	f := r.fixtures
	heading := r.color(color.FgGreen, color.Bold)
	label := r.color(color.FgCyan)

	fmt.Fprintln(r.out)
	heading.Fprintln(r.out, "Database seeding completed successfully!")
	fmt.Fprintln(r.out)
	label.Fprintln(r.out, "Summary:")
	fmt.Fprintf(r.out, "- Roles & Permissions: %d roles, %d permissions\n", len(f.Roles), len(f.PermissionNames()))
	fmt.Fprintf(r.out, "- Users: %d users with various roles\n", len(f.Users))
	fmt.Fprintf(r.out, "- Customers: %d customers with projects\n", len(f.Customers))
	fmt.Fprintf(r.out, "- Projects: %d projects with different statuses\n", f.ProjectTotal())
	fmt.Fprintf(r.out, "- Logos: %d logo downloads\n", len(f.Logos))
	fmt.Fprintf(r.out, "- Subscribers: %d newsletter subscribers\n", f.Subscribers.Count)
	fmt.Fprintln(r.out)
	label.Fprintln(r.out, "Login credentials:")
	for _, u := range f.Users {
		if u.Label != "" {
			fmt.Fprintf(r.out, "%s: %s / %s\n", u.Label, u.Email, u.Password)
		}
	}
	fmt.Fprintln(r.out)
	heading.Fprintln(r.out, "Your portfolio is ready to showcase!")
}

func (r *Runner) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if r.noColor {
		c.DisableColor()
	}
	return c
}

// ensure loads the row matching where into out. When there is none it stores the record
// returned by build.
func ensure[T any](db *gorm.DB, where any, out *T, build func() (T, error), res *Result) error {
	tx := db.Where(where).Limit(1).Find(out)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		res.Existing++
		return nil
	}
	rec, err := build()
	if err != nil {
		return err
	}
	if err := db.Create(&rec).Error; err != nil {
		return err
	}
	*out = rec
	res.Created++
	return nil
}

var errNoCustomers = errors.New("no customers found, seed customers first")
