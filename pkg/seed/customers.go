package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"ultrashots/models"
)

// customersSeeder creates the customers together with their own projects.
type customersSeeder struct {
	f   *Fixtures
	now time.Time
}

func (customersSeeder) Name() string { return Customers }

func (s customersSeeder) Seed(ctx context.Context, db *gorm.DB) (Result, error) {
	var res Result
	rng := rand.New(rand.NewSource(s.f.Projects.Seed))
	for _, cf := range s.f.Customers {
		var c models.Customer
		err := ensure(db, models.Customer{Email: cf.Email}, &c, func() (models.Customer, error) {
			return models.Customer{
				Name:    cf.Name,
				Company: cf.Company,
				Email:   cf.Email,
				Phone:   cf.Phone,
				Website: cf.Website,
				Country: cf.Country,
				Status:  cf.Status,
				Notes:   cf.Notes,
			}, nil
		}, &res)
		if err != nil {
			return res, fmt.Errorf("customer %s: %w", cf.Email, err)
		}

		for _, pf := range cf.Projects {
			p := newProject(rng, s.now, c.ID, pf.Title, pf.Status, pf.Budget)
			p.Slug = models.Slugify(cf.Company + " " + pf.Title)
			var existing models.Project
			if err := ensure(db, models.Project{Slug: p.Slug}, &existing, func() (models.Project, error) { return p, nil }, &res); err != nil {
				return res, fmt.Errorf("project %s: %w", p.Slug, err)
			}
		}
	}
	return res, nil
}

// newProject fills dates consistent with status. Every call draws the same number of
// values from rng so later projects do not depend on earlier statuses.
func newProject(rng *rand.Rand, now time.Time, customerID uint, title, status string, budget int64) models.Project {
	start := now.AddDate(0, 0, -rng.Intn(540)).Truncate(24 * time.Hour)
	due := start.AddDate(0, 0, 14+rng.Intn(120))
	featured := rng.Intn(4) == 0

	p := models.Project{
		CustomerID: customerID,
		Title:      title,
		Status:     status,
		Budget:     budget,
		Featured:   featured && status == models.ProjectCompleted,
	}
	if status != models.ProjectPlanning {
		p.StartDate = &start
	}
	p.DueDate = &due
	if status == models.ProjectCompleted {
		done := due
		if done.After(now) {
			done = now
		}
		p.CompletedAt = &done
	}
	return p
}
