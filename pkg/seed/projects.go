package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"ultrashots/models"
)

// projectsSeeder adds generated projects on top of the ones created with the customers.
type projectsSeeder struct {
	f   *Fixtures
	now time.Time
}

func (projectsSeeder) Name() string { return Projects }

func (s projectsSeeder) Seed(ctx context.Context, db *gorm.DB) (Result, error) {
	var res Result
	pf := s.f.Projects
	if pf.Count == 0 {
		return res, nil
	}
	var customers []models.Customer
	if err := db.Order("id").Find(&customers).Error; err != nil {
		return res, err
	}
	if len(customers) == 0 {
		return res, errNoCustomers
	}

	rng := rand.New(rand.NewSource(pf.Seed + 1))
	for i := 0; i < pf.Count; i++ {
		c := customers[rng.Intn(len(customers))]
		title := pf.Titles[rng.Intn(len(pf.Titles))]
		status := models.ProjectStatuses[rng.Intn(len(models.ProjectStatuses))]
		budget := int64(2+rng.Intn(60)) * 25_000
		p := newProject(rng, s.now, c.ID, title, status, budget)
		if len(pf.Descriptions) > 0 {
			p.Description = pf.Descriptions[rng.Intn(len(pf.Descriptions))]
		}
		p.Slug = fmt.Sprintf("%s-%02d", models.Slugify(title), i+1)

		var existing models.Project
		if err := ensure(db, models.Project{Slug: p.Slug}, &existing, func() (models.Project, error) { return p, nil }, &res); err != nil {
			return res, fmt.Errorf("project %s: %w", p.Slug, err)
		}
	}
	return res, nil
}
