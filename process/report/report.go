// Package report summarises projects started in a month, per customer.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gorm.io/gorm"

	"ultrashots/models"
)

// Row is the aggregate for one customer.
type Row struct {
	CustomerID uint
	Name       string
	Company    string
	Projects   int64
	Budget     int64 // cents
}

// Label prefers the company name.
func (r Row) Label() string {
	if r.Company != "" {
		return r.Company
	}
	return r.Name
}

// Report covers projects whose start date falls in [Start, End).
type Report struct {
	Month    string
	Start    time.Time
	End      time.Time
	Rows     []Row
	Projects int64
	Budget   int64
	ByStatus map[string]int64
	List     []models.Project
}

// Build aggregates the month (YYYY-MM, UTC). A non-zero customerID limits the report to
// that customer; list also loads the matching projects.
func Build(ctx context.Context, db *gorm.DB, month string, customerID uint, list bool) (*Report, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	rep := &Report{Month: month, Start: start, End: start.AddDate(0, 1, 0), ByStatus: map[string]int64{}}

	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("projects.start_date >= ? AND projects.start_date < ?", rep.Start, rep.End)
		if customerID != 0 {
			tx = tx.Where("projects.customer_id = ?", customerID)
		}
		return tx
	}

	db = db.WithContext(ctx)
	if err := db.Model(&models.Project{}).
		Select("projects.customer_id AS customer_id, customers.name AS name, customers.company AS company, COUNT(*) AS projects, COALESCE(SUM(projects.budget),0) AS budget").
		Joins("JOIN customers ON customers.id = projects.customer_id").
		Scopes(scope).
		Group("projects.customer_id, customers.name, customers.company").
		Order("customers.name").
		Scan(&rep.Rows).Error; err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	for _, r := range rep.Rows {
		rep.Projects += r.Projects
		rep.Budget += r.Budget
	}

	var statuses []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Project{}).Select("status, COUNT(*) AS count").
		Scopes(scope).Group("status").Scan(&statuses).Error; err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}
	for _, s := range statuses {
		rep.ByStatus[s.Status] = s.Count
	}

	if list {
		if err := db.Preload("Customer").Scopes(scope).Order("projects.start_date, projects.id").Find(&rep.List).Error; err != nil {
			return nil, fmt.Errorf("fetch rows failed: %w", err)
		}
	}
	return rep, nil
}

// Print writes the report as aligned text.
func (r *Report) Print(w io.Writer) error {
	fmt.Fprintf(w, "Projects started in %s (UTC):\n", r.Month)
	fmt.Fprintf(w, "  projects=%d budget=%s\n", r.Projects, Money(r.Budget))
	for _, s := range models.ProjectStatuses {
		if n := r.ByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  %s=%d\n", s, n)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nCUSTOMER\tPROJECTS\tBUDGET")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", row.Label(), row.Projects, Money(row.Budget))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, p := range r.List {
		start := ""
		if p.StartDate != nil {
			start = p.StartDate.Format(time.DateOnly)
		}
		customer := ""
		if p.Customer != nil {
			customer = p.Customer.Name
		}
		fmt.Fprintf(w, "%d|%s|%s|%s|%s\n", p.ID, p.Slug, customer, p.Status, start)
	}
	return nil
}

// Money formats cents as a decimal amount.
func Money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
