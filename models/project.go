package models

import (
	"strings"
	"time"
	"unicode"
)

// Project statuses.
const (
	ProjectPlanning   = "planning"
	ProjectInProgress = "in_progress"
	ProjectOnHold     = "on_hold"
	ProjectCompleted  = "completed"
	ProjectCancelled  = "cancelled"
)

// ProjectStatuses lists every valid Project.Status value in workflow order.
var ProjectStatuses = []string{ProjectPlanning, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled}

// Project is a piece of work delivered for a customer. Budget is kept in cents.
type Project struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CustomerID  uint       `gorm:"index;not null" json:"customer_id"`
	Customer    *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Slug        string     `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Description string     `gorm:"type:text" json:"description"`
	Status      string     `gorm:"size:16;not null;default:planning;index" json:"status"`
	Budget      int64      `gorm:"not null;default:0" json:"budget"`
	StartDate   *time.Time `json:"start_date"`
	DueDate     *time.Time `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at"`
	Featured    bool       `gorm:"default:false;index" json:"featured"`
}

// Slugify lower-cases s and joins its alphanumeric runs with "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
