package models

import "time"

// Customer statuses.
const (
	CustomerActive   = "active"
	CustomerInactive = "inactive"
	CustomerLead     = "lead"
)

// CustomerStatuses lists every valid Customer.Status value.
var CustomerStatuses = []string{CustomerActive, CustomerInactive, CustomerLead}

// Customer is a client of the studio. Projects are deleted together with their customer.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Company   string    `gorm:"size:255" json:"company"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone     string    `gorm:"size:64" json:"phone"`
	Website   string    `gorm:"size:255" json:"website"`
	Country   string    `gorm:"size:64" json:"country"`
	Status    string    `gorm:"size:16;not null;default:active;index" json:"status"`
	Notes     string    `gorm:"type:text" json:"notes"`
	Projects  []Project `gorm:"foreignKey:CustomerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"projects,omitempty"`
	Logos     []Logo    `gorm:"foreignKey:CustomerID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"logos,omitempty"`
}
