package models

import (
	"time"
)

// Logo is a downloadable logo file, optionally owned by a customer.
type Logo struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CustomerID  *uint     `gorm:"index" json:"customer_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	FileName    string    `gorm:"size:255;not null;uniqueIndex" json:"file_name"`
	StorePath   string    `gorm:"column:store_path;size:512" json:"store_path"` // relative to the upload base
	ThumbPath   string    `gorm:"size:512" json:"thumb_path"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	Downloads   int64     `gorm:"not null;default:0" json:"downloads"`
}
