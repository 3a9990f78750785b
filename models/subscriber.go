package models

import "time"

// Subscriber statuses.
const (
	SubscriberPending      = "pending"
	SubscriberSubscribed   = "subscribed"
	SubscriberUnsubscribed = "unsubscribed"
)

// Subscriber is a newsletter recipient. Token is the opaque value used in unsubscribe links.
type Subscriber struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Email          string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name           string     `gorm:"size:255" json:"name"`
	Status         string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	Token          string     `gorm:"size:36;not null;uniqueIndex" json:"-"`
	Source         string     `gorm:"size:64" json:"source"`
	SubscribedAt   *time.Time `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
}
