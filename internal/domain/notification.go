package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationSuccess NotificationStatus = "success"
	NotificationError   NotificationStatus = "error"
)

type Notification struct {
	ID          uuid.UUID          `json:"id"`
	Status      NotificationStatus `json:"status"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	CreatedAt   time.Time          `json:"created_at"`
	Duration    time.Duration      `json:"duration"`
}

func (n Notification) Expired(now time.Time) bool {
	if n.Duration <= 0 {
		return false
	}
	return now.Sub(n.CreatedAt) >= n.Duration
}
