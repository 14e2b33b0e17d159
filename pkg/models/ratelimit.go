package models

import "time"

// RateWindow is a user's quota state for one fixed window.
type RateWindow struct {
	UserID    string    `json:"user_id"`
	Remaining uint32    `json:"remaining_requests"`
	ResetAt   time.Time `json:"reset_at"`
}
