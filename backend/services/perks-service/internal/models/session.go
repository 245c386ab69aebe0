package models

import "time"

// Exclusive session status constants.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusExpired   = "expired"
	SessionStatusCanceled  = "canceled"
)

// ExclusiveSession is a time-limited perk grant tied to a charger/merchant pair.
// A driver holds at most one active session at any instant.
type ExclusiveSession struct {
	ID             string     `db:"id" json:"id"`
	DriverID       int64      `db:"driver_id" json:"driver_id"`
	ChargerID      string     `db:"charger_id" json:"charger_id"`
	MerchantID     string     `db:"merchant_id" json:"merchant_id,omitempty"`
	IntentID       *string    `db:"intent_id" json:"intent_id,omitempty"`
	Status         string     `db:"status" json:"status"`
	ActivatedAt    time.Time  `db:"activated_at" json:"activated_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Feedback       *string    `db:"feedback" json:"feedback,omitempty"`
	Lat            float64    `db:"activation_lat" json:"activation_lat"`
	Lng            float64    `db:"activation_lng" json:"activation_lng"`
	Accuracy       *float64   `db:"activation_accuracy" json:"activation_accuracy,omitempty"`
	DistanceMeters float64    `db:"distance_meters" json:"distance_meters"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
