package models

import "time"

// Arrival verification states.
const (
	ArrivalStatePending     = "pending"
	ArrivalStateCarVerified = "car_verified"
	ArrivalStateArrived     = "arrived"
	ArrivalStateRedeemed    = "redeemed"
	ArrivalStateExpired     = "expired"
)

// ArrivalSession tracks on-site verification for a driver who shows up at a
// merchant without a pre-existing exclusive session. The PIN is stored as a
// bcrypt hash; the plain code is shown out-of-band exactly once at check-in.
type ArrivalSession struct {
	ID                 string     `db:"id" json:"id"`
	Token              string     `db:"token" json:"token"`
	DriverID           int64      `db:"driver_id" json:"driver_id"`
	MerchantID         string     `db:"merchant_id" json:"merchant_id"`
	State              string     `db:"state" json:"state"`
	PinHash            string     `db:"pin_hash" json:"-"`
	PinAttempts        int        `db:"pin_attempts" json:"-"`
	PromoCode          *string    `db:"promo_code" json:"promo_code,omitempty"`
	PromoCodeExpiresAt *time.Time `db:"promo_code_expires_at" json:"promo_code_expires_at,omitempty"`
	StateDeadline      time.Time  `db:"state_deadline" json:"state_deadline"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the arrival flow has finished for good.
func (a *ArrivalSession) IsTerminal() bool {
	return a.State == ArrivalStateRedeemed || a.State == ArrivalStateExpired
}
