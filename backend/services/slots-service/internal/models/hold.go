package models

import "time"

// Hold statuses. Only HoldHeld keeps a slot unavailable pending payment.
const (
	HoldHeld      = "held"
	HoldConfirmed = "confirmed"
	HoldReleased  = "released"
	HoldExpired   = "expired"
)

// SlotHold reserves a slot for the lifetime of a checkout session.
type SlotHold struct {
	ID                string    `db:"hold_id" json:"hold_id"`
	SlotID            string    `db:"slot_id" json:"slot_id"`
	StationID         string    `db:"station_id" json:"station_id"`
	SlotNumber        int       `db:"slot_number" json:"slot_number"`
	UserID            string    `db:"user_id" json:"user_id"`
	CheckoutSessionID string    `db:"checkout_session_id" json:"checkout_session_id"`
	Amount            float64   `db:"amount" json:"amount"`
	Status            string    `db:"status" json:"status"`
	ExpiresAt         time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Open reports whether the hold still blocks its slot at now.
func (h *SlotHold) Open(now time.Time) bool {
	return h.Status == HoldHeld && now.Before(h.ExpiresAt)
}
