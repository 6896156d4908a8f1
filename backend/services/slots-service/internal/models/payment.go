package models

import "time"

// Payment statuses.
const (
	PaymentCompleted = "Completed"
	PaymentPending   = "Pending"
	PaymentFailed    = "Failed"
)

// Payment records money received by a provider.
type Payment struct {
	ID                int64     `db:"payment_id" json:"payment_id"`
	ProviderID        string    `db:"provider_id" json:"provider_id"`
	OwnerID           string    `db:"owner_id" json:"owner_id"`
	HoldID            string    `db:"hold_id" json:"hold_id,omitempty"`
	CheckoutSessionID string    `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	Amount            float64   `db:"amount" json:"amount"`
	Status            string    `db:"payment_status" json:"payment_status"`
	PaidAt            time.Time `db:"payment_date" json:"payment_date"`
}
