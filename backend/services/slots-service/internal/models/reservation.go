package models

import "time"

// Reservation statuses.
const (
	ReservationBooked    = "Booked"
	ReservationCompleted = "Completed"
	ReservationCancelled = "Cancelled"
)

// Reservation is an owner's booking against a slot.
type Reservation struct {
	ID             string     `db:"reservation_id" json:"reservation_id"`
	OwnerID        string     `db:"owner_id" json:"owner_id"`
	ProviderID     string     `db:"provider_id" json:"provider_id,omitempty"`
	SlotID         string     `db:"slot_id" json:"slot_id"`
	StationID      string     `db:"station_id" json:"station_id"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        *time.Time `db:"end_time" json:"end_time,omitempty"`
	Status         string     `db:"status" json:"status"`
	EnergyConsumed float64    `db:"energy_consumed" json:"energy_consumed"`
}
