package models

import (
	"math"
	"time"
)

const (
	// SlotUnavailable marks a reserved or held slot.
	SlotUnavailable = 0
	// SlotAvailable marks a bookable slot.
	SlotAvailable = 1
)

// Slot is a bookable charging point at a station.
type Slot struct {
	ID           string    `db:"slot_id" json:"slot_id"`
	StationID    string    `db:"station_id" json:"station_id"`
	Number       int       `db:"slot_number" json:"slot_number"`
	Type         string    `db:"slot_type" json:"slot_type"`
	Price        float64   `db:"price" json:"price"`
	Availability int       `db:"availability" json:"availability"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SlotKey addresses a slot the way providers and owners do: by station and number.
type SlotKey struct {
	StationID string
	Number    int
}

// ValidAvailability reports whether v is one of the two availability flags.
func ValidAvailability(v int) bool {
	return v == SlotAvailable || v == SlotUnavailable
}

// ValidPrice reports whether p is a finite, positive price.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
