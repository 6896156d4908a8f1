package models

import "time"

// Station represents a charging station owned by an energy provider.
type Station struct {
	ID         string    `db:"station_id" json:"station_id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	Name       string    `db:"station_name" json:"station_name"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	Address    string    `db:"address" json:"address"`
	Latitude   *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude  *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
