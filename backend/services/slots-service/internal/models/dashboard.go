package models

import "time"

// StationStatus summarises slot occupancy and takings for one station.
type StationStatus struct {
	StationID         string  `json:"station_id"`
	StationName       string  `json:"station_name"`
	AvailableSlots    int     `json:"available_slots"`
	ReservedSlots     int     `json:"active_reservations"`
	TotalSlots        int     `json:"total_slots"`
	TotalPaymentMonth float64 `json:"total_payment_month"`
	TotalPaymentToday float64 `json:"total_payment_today"`
}

// RecentReservation is a provider-facing reservation row with the owner's name.
type RecentReservation struct {
	ReservationID  string    `json:"reservation_id"`
	StartTime      time.Time `json:"start_time"`
	Status         string    `json:"status"`
	EnergyConsumed float64   `json:"energy_consumed"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
}

// MonthlyStat is one calendar month of completed energy and payments.
type MonthlyStat struct {
	Month               string  `json:"month_year"`
	TotalEnergyConsumed float64 `json:"total_energy_consumed"`
	TotalAmount         float64 `json:"total_amount"`
}

// ReservationHistoryItem is a reservation joined with its station name.
type ReservationHistoryItem struct {
	ReservationID string    `json:"reservation_id"`
	StartTime     time.Time `json:"start_time"`
	Status        string    `json:"status"`
	StationName   string    `json:"station_name"`
}

// ChargingPattern classifies a reservation by time of day and day of week.
type ChargingPattern struct {
	ReservationID  string    `json:"reservation_id"`
	StartTime      time.Time `json:"start_time"`
	EnergyConsumed float64   `json:"energy_consumed"`
	ChargingTime   string    `json:"charging_time"`
	ChargingDay    string    `json:"charging_day"`
}

// ProviderSlot is a slot listed under a provider's stations.
type ProviderSlot struct {
	StationID    string  `json:"station_id"`
	SlotNumber   int     `json:"slot_number"`
	SlotType     string  `json:"slot_type"`
	Price        float64 `json:"price"`
	Availability int     `json:"availability"`
}
