package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chargegrid/backend/services/slots-service/internal/models"
)

// Dashboard serves read projections for provider and owner dashboards.
type Dashboard interface {
	StationStatus(ctx context.Context, providerID string) ([]models.StationStatus, error)
	LatestReservations(ctx context.Context, providerID string) ([]models.RecentReservation, error)
	EnergyPaymentStats(ctx context.Context, providerID string) ([]models.MonthlyStat, error)
	BookedReservations(ctx context.Context, ownerID string) ([]models.Reservation, error)
	ReservationHistory(ctx context.Context, ownerID string) ([]models.ReservationHistoryItem, error)
	ChargingPatterns(ctx context.Context, ownerID string) ([]models.ChargingPattern, error)
	SlotsByProvider(ctx context.Context, providerID string) ([]models.ProviderSlot, error)
	StationsByPostalCode(ctx context.Context, postalCode string) ([]models.Station, error)
}

// projection adapts a single-id read to an HTTP handler replying {status, <field>: rows}.
func projection[T any](param, field, fallback string, read func(context.Context, string) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := read(r.Context(), chi.URLParam(r, param))
		if err != nil {
			writeServiceError(w, err, fallback)
			return
		}
		body := map[string]any{"status": statusSuccess, field: rows}
		if len(rows) == 0 {
			body["message"] = "No records found"
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// NewProviderSlotsHandler handles GET /api/charging-slots/{providerID}.
func NewProviderSlotsHandler(d Dashboard) http.HandlerFunc {
	return projection("providerID", "slots", "failed to fetch charging slots", d.SlotsByProvider)
}

// NewStationStatusHandler handles GET /api/charging-slots/slots/{providerID}.
func NewStationStatusHandler(d Dashboard) http.HandlerFunc {
	return projection("providerID", "stations", "failed to fetch station status", d.StationStatus)
}

// NewLatestReservationsHandler handles GET /api/ev-owner-reservations/{providerID}.
func NewLatestReservationsHandler(d Dashboard) http.HandlerFunc {
	return projection("providerID", "reservations", "failed to fetch reservations", d.LatestReservations)
}

// NewEnergyPaymentStatsHandler handles GET /api/energy-payment-stats/{providerID}.
func NewEnergyPaymentStatsHandler(d Dashboard) http.HandlerFunc {
	return projection("providerID", "data", "failed to fetch energy and payment stats", d.EnergyPaymentStats)
}

// NewBookedReservationsHandler handles GET /api/reservations/{ownerID}.
func NewBookedReservationsHandler(d Dashboard) http.HandlerFunc {
	return projection("ownerID", "data", "failed to fetch reservations", d.BookedReservations)
}

// NewReservationHistoryHandler handles GET /api/history/{ownerID}.
func NewReservationHistoryHandler(d Dashboard) http.HandlerFunc {
	return projection("ownerID", "data", "failed to fetch reservation history", d.ReservationHistory)
}

// NewChargingInfoHandler handles GET /api/reservations_with_charging_info/{ownerID}.
func NewChargingInfoHandler(d Dashboard) http.HandlerFunc {
	return projection("ownerID", "data", "failed to fetch charging info", d.ChargingPatterns)
}

// NewStationsByPostalCodeHandler handles POST /api/charging-slots/get_stations.
func NewStationsByPostalCodeHandler(d Dashboard) http.HandlerFunc {
	type request struct {
		PostalCode string `json:"postal_code"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.PostalCode) == "" {
			writeError(w, http.StatusBadRequest, "postal code is required")
			return
		}

		stations, err := d.StationsByPostalCode(r.Context(), req.PostalCode)
		if err != nil {
			writeServiceError(w, err, "failed to fetch stations")
			return
		}
		body := map[string]any{"status": statusSuccess, "data": stations}
		if len(stations) == 0 {
			body["message"] = "No stations found for the given postal code"
		}
		writeJSON(w, http.StatusOK, body)
	}
}
