package repository

import (
	"context"
	"database/sql"
	"time"

	"chargegrid/backend/services/slots-service/internal/models"
)

// DashboardRepository serves the read-only provider and owner projections.
type DashboardRepository struct {
	db *sql.DB
}

// NewDashboardRepository returns repository instance.
func NewDashboardRepository(db *sql.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// StationStatus lists slot occupancy per station of a provider. Payment totals are
// provider-wide and repeated on each station row.
func (r *DashboardRepository) StationStatus(ctx context.Context, providerID string, now time.Time) ([]models.StationStatus, error) {
	const query = `
		SELECT
			cs.station_id,
			cs.station_name,
			COUNT(sl.slot_id) FILTER (WHERE sl.availability = 1) AS available_slots,
			COUNT(sl.slot_id) FILTER (WHERE sl.availability = 0) AS reserved_slots,
			COUNT(sl.slot_id) AS total_slots,
			COALESCE((
				SELECT SUM(p.amount) FROM payment_details p
				WHERE p.provider_id = cs.provider_id
				  AND p.payment_status = 'Completed'
				  AND p.payment_date >= date_trunc('month', $2::timestamp)
				  AND p.payment_date < date_trunc('month', $2::timestamp) + INTERVAL '1 month'
			), 0)::float8 AS total_payment_month,
			COALESCE((
				SELECT SUM(p.amount) FROM payment_details p
				WHERE p.provider_id = cs.provider_id
				  AND p.payment_status = 'Completed'
				  AND p.payment_date >= date_trunc('day', $2::timestamp)
				  AND p.payment_date < date_trunc('day', $2::timestamp) + INTERVAL '1 day'
			), 0)::float8 AS total_payment_today
		FROM charging_stations cs
		LEFT JOIN charging_slots sl ON sl.station_id = cs.station_id
		WHERE cs.provider_id = $1
		GROUP BY cs.station_id, cs.station_name, cs.provider_id
		ORDER BY cs.station_id
	`
	rows, err := r.db.QueryContext(ctx, query, providerID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.StationStatus, 0)
	for rows.Next() {
		var s models.StationStatus
		if err := rows.Scan(
			&s.StationID, &s.StationName, &s.AvailableSlots, &s.ReservedSlots, &s.TotalSlots,
			&s.TotalPaymentMonth, &s.TotalPaymentToday,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// LatestReservations returns the provider's most recent reservations, newest first.
func (r *DashboardRepository) LatestReservations(ctx context.Context, providerID string, limit int) ([]models.RecentReservation, error) {
	const query = `
		SELECT
			r.reservation_id,
			r.start_time,
			r.status,
			r.energy_consumed::float8,
			COALESCE(u.first_name, ''),
			COALESCE(u.last_name, '')
		FROM reservations r
		LEFT JOIN users u ON u.user_id = r.owner_id
		WHERE r.provider_id = $1
		ORDER BY r.start_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.RecentReservation, 0, limit)
	for rows.Next() {
		var rr models.RecentReservation
		if err := rows.Scan(&rr.ReservationID, &rr.StartTime, &rr.Status, &rr.EnergyConsumed, &rr.FirstName, &rr.LastName); err != nil {
			return nil, err
		}
		result = append(result, rr)
	}
	return result, rows.Err()
}

// MonthlyEnergy sums energy of Completed reservations per YYYY-MM within [from, to).
func (r *DashboardRepository) MonthlyEnergy(ctx context.Context, providerID string, from, to time.Time) (map[string]float64, error) {
	const query = `
		SELECT to_char(date_trunc('month', start_time), 'YYYY-MM'), COALESCE(SUM(energy_consumed), 0)::float8
		FROM reservations
		WHERE provider_id = $1
		  AND status = 'Completed'
		  AND start_time >= $2
		  AND start_time < $3
		GROUP BY 1
	`
	return r.monthlySums(ctx, query, providerID, from, to)
}

// MonthlyPayments sums Completed payments per YYYY-MM within [from, to).
func (r *DashboardRepository) MonthlyPayments(ctx context.Context, providerID string, from, to time.Time) (map[string]float64, error) {
	const query = `
		SELECT to_char(date_trunc('month', payment_date), 'YYYY-MM'), COALESCE(SUM(amount), 0)::float8
		FROM payment_details
		WHERE provider_id = $1
		  AND payment_status = 'Completed'
		  AND payment_date >= $2
		  AND payment_date < $3
		GROUP BY 1
	`
	return r.monthlySums(ctx, query, providerID, from, to)
}

func (r *DashboardRepository) monthlySums(ctx context.Context, query, providerID string, from, to time.Time) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, query, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]float64)
	for rows.Next() {
		var month string
		var total float64
		if err := rows.Scan(&month, &total); err != nil {
			return nil, err
		}
		sums[month] = total
	}
	return sums, rows.Err()
}

// BookedReservations lists an owner's reservations still in Booked status.
func (r *DashboardRepository) BookedReservations(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	const query = `
		SELECT reservation_id, owner_id, provider_id, slot_id, station_id,
			start_time, end_time, status, energy_consumed::float8
		FROM reservations
		WHERE status = 'Booked' AND owner_id = $1
		ORDER BY start_time DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Reservation, 0)
	for rows.Next() {
		var res models.Reservation
		var end sql.NullTime
		if err := rows.Scan(
			&res.ID, &res.OwnerID, &res.ProviderID, &res.SlotID, &res.StationID,
			&res.StartTime, &end, &res.Status, &res.EnergyConsumed,
		); err != nil {
			return nil, err
		}
		if end.Valid {
			t := end.Time
			res.EndTime = &t
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

// ReservationHistory lists every reservation of an owner with its station name.
func (r *DashboardRepository) ReservationHistory(ctx context.Context, ownerID string) ([]models.ReservationHistoryItem, error) {
	const query = `
		SELECT r.reservation_id, r.start_time, r.status, cs.station_name
		FROM reservations r
		INNER JOIN charging_stations cs ON cs.station_id = r.station_id
		WHERE r.owner_id = $1
		ORDER BY r.start_time DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.ReservationHistoryItem, 0)
	for rows.Next() {
		var item models.ReservationHistoryItem
		if err := rows.Scan(&item.ReservationID, &item.StartTime, &item.Status, &item.StationName); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// ReservationStarts returns start time and energy of every reservation of an owner.
// Classification is left to the caller.
func (r *DashboardRepository) ReservationStarts(ctx context.Context, ownerID string) ([]models.ChargingPattern, error) {
	const query = `
		SELECT reservation_id, start_time, energy_consumed::float8
		FROM reservations
		WHERE owner_id = $1
		ORDER BY start_time
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.ChargingPattern, 0)
	for rows.Next() {
		var p models.ChargingPattern
		if err := rows.Scan(&p.ReservationID, &p.StartTime, &p.EnergyConsumed); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SlotsByProvider lists every slot at the provider's stations.
func (r *DashboardRepository) SlotsByProvider(ctx context.Context, providerID string) ([]models.ProviderSlot, error) {
	const query = `
		SELECT cs.station_id, s.slot_number, s.slot_type, s.price::float8, s.availability
		FROM charging_stations cs
		JOIN charging_slots s ON s.station_id = cs.station_id
		WHERE cs.provider_id = $1
		ORDER BY cs.station_id, s.slot_number, s.slot_id
	`
	rows, err := r.db.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.ProviderSlot, 0)
	for rows.Next() {
		var s models.ProviderSlot
		if err := rows.Scan(&s.StationID, &s.SlotNumber, &s.SlotType, &s.Price, &s.Availability); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// StationsByPostalCode finds stations in a postal code area.
func (r *DashboardRepository) StationsByPostalCode(ctx context.Context, postalCode string) ([]models.Station, error) {
	const query = `
		SELECT station_id, provider_id, station_name, postal_code, address, latitude, longitude, created_at
		FROM charging_stations
		WHERE upper(replace(postal_code, ' ', '')) = upper(replace($1, ' ', ''))
		ORDER BY station_name
	`
	rows, err := r.db.QueryContext(ctx, query, postalCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Station, 0)
	for rows.Next() {
		var st models.Station
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&st.ID, &st.ProviderID, &st.Name, &st.PostalCode, &st.Address, &lat, &lng, &st.CreatedAt); err != nil {
			return nil, err
		}
		if lat.Valid {
			v := lat.Float64
			st.Latitude = &v
		}
		if lng.Valid {
			v := lng.Float64
			st.Longitude = &v
		}
		result = append(result, st)
	}
	return result, rows.Err()
}
