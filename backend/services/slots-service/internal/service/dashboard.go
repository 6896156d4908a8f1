package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/models"
)

const (
	latestReservationsLimit = 5
	statsMonths             = 12
	monthKeyLayout          = "2006-01"
	monthLabelLayout        = "Jan 2006"
)

// Charging classification labels.
const (
	ChargingDaytime   = "Daytime Charging"
	ChargingNighttime = "Nighttime Charging"
	ChargingWeekday   = "Weekday"
	ChargingWeekend   = "Weekend"
)

// DashboardStore serves the read projections.
type DashboardStore interface {
	StationStatus(ctx context.Context, providerID string, now time.Time) ([]models.StationStatus, error)
	LatestReservations(ctx context.Context, providerID string, limit int) ([]models.RecentReservation, error)
	MonthlyEnergy(ctx context.Context, providerID string, from, to time.Time) (map[string]float64, error)
	MonthlyPayments(ctx context.Context, providerID string, from, to time.Time) (map[string]float64, error)
	BookedReservations(ctx context.Context, ownerID string) ([]models.Reservation, error)
	ReservationHistory(ctx context.Context, ownerID string) ([]models.ReservationHistoryItem, error)
	ReservationStarts(ctx context.Context, ownerID string) ([]models.ChargingPattern, error)
	SlotsByProvider(ctx context.Context, providerID string) ([]models.ProviderSlot, error)
	StationsByPostalCode(ctx context.Context, postalCode string) ([]models.Station, error)
}

// DashboardAggregator builds provider and owner dashboard views.
type DashboardAggregator struct {
	store        DashboardStore
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// NewDashboardAggregator builds DashboardAggregator.
func NewDashboardAggregator(store DashboardStore, logger *zap.Logger, storeTimeout time.Duration) *DashboardAggregator {
	return &DashboardAggregator{
		store:        store,
		logger:       logger.Named("dashboard"),
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// StationStatus returns occupancy and takings per station of a provider.
func (d *DashboardAggregator) StationStatus(ctx context.Context, providerID string) ([]models.StationStatus, error) {
	if err := requireID("provider id", providerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.StationStatus(ctx, providerID, d.now())
	return orEmpty(rows), d.storeErr("station status", providerID, err)
}

// LatestReservations returns the provider's five most recent reservations.
func (d *DashboardAggregator) LatestReservations(ctx context.Context, providerID string) ([]models.RecentReservation, error) {
	if err := requireID("provider id", providerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.LatestReservations(ctx, providerID, latestReservationsLimit)
	return orEmpty(rows), d.storeErr("latest reservations", providerID, err)
}

// EnergyPaymentStats returns twelve calendar months ending with the current one, oldest
// first. Months without completed activity are present with zero totals.
func (d *DashboardAggregator) EnergyPaymentStats(ctx context.Context, providerID string) ([]models.MonthlyStat, error) {
	if err := requireID("provider id", providerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	months := TrailingMonths(d.now(), statsMonths)
	from, to := months[0], months[len(months)-1].AddDate(0, 1, 0)

	energy, err := d.store.MonthlyEnergy(ctx, providerID, from, to)
	if err != nil {
		return nil, d.storeErr("monthly energy", providerID, err)
	}
	payments, err := d.store.MonthlyPayments(ctx, providerID, from, to)
	if err != nil {
		return nil, d.storeErr("monthly payments", providerID, err)
	}

	stats := make([]models.MonthlyStat, 0, len(months))
	for _, m := range months {
		key := m.Format(monthKeyLayout)
		stats = append(stats, models.MonthlyStat{
			Month:               m.Format(monthLabelLayout),
			TotalEnergyConsumed: energy[key],
			TotalAmount:         payments[key],
		})
	}
	return stats, nil
}

// BookedReservations returns the owner's reservations in Booked status.
func (d *DashboardAggregator) BookedReservations(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	if err := requireID("owner id", ownerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.BookedReservations(ctx, ownerID)
	return orEmpty(rows), d.storeErr("booked reservations", ownerID, err)
}

// ReservationHistory returns every reservation of the owner with station names.
func (d *DashboardAggregator) ReservationHistory(ctx context.Context, ownerID string) ([]models.ReservationHistoryItem, error) {
	if err := requireID("owner id", ownerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.ReservationHistory(ctx, ownerID)
	return orEmpty(rows), d.storeErr("reservation history", ownerID, err)
}

// ChargingPatterns classifies each reservation of the owner by time of day and weekday.
func (d *DashboardAggregator) ChargingPatterns(ctx context.Context, ownerID string) ([]models.ChargingPattern, error) {
	if err := requireID("owner id", ownerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.ReservationStarts(ctx, ownerID)
	if err != nil {
		return nil, d.storeErr("charging patterns", ownerID, err)
	}
	rows = orEmpty(rows)
	for i := range rows {
		rows[i].ChargingTime, rows[i].ChargingDay = ClassifyCharging(rows[i].StartTime)
	}
	return rows, nil
}

// SlotsByProvider lists every slot of the provider's stations.
func (d *DashboardAggregator) SlotsByProvider(ctx context.Context, providerID string) ([]models.ProviderSlot, error) {
	if err := requireID("provider id", providerID); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.SlotsByProvider(ctx, providerID)
	return orEmpty(rows), d.storeErr("slots by provider", providerID, err)
}

// StationsByPostalCode finds stations in a postal code area.
func (d *DashboardAggregator) StationsByPostalCode(ctx context.Context, postalCode string) ([]models.Station, error) {
	if err := requireID("postal code", postalCode); err != nil {
		return nil, err
	}
	ctx, cancel := d.context(ctx)
	defer cancel()

	rows, err := d.store.StationsByPostalCode(ctx, strings.TrimSpace(postalCode))
	return orEmpty(rows), d.storeErr("stations by postal code", postalCode, err)
}

// ClassifyCharging buckets a start time: daytime is [06:00, 18:00), weekdays are Monday to Friday.
func ClassifyCharging(t time.Time) (timeOfDay, dayKind string) {
	timeOfDay = ChargingNighttime
	if h := t.Hour(); h >= 6 && h < 18 {
		timeOfDay = ChargingDaytime
	}
	dayKind = ChargingWeekday
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		dayKind = ChargingWeekend
	}
	return timeOfDay, dayKind
}

// TrailingMonths returns the first instant of n calendar months ending with now's month, oldest first.
func TrailingMonths(now time.Time, n int) []time.Time {
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	months := make([]time.Time, n)
	for i := 0; i < n; i++ {
		months[i] = current.AddDate(0, i-(n-1), 0)
	}
	return months
}

func (d *DashboardAggregator) storeErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	d.logger.Error("dashboard query failed", zap.String("op", op), zap.String("id", id), zap.Error(err))
	return classify(ErrStore, op, err)
}

func (d *DashboardAggregator) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.storeTimeout > 0 {
		return context.WithTimeout(ctx, d.storeTimeout)
	}
	return context.WithCancel(ctx)
}

func requireID(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", name)
	}
	return nil
}

func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
