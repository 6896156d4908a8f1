package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/models"
)

type fakeDashboardStore struct {
	energy     map[string]float64
	payments   map[string]float64
	from, to   time.Time
	starts     []models.ChargingPattern
	err        error
	latestSize int
}

func (s *fakeDashboardStore) StationStatus(ctx context.Context, providerID string, now time.Time) ([]models.StationStatus, error) {
	return nil, s.err
}

func (s *fakeDashboardStore) LatestReservations(ctx context.Context, providerID string, limit int) ([]models.RecentReservation, error) {
	s.latestSize = limit
	return nil, s.err
}

func (s *fakeDashboardStore) MonthlyEnergy(ctx context.Context, providerID string, from, to time.Time) (map[string]float64, error) {
	s.from, s.to = from, to
	return s.energy, s.err
}

func (s *fakeDashboardStore) MonthlyPayments(ctx context.Context, providerID string, from, to time.Time) (map[string]float64, error) {
	return s.payments, s.err
}

func (s *fakeDashboardStore) BookedReservations(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	return nil, s.err
}

func (s *fakeDashboardStore) ReservationHistory(ctx context.Context, ownerID string) ([]models.ReservationHistoryItem, error) {
	return nil, s.err
}

func (s *fakeDashboardStore) ReservationStarts(ctx context.Context, ownerID string) ([]models.ChargingPattern, error) {
	return s.starts, s.err
}

func (s *fakeDashboardStore) SlotsByProvider(ctx context.Context, providerID string) ([]models.ProviderSlot, error) {
	return nil, s.err
}

func (s *fakeDashboardStore) StationsByPostalCode(ctx context.Context, postalCode string) ([]models.Station, error) {
	return nil, s.err
}

func newDashboard(store DashboardStore, now time.Time) *DashboardAggregator {
	d := NewDashboardAggregator(store, zap.NewNop(), 0)
	d.now = func() time.Time { return now }
	return d
}

func TestClassifyCharging(t *testing.T) {
	tests := []struct {
		at       time.Time
		wantTime string
		wantDay  string
	}{
		{at: time.Date(2024, 5, 15, 7, 0, 0, 0, time.UTC), wantTime: ChargingDaytime, wantDay: ChargingWeekday},    // Wednesday
		{at: time.Date(2024, 5, 18, 22, 0, 0, 0, time.UTC), wantTime: ChargingNighttime, wantDay: ChargingWeekend}, // Saturday
		{at: time.Date(2024, 5, 13, 6, 0, 0, 0, time.UTC), wantTime: ChargingDaytime, wantDay: ChargingWeekday},
		{at: time.Date(2024, 5, 17, 18, 0, 0, 0, time.UTC), wantTime: ChargingNighttime, wantDay: ChargingWeekday},
		{at: time.Date(2024, 5, 19, 12, 0, 0, 0, time.UTC), wantTime: ChargingDaytime, wantDay: ChargingWeekend},
		{at: time.Date(2024, 5, 14, 5, 59, 0, 0, time.UTC), wantTime: ChargingNighttime, wantDay: ChargingWeekday},
	}
	for _, tc := range tests {
		gotTime, gotDay := ClassifyCharging(tc.at)
		assert.Equal(t, tc.wantTime, gotTime, tc.at.String())
		assert.Equal(t, tc.wantDay, gotDay, tc.at.String())
	}
}

func TestEnergyPaymentStatsFillsTwelveMonths(t *testing.T) {
	store := &fakeDashboardStore{
		energy:   map[string]float64{"2024-03": 42.5, "2023-06": 7},
		payments: map[string]float64{"2024-03": 120, "2024-05": 15},
	}
	d := newDashboard(store, time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))

	stats, err := d.EnergyPaymentStats(context.Background(), "P1")
	require.NoError(t, err)
	require.Len(t, stats, 12)

	assert.Equal(t, "Jun 2023", stats[0].Month)
	assert.Equal(t, 7.0, stats[0].TotalEnergyConsumed)
	assert.Equal(t, "May 2024", stats[11].Month)
	assert.Equal(t, 15.0, stats[11].TotalAmount)
	assert.Equal(t, 0.0, stats[11].TotalEnergyConsumed)
	assert.Equal(t, "Mar 2024", stats[9].Month)
	assert.Equal(t, 42.5, stats[9].TotalEnergyConsumed)
	assert.Equal(t, 120.0, stats[9].TotalAmount)
	assert.Equal(t, "Jan 2024", stats[7].Month)
	assert.Zero(t, stats[7].TotalAmount)

	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), store.from)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), store.to)
}

func TestTrailingMonthsAcrossYearEnd(t *testing.T) {
	months := TrailingMonths(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, []time.Time{
		time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, months)
}

func TestDashboardReadsReturnEmptyNotNil(t *testing.T) {
	d := newDashboard(&fakeDashboardStore{}, fixedNow)
	ctx := context.Background()

	status, err := d.StationStatus(ctx, "P1")
	require.NoError(t, err)
	assert.NotNil(t, status)
	assert.Empty(t, status)

	latest, err := d.LatestReservations(ctx, "P1")
	require.NoError(t, err)
	assert.NotNil(t, latest)

	booked, err := d.BookedReservations(ctx, "U1")
	require.NoError(t, err)
	assert.NotNil(t, booked)

	history, err := d.ReservationHistory(ctx, "U1")
	require.NoError(t, err)
	assert.NotNil(t, history)

	patterns, err := d.ChargingPatterns(ctx, "U1")
	require.NoError(t, err)
	assert.NotNil(t, patterns)

	slots, err := d.SlotsByProvider(ctx, "P1")
	require.NoError(t, err)
	assert.NotNil(t, slots)

	stations, err := d.StationsByPostalCode(ctx, "SW1A 1AA")
	require.NoError(t, err)
	assert.NotNil(t, stations)
}

func TestLatestReservationsLimitIsFive(t *testing.T) {
	store := &fakeDashboardStore{}
	_, err := newDashboard(store, fixedNow).LatestReservations(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, store.latestSize)
}

func TestChargingPatternsClassifies(t *testing.T) {
	store := &fakeDashboardStore{starts: []models.ChargingPattern{
		{ReservationID: "R1", StartTime: time.Date(2024, 5, 15, 7, 0, 0, 0, time.UTC), EnergyConsumed: 10},
		{ReservationID: "R2", StartTime: time.Date(2024, 5, 18, 22, 0, 0, 0, time.UTC), EnergyConsumed: 4},
	}}
	patterns, err := newDashboard(store, fixedNow).ChargingPatterns(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, ChargingDaytime, patterns[0].ChargingTime)
	assert.Equal(t, ChargingWeekday, patterns[0].ChargingDay)
	assert.Equal(t, ChargingNighttime, patterns[1].ChargingTime)
	assert.Equal(t, ChargingWeekend, patterns[1].ChargingDay)
}

func TestDashboardErrors(t *testing.T) {
	d := newDashboard(&fakeDashboardStore{err: errors.New("boom")}, fixedNow)

	_, err := d.StationStatus(context.Background(), "P1")
	assert.ErrorIs(t, err, ErrStore)

	_, err = d.EnergyPaymentStats(context.Background(), "P1")
	assert.ErrorIs(t, err, ErrStore)

	_, err = d.BookedReservations(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
