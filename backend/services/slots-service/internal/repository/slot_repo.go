package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chargegrid/backend/libs/db"
	"chargegrid/backend/services/slots-service/internal/models"
)

// AllocationTx exposes the statements a slot allocation runs inside one transaction.
type AllocationTx interface {
	// LockProviderStation locks and returns the provider's first station.
	LockProviderStation(ctx context.Context, providerID string) (string, error)
	// NextSlotSequence advances the global slot id high-water mark and returns the new value.
	NextSlotSequence(ctx context.Context) (int64, error)
	// SlotNumbers lists the slot numbers in use at a station.
	SlotNumbers(ctx context.Context, stationID string) ([]int, error)
	// InsertSlot stores a new slot and fills its timestamps.
	InsertSlot(ctx context.Context, slot *models.Slot) error
}

// SlotRepository handles writes to charging_slots.
type SlotRepository struct {
	db *sql.DB
}

// NewSlotRepository returns repository instance.
func NewSlotRepository(db *sql.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// WithAllocationTx runs fn in a transaction that commits only if fn succeeds.
func (r *SlotRepository) WithAllocationTx(ctx context.Context, fn func(tx AllocationTx) error) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&allocationTx{tx: tx})
	})
}

type allocationTx struct {
	tx *sql.Tx
}

func (a *allocationTx) LockProviderStation(ctx context.Context, providerID string) (string, error) {
	const query = `
		SELECT station_id
		FROM charging_stations
		WHERE provider_id = $1
		ORDER BY station_id
		LIMIT 1
		FOR UPDATE
	`
	var stationID string
	if err := a.tx.QueryRowContext(ctx, query, providerID).Scan(&stationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrStationNotFound
		}
		return "", err
	}
	return stationID, nil
}

func (a *allocationTx) NextSlotSequence(ctx context.Context) (int64, error) {
	const (
		lockQuery = `SELECT last_value FROM slot_sequence WHERE id = 1 FOR UPDATE`
		seedQuery = `INSERT INTO slot_sequence (id, last_value) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`
		maxQuery  = `
			SELECT COALESCE(MAX(CAST(substring(slot_id FROM 3) AS BIGINT)), 0)
			FROM charging_slots
			WHERE slot_id ~ '^SL[0-9]+$'
		`
		advanceQuery = `UPDATE slot_sequence SET last_value = $1 WHERE id = 1`
	)

	var last int64
	err := a.tx.QueryRowContext(ctx, lockQuery).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := a.tx.ExecContext(ctx, seedQuery); err != nil {
			return 0, fmt.Errorf("seed slot sequence: %w", err)
		}
		err = a.tx.QueryRowContext(ctx, lockQuery).Scan(&last)
	}
	if err != nil {
		return 0, fmt.Errorf("lock slot sequence: %w", err)
	}

	// Ids inserted outside the allocator still advance the sequence.
	var highest int64
	if err := a.tx.QueryRowContext(ctx, maxQuery).Scan(&highest); err != nil {
		return 0, fmt.Errorf("scan slot ids: %w", err)
	}
	if highest > last {
		last = highest
	}

	next := last + 1
	if _, err := a.tx.ExecContext(ctx, advanceQuery, next); err != nil {
		return 0, fmt.Errorf("advance slot sequence: %w", err)
	}
	return next, nil
}

func (a *allocationTx) SlotNumbers(ctx context.Context, stationID string) ([]int, error) {
	const query = `
		SELECT slot_number
		FROM charging_slots
		WHERE station_id = $1
		ORDER BY slot_number
	`
	rows, err := a.tx.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := make([]int, 0, 10)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (a *allocationTx) InsertSlot(ctx context.Context, slot *models.Slot) error {
	const query = `
		INSERT INTO charging_slots
			(slot_id, station_id, slot_number, slot_type, price, availability, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at
	`
	err := a.tx.QueryRowContext(ctx, query,
		slot.ID, slot.StationID, slot.Number, slot.Type, slot.Price, slot.Availability,
	).Scan(&slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotIDConflict
		}
		return err
	}
	return nil
}

// SlotTarget addresses the slots a provider mutates. SlotID is optional and narrows a
// station/number pair shared by several slots to one of them.
type SlotTarget struct {
	ProviderID string
	Key        models.SlotKey
	SlotID     string
}

// Stations outside the provider's ownership never match.
const targetFilter = `
	WHERE station_id = $1 AND slot_number = $2
	  AND ($3::text = '' OR slot_id = $3)
	  AND station_id IN (SELECT station_id FROM charging_stations WHERE provider_id = $4)
`

// UpdateSlot rewrites type, price and availability of every slot matching target and returns
// the ids it changed. No match is an empty result, not an error.
func (r *SlotRepository) UpdateSlot(ctx context.Context, target SlotTarget, slotType string, price float64, availability int, now time.Time) ([]string, error) {
	query := `
		UPDATE charging_slots
		SET slot_type = $5, price = $6, availability = $7, updated_at = $8` + targetFilter + `
		RETURNING slot_id`
	return r.mutate(ctx, query,
		target.Key.StationID, target.Key.Number, strings.TrimSpace(target.SlotID), target.ProviderID,
		strings.TrimSpace(slotType), price, availability, now,
	)
}

// DeleteSlot removes every slot matching target and returns the removed ids.
func (r *SlotRepository) DeleteSlot(ctx context.Context, target SlotTarget) ([]string, error) {
	query := `DELETE FROM charging_slots` + targetFilter + `RETURNING slot_id`
	return r.mutate(ctx, query,
		target.Key.StationID, target.Key.Number, strings.TrimSpace(target.SlotID), target.ProviderID,
	)
}

func (r *SlotRepository) mutate(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 1)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
