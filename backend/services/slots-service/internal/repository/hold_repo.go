package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chargegrid/backend/libs/db"
	"chargegrid/backend/services/slots-service/internal/models"
)

// HoldClaim describes a slot hold to be created alongside a checkout session.
type HoldClaim struct {
	HoldID            string
	Key               models.SlotKey
	UserID            string
	CheckoutSessionID string
	Amount            float64
	Now               time.Time
	ExpiresAt         time.Time
}

// HoldRepository keeps slot availability and slot_holds consistent. Every transaction locks
// the charging_slots row before the slot_holds row of the same slot.
type HoldRepository struct {
	db *sql.DB
}

// NewHoldRepository returns repository instance.
func NewHoldRepository(db *sql.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

const holdColumns = `hold_id, slot_id, station_id, slot_number, user_id, checkout_session_id,
	amount::float8, status, expires_at, created_at, updated_at`

// Among slots sharing a number the available one wins, then the newest.
const slotAtKeyQuery = `
	SELECT slot_id, station_id, slot_number, slot_type, price::float8, availability, created_at, updated_at
	FROM charging_slots
	WHERE station_id = $1 AND slot_number = $2
	ORDER BY availability DESC, slot_id DESC
	LIMIT 1
`

// BookableSlot returns the slot at key if it can be claimed at now. A slot held by an
// expired hold counts as bookable.
func (r *HoldRepository) BookableSlot(ctx context.Context, key models.SlotKey, now time.Time) (*models.Slot, error) {
	slot, err := scanSlot(r.db.QueryRowContext(ctx, slotAtKeyQuery, key.StationID, key.Number))
	if err != nil {
		return nil, err
	}
	if slot.Availability == models.SlotAvailable {
		return slot, nil
	}

	const expiredQuery = `
		SELECT EXISTS (
			SELECT 1 FROM slot_holds
			WHERE slot_id = $1 AND status = 'held' AND expires_at <= $2
		)
	`
	var expired bool
	if err := r.db.QueryRowContext(ctx, expiredQuery, slot.ID, now).Scan(&expired); err != nil {
		return nil, err
	}
	if !expired {
		return nil, ErrSlotUnavailable
	}
	return slot, nil
}

// ClaimSlot marks the slot unavailable and records a hold in one transaction. A hold on the
// slot that has already expired is closed first; any other unavailability is ErrSlotUnavailable.
func (r *HoldRepository) ClaimSlot(ctx context.Context, claim HoldClaim) (*models.SlotHold, error) {
	var hold *models.SlotHold
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		slot, err := scanSlot(tx.QueryRowContext(ctx, slotAtKeyQuery+" FOR UPDATE", claim.Key.StationID, claim.Key.Number))
		if err != nil {
			return err
		}

		if slot.Availability != models.SlotAvailable {
			const expireQuery = `
				UPDATE slot_holds
				SET status = 'expired', updated_at = $2
				WHERE slot_id = $1 AND status = 'held' AND expires_at <= $2
			`
			res, err := tx.ExecContext(ctx, expireQuery, slot.ID, claim.Now)
			if err != nil {
				return fmt.Errorf("expire stale hold: %w", err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return ErrSlotUnavailable
			}
		}

		const markQuery = `
			UPDATE charging_slots
			SET availability = 0, updated_at = $2
			WHERE slot_id = $1
		`
		if _, err := tx.ExecContext(ctx, markQuery, slot.ID, claim.Now); err != nil {
			return fmt.Errorf("mark slot unavailable: %w", err)
		}

		const insertQuery = `
			INSERT INTO slot_holds
				(hold_id, slot_id, station_id, slot_number, user_id, checkout_session_id,
				 amount, status, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'held', $8, $9, $9)
			RETURNING ` + holdColumns
		hold, err = scanHold(tx.QueryRowContext(ctx, insertQuery,
			claim.HoldID, slot.ID, slot.StationID, slot.Number, claim.UserID,
			claim.CheckoutSessionID, claim.Amount, claim.ExpiresAt, claim.Now,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("insert hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// ConfirmHold closes a held hold as paid and records the provider's payment. The slot stays
// unavailable. Confirming an already confirmed hold is a no-op that reports changed=false.
func (r *HoldRepository) ConfirmHold(ctx context.Context, sessionID string, now time.Time) (*models.SlotHold, bool, error) {
	var hold *models.SlotHold
	var changed bool
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		hold, err = lockHold(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		switch hold.Status {
		case models.HoldConfirmed:
			return nil
		case models.HoldHeld:
		default:
			return ErrHoldClosed
		}

		if err := setHoldStatus(ctx, tx, hold, models.HoldConfirmed, now); err != nil {
			return err
		}

		const paymentQuery = `
			INSERT INTO payment_details
				(provider_id, owner_id, hold_id, checkout_session_id, amount, payment_status, payment_date)
			SELECT cs.provider_id, $2, $3, $4, $5, 'Completed', $6
			FROM charging_stations cs
			WHERE cs.station_id = $1
			ON CONFLICT (hold_id) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, paymentQuery,
			hold.StationID, hold.UserID, hold.ID, hold.CheckoutSessionID, hold.Amount, now,
		); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return hold, changed, nil
}

// ReleaseHold closes a held hold with status (released or expired) and makes its slot
// available again. Holds that are no longer held are returned unchanged.
func (r *HoldRepository) ReleaseHold(ctx context.Context, sessionID, status string, now time.Time) (*models.SlotHold, bool, error) {
	var hold *models.SlotHold
	var changed bool
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		hold, err = lockHold(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if hold.Status != models.HoldHeld {
			return nil
		}
		if err := setHoldStatus(ctx, tx, hold, status, now); err != nil {
			return err
		}
		if err := restoreAvailability(ctx, tx, hold.SlotID, now); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return hold, changed, nil
}

// ExpireHolds closes up to limit held holds whose TTL passed and restores their slots.
// Holds whose slot or hold row is locked by a concurrent claim or sweeper are skipped.
func (r *HoldRepository) ExpireHolds(ctx context.Context, now time.Time, limit int) ([]models.SlotHold, error) {
	const query = `
		WITH due AS (
			SELECT h.hold_id
			FROM slot_holds h
			JOIN charging_slots s ON s.slot_id = h.slot_id
			WHERE h.status = 'held' AND h.expires_at <= $1
			ORDER BY h.expires_at
			LIMIT $2
			FOR UPDATE OF s, h SKIP LOCKED
		)
		UPDATE slot_holds
		SET status = 'expired', updated_at = $1
		WHERE hold_id IN (SELECT hold_id FROM due)
		RETURNING ` + holdColumns

	expired := make([]models.SlotHold, 0)
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, now, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			hold, err := scanHold(rows)
			if err != nil {
				return err
			}
			expired = append(expired, *hold)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, hold := range expired {
			if err := restoreAvailability(ctx, tx, hold.SlotID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// lockHold locks the session's slot row and then its hold row.
func lockHold(ctx context.Context, tx *sql.Tx, sessionID string) (*models.SlotHold, error) {
	var slotID string
	err := tx.QueryRowContext(ctx, `SELECT slot_id FROM slot_holds WHERE checkout_session_id = $1`, sessionID).Scan(&slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM charging_slots WHERE slot_id = $1 FOR UPDATE`, slotID); err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	query := `SELECT ` + holdColumns + ` FROM slot_holds WHERE checkout_session_id = $1 FOR UPDATE`
	hold, err := scanHold(tx.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return hold, nil
}

func setHoldStatus(ctx context.Context, tx *sql.Tx, hold *models.SlotHold, status string, now time.Time) error {
	const query = `UPDATE slot_holds SET status = $2, updated_at = $3 WHERE hold_id = $1`
	if _, err := tx.ExecContext(ctx, query, hold.ID, status, now); err != nil {
		return fmt.Errorf("update hold status: %w", err)
	}
	hold.Status = status
	hold.UpdatedAt = now
	return nil
}

func restoreAvailability(ctx context.Context, tx *sql.Tx, slotID string, now time.Time) error {
	const query = `UPDATE charging_slots SET availability = 1, updated_at = $2 WHERE slot_id = $1`
	if _, err := tx.ExecContext(ctx, query, slotID, now); err != nil {
		return fmt.Errorf("restore availability: %w", err)
	}
	return nil
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var slot models.Slot
	err := row.Scan(
		&slot.ID, &slot.StationID, &slot.Number, &slot.Type, &slot.Price,
		&slot.Availability, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &slot, nil
}

func scanHold(row rowScanner) (*models.SlotHold, error) {
	var hold models.SlotHold
	if err := row.Scan(
		&hold.ID, &hold.SlotID, &hold.StationID, &hold.SlotNumber, &hold.UserID,
		&hold.CheckoutSessionID, &hold.Amount, &hold.Status, &hold.ExpiresAt,
		&hold.CreatedAt, &hold.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &hold, nil
}
