package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrStationNotFound is returned when a provider owns no station.
	ErrStationNotFound = errors.New("station not found")
	// ErrSlotNotFound is returned when no slot matches a station/number pair.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotIDConflict is returned when a generated slot id already exists.
	ErrSlotIDConflict = errors.New("slot id conflict")
	// ErrSlotUnavailable is returned when a slot is already held or reserved.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrHoldNotFound is returned for unknown checkout sessions.
	ErrHoldNotFound = errors.New("hold not found")
	// ErrHoldClosed is returned when confirming a hold that was already released or expired.
	ErrHoldClosed = errors.New("hold already closed")
	// ErrUserNotFound represents missing user rows.
	ErrUserNotFound = errors.New("user not found")
)

const (
	pgUniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	return hasPGCode(err, pgUniqueViolation)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}
