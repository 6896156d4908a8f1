package service

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error kinds surfaced by the services. Callers match them with errors.Is.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrAllocationFailed = errors.New("slot allocation failed")
	ErrDeletionFailed   = errors.New("slot deletion failed")
	ErrUpdateFailed     = errors.New("slot update failed")
	ErrGateway          = errors.New("payment gateway error")
	ErrStore            = errors.New("store error")
	ErrTimeout          = errors.New("timeout")

	// ErrSlotUnavailable is returned when the slot is already held or reserved.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrAvailabilityUpdateFailed means the checkout session was created but the slot could not be held.
	ErrAvailabilityUpdateFailed = errors.New("slot availability update failed")
	// ErrStationFull is returned by the reject numbering policy.
	ErrStationFull = errors.New("station has no free slot number")
	// ErrHoldClosed is returned when a payment arrives for a hold that was released or expired.
	ErrHoldClosed = errors.New("hold already closed")
	// ErrInvalidCredentials represents login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// classify wraps cause with kind, reporting deadline and network timeouts as ErrTimeout.
func classify(kind error, op string, cause error) error {
	if isTimeout(cause) {
		kind = ErrTimeout
	}
	return fmt.Errorf("%w: %s: %w", kind, op, cause)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
