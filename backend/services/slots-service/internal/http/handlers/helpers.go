package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"chargegrid/backend/services/slots-service/internal/service"
)

const maxBodyBytes = 1 << 20

const (
	statusSuccess = "success"
	statusError   = "error"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  statusError,
		"message": message,
	})
}

// writeServiceError maps a service error kind to a status code. Causes stay in the logs.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot is not available")
	case errors.Is(err, service.ErrHoldClosed):
		writeError(w, http.StatusConflict, "reservation hold is closed")
	case errors.Is(err, service.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, service.ErrGateway):
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
	case errors.Is(err, service.ErrAvailabilityUpdateFailed):
		writeError(w, http.StatusInternalServerError, "failed to update slot availability")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	return dec.Decode(dst)
}

// flexFloat accepts a JSON number or a numeric string. NaN and infinities are rejected.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a number: %q", raw)
	}
	f.Value, f.Set = v, true
	return nil
}

// flexInt accepts a JSON integer or an integer string.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("not an integer: %q", raw)
	}
	f.Value, f.Set = v, true
	return nil
}

func (f flexInt) ptr() *int {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}
