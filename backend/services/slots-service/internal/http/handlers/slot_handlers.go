package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chargegrid/backend/services/slots-service/internal/http/middleware"
	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/service"
)

// SlotAllocator creates slots.
type SlotAllocator interface {
	AllocateSlot(ctx context.Context, in service.AllocateInput) (*models.Slot, error)
}

// SlotMutator updates and deletes slots.
type SlotMutator interface {
	UpdateSlot(ctx context.Context, in service.UpdateInput) (bool, error)
	DeleteSlot(ctx context.Context, ref service.SlotRef) (bool, error)
}

// callerID returns the authenticated user id, writing 401 when the request carries no claims.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return "", false
	}
	return claims.UserID, true
}

// NewAddSlotHandler handles POST /api/charging-slots/add/{providerID}. Providers may only add
// slots to their own station.
func NewAddSlotHandler(allocator SlotAllocator) http.HandlerFunc {
	type request struct {
		SlotType     string    `json:"slot_type"`
		Price        flexFloat `json:"price"`
		Availability flexInt   `json:"availability"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		providerID := strings.TrimSpace(chi.URLParam(r, "providerID"))
		if providerID != "" && providerID != caller {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if providerID == "" || strings.TrimSpace(req.SlotType) == "" || !req.Price.Set || !req.Availability.Set {
			writeError(w, http.StatusBadRequest, "provider id, slot type, price and availability are required")
			return
		}

		slot, err := allocator.AllocateSlot(r.Context(), service.AllocateInput{
			ProviderID:   providerID,
			SlotType:     req.SlotType,
			Price:        req.Price.Value,
			Availability: req.Availability.Value,
		})
		if err != nil {
			writeServiceError(w, err, "failed to add charging slot")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":      statusSuccess,
			"message":     "Charging slot added successfully",
			"slot_id":     slot.ID,
			"slot_number": slot.Number,
			"slot":        slot,
		})
	}
}

// NewUpdateSlotHandler handles PUT /api/charging-slots/update. Slots at stations the caller
// does not own are reported as not found.
func NewUpdateSlotHandler(mutator SlotMutator) http.HandlerFunc {
	type request struct {
		StationID    string    `json:"station_id"`
		SlotNumber   flexInt   `json:"slot_number"`
		SlotID       string    `json:"slot_id"`
		SlotType     string    `json:"slot_type"`
		Price        flexFloat `json:"price"`
		Availability flexInt   `json:"availability"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.StationID) == "" || !req.SlotNumber.Set || strings.TrimSpace(req.SlotType) == "" ||
			!req.Price.Set || !req.Availability.Set {
			writeError(w, http.StatusBadRequest, "all fields are required")
			return
		}

		updated, err := mutator.UpdateSlot(r.Context(), service.UpdateInput{
			SlotRef: service.SlotRef{
				ProviderID: caller,
				StationID:  req.StationID,
				SlotNumber: req.SlotNumber.Value,
				SlotID:     req.SlotID,
			},
			SlotType:     req.SlotType,
			Price:        req.Price.Value,
			Availability: req.Availability.ptr(),
		})
		if err != nil {
			writeServiceError(w, err, "failed to update the charging slot")
			return
		}
		if !updated {
			writeError(w, http.StatusNotFound, "charging slot not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": statusSuccess, "message": "Charging slot updated successfully"})
	}
}

// NewDeleteSlotHandler handles DELETE /api/charging-slots/delete. Without slot_id every slot
// sharing the station/number pair is removed.
func NewDeleteSlotHandler(mutator SlotMutator) http.HandlerFunc {
	type request struct {
		StationID  string  `json:"station_id"`
		SlotNumber flexInt `json:"slot_number"`
		SlotID     string  `json:"slot_id"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.StationID) == "" || !req.SlotNumber.Set {
			writeError(w, http.StatusBadRequest, "station id and slot number are required")
			return
		}

		deleted, err := mutator.DeleteSlot(r.Context(), service.SlotRef{
			ProviderID: caller,
			StationID:  req.StationID,
			SlotNumber: req.SlotNumber.Value,
			SlotID:     req.SlotID,
		})
		if err != nil {
			writeServiceError(w, err, "failed to delete the charging slot")
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "charging slot not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": statusSuccess, "message": "Charging slot deleted successfully"})
	}
}
