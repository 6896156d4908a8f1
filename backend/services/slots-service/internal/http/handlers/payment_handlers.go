package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/http/middleware"
	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/payment"
	"chargegrid/backend/services/slots-service/internal/service"
)

const stripeSignatureHeader = "Stripe-Signature"

// Coordinator ties checkout to slot availability.
type Coordinator interface {
	ReserveAndCharge(ctx context.Context, req service.ReserveRequest) (*service.Checkout, error)
	ConfirmHold(ctx context.Context, sessionID string) (*models.SlotHold, error)
	ReleaseHold(ctx context.Context, sessionID string) (*models.SlotHold, error)
	SessionExpired(ctx context.Context, sessionID string) (*models.SlotHold, error)
}

// NewCreatePaymentHandler handles POST /api/charging-slots/create_payment. The owner is
// taken from the bearer token.
func NewCreatePaymentHandler(coordinator Coordinator) http.HandlerFunc {
	type request struct {
		StationName string    `json:"station_name"`
		Price       flexFloat `json:"price"`
		SlotNumber  flexInt   `json:"slot_number"`
		StationID   string    `json:"station_id"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.StationName) == "" || !req.Price.Set {
			writeError(w, http.StatusBadRequest, "station name and price are required")
			return
		}
		if strings.TrimSpace(req.StationID) == "" || !req.SlotNumber.Set {
			writeError(w, http.StatusBadRequest, "station id and slot number are required")
			return
		}

		checkout, err := coordinator.ReserveAndCharge(r.Context(), service.ReserveRequest{
			StationID:   req.StationID,
			SlotNumber:  req.SlotNumber.Value,
			StationName: req.StationName,
			Price:       req.Price.Value,
			UserID:      claims.UserID,
		})
		if err != nil {
			writeServiceError(w, err, "failed to create payment session")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":     statusSuccess,
			"url":        checkout.URL,
			"session_id": checkout.SessionID,
			"hold_id":    checkout.HoldID,
			"expires_at": checkout.ExpiresAt,
		})
	}
}

// NewCancelPaymentHandler handles GET /api/payments/cancel?session_id=.
func NewCancelPaymentHandler(coordinator Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "session id is required")
			return
		}

		hold, err := coordinator.ReleaseHold(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, err, "failed to cancel payment")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      statusSuccess,
			"message":     "Payment canceled",
			"hold_status": hold.Status,
		})
	}
}

// WebhookOptions configures signature checks for the payment webhook.
type WebhookOptions struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// NewPaymentWebhookHandler handles POST /api/payments/webhook. Events that cannot be
// applied for good (unknown session, closed hold) are acknowledged so the provider stops
// retrying; store failures reply 500 so it retries.
func NewPaymentWebhookHandler(coordinator Coordinator, opts WebhookOptions, logger *zap.Logger) http.HandlerFunc {
	if opts.Tolerance <= 0 {
		opts.Tolerance = payment.DefaultSignatureTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger = logger.Named("webhook")

	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		if err := payment.VerifySignature(payload, r.Header.Get(stripeSignatureHeader), opts.Secret, opts.Tolerance, opts.Now()); err != nil {
			logger.Warn("rejected webhook", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		event, err := payment.ParseEvent(payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		log := logger.With(zap.String("event_id", event.ID), zap.String("type", event.Type), zap.String("session_id", event.SessionID))
		switch event.Type {
		case payment.EventCheckoutCompleted:
			if event.PaymentStatus != "" && event.PaymentStatus != "paid" {
				log.Info("checkout completed without payment", zap.String("payment_status", event.PaymentStatus))
				break
			}
			_, err = coordinator.ConfirmHold(r.Context(), event.SessionID)
		case payment.EventCheckoutExpired:
			_, err = coordinator.SessionExpired(r.Context(), event.SessionID)
		default:
			log.Debug("ignored webhook event")
		}

		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrHoldClosed), errors.Is(err, service.ErrInvalidRequest):
				log.Warn("webhook event not applied", zap.Error(err))
			default:
				log.Error("failed to apply webhook event", zap.Error(err))
				writeServiceError(w, err, "failed to process event")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
