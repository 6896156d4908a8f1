package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/events"
	"chargegrid/backend/services/slots-service/internal/metrics"
	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/payment"
	"chargegrid/backend/services/slots-service/internal/repository"
)

const (
	defaultHoldTTL    = 15 * time.Minute
	defaultSweepBatch = 100
	defaultCurrency   = "gbp"

	// Stripe substitutes the session id into redirect URLs.
	checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

// HoldStore persists slot holds together with slot availability.
type HoldStore interface {
	BookableSlot(ctx context.Context, key models.SlotKey, now time.Time) (*models.Slot, error)
	ClaimSlot(ctx context.Context, claim repository.HoldClaim) (*models.SlotHold, error)
	ConfirmHold(ctx context.Context, sessionID string, now time.Time) (*models.SlotHold, bool, error)
	ReleaseHold(ctx context.Context, sessionID, status string, now time.Time) (*models.SlotHold, bool, error)
	ExpireHolds(ctx context.Context, now time.Time, limit int) ([]models.SlotHold, error)
}

// PaymentGateway opens and voids hosted checkout sessions.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

// ReserveRequest is an owner's request to pay for a slot.
type ReserveRequest struct {
	StationID   string
	SlotNumber  int
	StationName string
	Price       float64
	UserID      string
}

// Checkout is returned once the slot is held and payment can start.
type Checkout struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	HoldID    string    `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CoordinatorOptions tunes the availability coordinator.
type CoordinatorOptions struct {
	Currency       string
	SuccessURL     string
	CancelURL      string
	HoldTTL        time.Duration
	GatewayTimeout time.Duration
	StoreTimeout   time.Duration
	SweepBatch     int
	Now            func() time.Time
}

// AvailabilityCoordinator ties slot availability to the payment lifecycle.
type AvailabilityCoordinator struct {
	holds     HoldStore
	gateway   PaymentGateway
	publisher EventPublisher
	metrics   *metrics.SlotMetrics
	logger    *zap.Logger
	opts      CoordinatorOptions
}

// NewAvailabilityCoordinator builds AvailabilityCoordinator.
func NewAvailabilityCoordinator(holds HoldStore, gateway PaymentGateway, publisher EventPublisher, m *metrics.SlotMetrics, logger *zap.Logger, opts CoordinatorOptions) *AvailabilityCoordinator {
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = defaultHoldTTL
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AvailabilityCoordinator{
		holds:     holds,
		gateway:   gateway,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("coordinator"),
		opts:      opts,
	}
}

// ReserveAndCharge opens a checkout session for the slot and then holds the slot until the
// payment completes or the hold expires. A failure to hold the slot after the session was
// created voids the session and is reported as ErrAvailabilityUpdateFailed or
// ErrSlotUnavailable, never as ErrGateway.
func (c *AvailabilityCoordinator) ReserveAndCharge(ctx context.Context, req ReserveRequest) (*Checkout, error) {
	req.StationID = strings.TrimSpace(req.StationID)
	req.StationName = strings.TrimSpace(req.StationName)
	req.UserID = strings.TrimSpace(req.UserID)
	switch {
	case req.StationName == "":
		return nil, invalid("station name is required")
	case !models.ValidPrice(req.Price):
		return nil, invalid("price must be a positive number")
	case req.StationID == "":
		return nil, invalid("station id is required")
	case req.SlotNumber <= 0:
		return nil, invalid("slot number is required")
	case req.UserID == "":
		return nil, invalid("user id is required")
	}

	key := models.SlotKey{StationID: req.StationID, Number: req.SlotNumber}
	now := c.opts.Now()
	log := c.logger.With(zap.String("station_id", key.StationID), zap.Int("slot_number", key.Number), zap.String("user_id", req.UserID))

	storeCtx, cancel := c.storeContext(ctx)
	slot, err := c.holds.BookableSlot(storeCtx, key, now)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotNotFound):
			return nil, classify(ErrNotFound, "reserve slot", err)
		case errors.Is(err, repository.ErrSlotUnavailable):
			c.metrics.Hold(metrics.HoldRejected, 1)
			return nil, classify(ErrSlotUnavailable, "reserve slot", err)
		}
		log.Error("failed to check slot", zap.Error(err))
		return nil, classify(ErrStore, "reserve slot", err)
	}
	if !priceMatches(slot.Price, req.Price) {
		return nil, invalid("price %.2f does not match slot price", req.Price)
	}

	session, err := c.createSession(ctx, req)
	if err != nil {
		log.Error("failed to create checkout session", zap.Error(err))
		return nil, classify(ErrGateway, "create checkout session", err)
	}
	log = log.With(zap.String("session_id", session.ID))

	holdID := ulid.Make().String()
	expiresAt := now.Add(c.opts.HoldTTL)
	storeCtx, cancel = c.storeContext(ctx)
	hold, err := c.holds.ClaimSlot(storeCtx, repository.HoldClaim{
		HoldID:            holdID,
		Key:               key,
		UserID:            req.UserID,
		CheckoutSessionID: session.ID,
		Amount:            req.Price,
		Now:               now,
		ExpiresAt:         expiresAt,
	})
	cancel()
	if err != nil {
		c.voidSession(ctx, session.ID, log)
		switch {
		case errors.Is(err, repository.ErrSlotUnavailable):
			c.metrics.Hold(metrics.HoldRejected, 1)
			return nil, classify(ErrSlotUnavailable, "hold slot", err)
		case errors.Is(err, repository.ErrSlotNotFound):
			return nil, classify(ErrNotFound, "hold slot", err)
		}
		log.Error("checkout session created but slot availability update failed", zap.Error(err))
		return nil, fmt.Errorf("%w: hold slot: %w", ErrAvailabilityUpdateFailed, err)
	}

	c.metrics.Hold(metrics.HoldCreated, 1)
	log.Info("slot held for checkout", zap.String("hold_id", hold.ID), zap.Time("expires_at", hold.ExpiresAt))
	emit(ctx, c.publisher, c.logger, events.SlotEvent{
		Type:       events.SlotHeld,
		StationID:  hold.StationID,
		SlotID:     hold.SlotID,
		SlotNumber: hold.SlotNumber,
		HoldID:     hold.ID,
		OccurredAt: now,
	}.WithAvailability(models.SlotUnavailable))

	return &Checkout{
		URL:       session.URL,
		SessionID: session.ID,
		HoldID:    hold.ID,
		ExpiresAt: hold.ExpiresAt,
	}, nil
}

// ConfirmHold records a completed payment for the session's hold. Repeated confirmations
// succeed without side effects.
func (c *AvailabilityCoordinator) ConfirmHold(ctx context.Context, sessionID string) (*models.SlotHold, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, invalid("session id is required")
	}

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	hold, changed, err := c.holds.ConfirmHold(storeCtx, sessionID, c.opts.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrHoldNotFound):
			return nil, classify(ErrNotFound, "confirm hold", err)
		case errors.Is(err, repository.ErrHoldClosed):
			c.logger.Warn("payment completed for a closed hold, refund required", zap.String("session_id", sessionID))
			return nil, classify(ErrHoldClosed, "confirm hold", err)
		}
		c.logger.Error("failed to confirm hold", zap.String("session_id", sessionID), zap.Error(err))
		return nil, classify(ErrStore, "confirm hold", err)
	}

	if changed {
		c.metrics.Hold(metrics.HoldConfirmed, 1)
		c.logger.Info("hold confirmed", zap.String("hold_id", hold.ID), zap.String("session_id", sessionID))
		emit(ctx, c.publisher, c.logger, holdEvent(events.SlotConfirmed, hold, models.SlotUnavailable))
	}
	return hold, nil
}

// ReleaseHold returns a held slot to availability after checkout was abandoned. The
// checkout session is voided so it can no longer be paid.
func (c *AvailabilityCoordinator) ReleaseHold(ctx context.Context, sessionID string) (*models.SlotHold, error) {
	return c.release(ctx, sessionID, true)
}

// SessionExpired releases the hold of a checkout session the gateway already expired.
func (c *AvailabilityCoordinator) SessionExpired(ctx context.Context, sessionID string) (*models.SlotHold, error) {
	return c.release(ctx, sessionID, false)
}

func (c *AvailabilityCoordinator) release(ctx context.Context, sessionID string, void bool) (*models.SlotHold, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, invalid("session id is required")
	}

	storeCtx, cancel := c.storeContext(ctx)
	hold, changed, err := c.holds.ReleaseHold(storeCtx, sessionID, models.HoldReleased, c.opts.Now())
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrHoldNotFound) {
			return nil, classify(ErrNotFound, "release hold", err)
		}
		c.logger.Error("failed to release hold", zap.String("session_id", sessionID), zap.Error(err))
		return nil, classify(ErrStore, "release hold", err)
	}

	if changed {
		c.metrics.Hold(metrics.HoldReleased, 1)
		if void {
			c.voidSession(ctx, sessionID, c.logger)
		}
		c.logger.Info("hold released", zap.String("hold_id", hold.ID), zap.String("session_id", sessionID))
		emit(ctx, c.publisher, c.logger, holdEvent(events.SlotReleased, hold, models.SlotAvailable))
	}
	return hold, nil
}

// ExpireHolds releases holds whose TTL has passed and returns how many were closed.
func (c *AvailabilityCoordinator) ExpireHolds(ctx context.Context) (int, error) {
	storeCtx, cancel := c.storeContext(ctx)
	expired, err := c.holds.ExpireHolds(storeCtx, c.opts.Now(), c.opts.SweepBatch)
	cancel()
	if err != nil {
		return 0, classify(ErrStore, "expire holds", err)
	}

	for i := range expired {
		hold := &expired[i]
		c.voidSession(ctx, hold.CheckoutSessionID, c.logger)
		emit(ctx, c.publisher, c.logger, holdEvent(events.SlotExpired, hold, models.SlotAvailable))
	}
	c.metrics.Hold(metrics.HoldExpired, len(expired))
	c.metrics.Sweep(len(expired))
	if len(expired) > 0 {
		c.logger.Info("expired slot holds", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (c *AvailabilityCoordinator) createSession(ctx context.Context, req ReserveRequest) (*payment.CheckoutSession, error) {
	if c.opts.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.GatewayTimeout)
		defer cancel()
	}

	started := time.Now()
	session, err := c.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Currency:       c.opts.Currency,
		ProductName:    req.StationName,
		UnitAmount:     int64(math.Round(req.Price * 100)),
		SuccessURL:     withUserID(c.opts.SuccessURL, req.UserID),
		CancelURL:      withSessionID(c.opts.CancelURL),
		IdempotencyKey: uuid.NewString(),
		Metadata: map[string]string{
			"station_id":  req.StationID,
			"slot_number": strconv.Itoa(req.SlotNumber),
			"user_id":     req.UserID,
		},
	})
	c.metrics.Gateway("create_checkout", started, err)
	return session, err
}

// voidSession survives cancellation of the caller's context.
func (c *AvailabilityCoordinator) voidSession(ctx context.Context, sessionID string, log *zap.Logger) {
	if sessionID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if c.opts.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.GatewayTimeout)
		defer cancel()
	}

	started := time.Now()
	err := c.gateway.ExpireCheckoutSession(ctx, sessionID)
	c.metrics.Gateway("expire_checkout", started, err)
	if err != nil {
		log.Warn("failed to void checkout session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (c *AvailabilityCoordinator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.StoreTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func holdEvent(kind string, hold *models.SlotHold, availability int) events.SlotEvent {
	return events.SlotEvent{
		Type:       kind,
		StationID:  hold.StationID,
		SlotID:     hold.SlotID,
		SlotNumber: hold.SlotNumber,
		HoldID:     hold.ID,
		OccurredAt: hold.UpdatedAt,
	}.WithAvailability(availability)
}

func withUserID(base, userID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode() + "&session_id=" + checkoutSessionPlaceholder
	return u.String()
}

func withSessionID(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if u.RawQuery != "" {
		u.RawQuery += "&"
	}
	u.RawQuery += "session_id=" + checkoutSessionPlaceholder
	return u.String()
}

// priceMatches compares to the cent. A stored price that is not a valid price never matches.
func priceMatches(stored, requested float64) bool {
	if !models.ValidPrice(stored) || !models.ValidPrice(requested) {
		return false
	}
	return math.Abs(stored-requested) < 0.005
}
