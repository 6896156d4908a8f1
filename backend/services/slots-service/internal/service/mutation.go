package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/events"
	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/repository"
)

// MutationStore updates and deletes a provider's slots addressed by station and number.
type MutationStore interface {
	UpdateSlot(ctx context.Context, target repository.SlotTarget, slotType string, price float64, availability int, now time.Time) ([]string, error)
	DeleteSlot(ctx context.Context, target repository.SlotTarget) ([]string, error)
}

// SlotRef addresses slots owned by ProviderID. Without SlotID every slot sharing the
// station/number pair is affected.
type SlotRef struct {
	ProviderID string
	StationID  string
	SlotNumber int
	SlotID     string
}

func (r SlotRef) target() repository.SlotTarget {
	return repository.SlotTarget{
		ProviderID: strings.TrimSpace(r.ProviderID),
		Key:        models.SlotKey{StationID: strings.TrimSpace(r.StationID), Number: r.SlotNumber},
		SlotID:     strings.TrimSpace(r.SlotID),
	}
}

func (r SlotRef) validate() error {
	switch {
	case strings.TrimSpace(r.ProviderID) == "":
		return invalid("provider id is required")
	case strings.TrimSpace(r.StationID) == "":
		return invalid("station id is required")
	case r.SlotNumber <= 0:
		return invalid("slot number is required")
	}
	return nil
}

// UpdateInput carries the replacement values of a slot.
type UpdateInput struct {
	SlotRef
	SlotType     string
	Price        float64
	Availability *int
}

// SlotMutationService edits existing slots.
type SlotMutationService struct {
	store        MutationStore
	publisher    EventPublisher
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// NewSlotMutationService builds SlotMutationService.
func NewSlotMutationService(store MutationStore, publisher EventPublisher, logger *zap.Logger, storeTimeout time.Duration) *SlotMutationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SlotMutationService{
		store:        store,
		publisher:    publisher,
		logger:       logger.Named("mutation"),
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// UpdateSlot reports whether any slot was updated. A missing slot, or one at a station the
// provider does not own, is not an error.
func (s *SlotMutationService) UpdateSlot(ctx context.Context, in UpdateInput) (bool, error) {
	in.SlotType = strings.TrimSpace(in.SlotType)
	if err := in.validate(); err != nil {
		return false, err
	}
	switch {
	case in.SlotType == "":
		return false, invalid("slot type is required")
	case !models.ValidPrice(in.Price):
		return false, invalid("price must be a positive number")
	case in.Availability == nil:
		return false, invalid("availability is required")
	case !models.ValidAvailability(*in.Availability):
		return false, invalid("availability must be 0 or 1")
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	target := in.target()
	ids, err := s.store.UpdateSlot(ctx, target, in.SlotType, in.Price, *in.Availability, s.now())
	if err != nil {
		s.logger.Error("failed to update slot", zap.String("station_id", target.Key.StationID), zap.Int("slot_number", target.Key.Number), zap.Error(err))
		return false, classify(ErrUpdateFailed, "update slot", err)
	}
	if len(ids) > 1 {
		s.logger.Warn("slot number shared, updated every match", zap.String("station_id", target.Key.StationID), zap.Strings("slot_ids", ids))
	}

	for _, id := range ids {
		emit(ctx, s.publisher, s.logger, events.SlotEvent{
			Type:       events.SlotUpdated,
			StationID:  target.Key.StationID,
			SlotID:     id,
			SlotNumber: target.Key.Number,
		}.WithAvailability(*in.Availability))
	}
	return len(ids) > 0, nil
}

// DeleteSlot reports whether any slot was removed. A missing slot is not an error.
func (s *SlotMutationService) DeleteSlot(ctx context.Context, ref SlotRef) (bool, error) {
	if err := ref.validate(); err != nil {
		return false, err
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	target := ref.target()
	ids, err := s.store.DeleteSlot(ctx, target)
	if err != nil {
		s.logger.Error("failed to delete slot", zap.String("station_id", target.Key.StationID), zap.Int("slot_number", target.Key.Number), zap.Error(err))
		return false, classify(ErrDeletionFailed, "delete slot", err)
	}

	for _, id := range ids {
		s.logger.Info("slot deleted", zap.String("slot_id", id), zap.String("station_id", target.Key.StationID))
		emit(ctx, s.publisher, s.logger, events.SlotEvent{
			Type:       events.SlotDeleted,
			StationID:  target.Key.StationID,
			SlotID:     id,
			SlotNumber: target.Key.Number,
		})
	}
	return len(ids) > 0, nil
}

func (s *SlotMutationService) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return context.WithCancel(ctx)
}
