package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/events"
	"chargegrid/backend/services/slots-service/internal/metrics"
	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/repository"
)

const defaultAllocationAttempts = 3

// SlotStore runs allocation transactions.
type SlotStore interface {
	WithAllocationTx(ctx context.Context, fn func(tx repository.AllocationTx) error) error
}

// EventPublisher emits slot availability events.
type EventPublisher interface {
	Publish(ctx context.Context, event events.SlotEvent) error
}

// AllocateInput is a provider's request for a new slot.
type AllocateInput struct {
	ProviderID   string
	SlotType     string
	Price        float64
	Availability int
}

// AllocatorOptions tunes the allocator.
type AllocatorOptions struct {
	Policy       NumberingPolicy
	SlotLimit    int
	StoreTimeout time.Duration
	MaxAttempts  int
}

// SlotAllocator creates slots with unique ids and bounded per-station numbers.
type SlotAllocator struct {
	store     SlotStore
	publisher EventPublisher
	metrics   *metrics.SlotMetrics
	logger    *zap.Logger
	opts      AllocatorOptions
}

// NewSlotAllocator builds SlotAllocator.
func NewSlotAllocator(store SlotStore, publisher EventPublisher, m *metrics.SlotMetrics, logger *zap.Logger, opts AllocatorOptions) *SlotAllocator {
	if opts.Policy == "" {
		opts.Policy = NumberingWrap
	}
	if opts.SlotLimit <= 0 {
		opts.SlotLimit = DefaultSlotLimit
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAllocationAttempts
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SlotAllocator{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("allocator"),
		opts:      opts,
	}
}

// AllocateSlot inserts a slot at the provider's station. The station row is locked for the
// duration of the transaction, so concurrent allocations for one station are serialized.
func (a *SlotAllocator) AllocateSlot(ctx context.Context, in AllocateInput) (*models.Slot, error) {
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.SlotType = strings.TrimSpace(in.SlotType)
	switch {
	case in.ProviderID == "":
		return nil, invalid("provider id is required")
	case in.SlotType == "":
		return nil, invalid("slot type is required")
	case !models.ValidPrice(in.Price):
		return nil, invalid("price must be a positive number")
	case !models.ValidAvailability(in.Availability):
		return nil, invalid("availability must be 0 or 1")
	}

	if a.opts.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.StoreTimeout)
		defer cancel()
	}

	var (
		slot    *models.Slot
		wrapped bool
		err     error
	)
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		slot, wrapped, err = a.allocateOnce(ctx, in)
		if !errors.Is(err, repository.ErrSlotIDConflict) {
			break
		}
		a.metrics.Allocation(metrics.AllocationRetried)
		a.logger.Warn("slot id conflict, retrying allocation",
			zap.String("provider_id", in.ProviderID), zap.Int("attempt", attempt))
	}

	if err != nil {
		a.metrics.Allocation(metrics.AllocationFailed)
		switch {
		case errors.Is(err, repository.ErrStationNotFound):
			return nil, classify(ErrNotFound, "allocate slot", err)
		case errors.Is(err, ErrStationFull):
			return nil, classify(ErrAllocationFailed, "allocate slot", err)
		}
		a.logger.Error("slot allocation failed", zap.String("provider_id", in.ProviderID), zap.Error(err))
		return nil, classify(ErrAllocationFailed, "allocate slot", err)
	}

	outcome := metrics.AllocationSequential
	if wrapped {
		outcome = metrics.AllocationWrapped
		a.logger.Warn("slot number wrapped, number is shared with an existing slot",
			zap.String("station_id", slot.StationID), zap.Int("slot_number", slot.Number), zap.String("slot_id", slot.ID))
	}
	a.metrics.Allocation(outcome)
	a.logger.Info("slot allocated",
		zap.String("slot_id", slot.ID), zap.String("station_id", slot.StationID), zap.Int("slot_number", slot.Number))

	emit(ctx, a.publisher, a.logger, events.SlotEvent{
		Type:       events.SlotAllocated,
		StationID:  slot.StationID,
		SlotID:     slot.ID,
		SlotNumber: slot.Number,
		OccurredAt: slot.CreatedAt,
	}.WithAvailability(slot.Availability))

	return slot, nil
}

func (a *SlotAllocator) allocateOnce(ctx context.Context, in AllocateInput) (*models.Slot, bool, error) {
	var slot *models.Slot
	var wrapped bool
	err := a.store.WithAllocationTx(ctx, func(tx repository.AllocationTx) error {
		stationID, err := tx.LockProviderStation(ctx, in.ProviderID)
		if err != nil {
			return err
		}

		seq, err := tx.NextSlotSequence(ctx)
		if err != nil {
			return err
		}

		used, err := tx.SlotNumbers(ctx, stationID)
		if err != nil {
			return err
		}

		number, wrap, err := NextSlotNumber(a.opts.Policy, used, a.opts.SlotLimit)
		if err != nil {
			return err
		}

		candidate := &models.Slot{
			ID:           FormatSlotID(seq),
			StationID:    stationID,
			Number:       number,
			Type:         in.SlotType,
			Price:        in.Price,
			Availability: in.Availability,
		}
		if err := tx.InsertSlot(ctx, candidate); err != nil {
			return err
		}
		slot, wrapped = candidate, wrap
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return slot, wrapped, nil
}

// emit publishes best effort; a lost event never fails the operation that produced it.
func emit(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event events.SlotEvent) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish slot event", zap.String("type", event.Type), zap.Error(err))
	}
}
