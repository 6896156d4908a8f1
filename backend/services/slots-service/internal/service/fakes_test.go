package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"chargegrid/backend/services/slots-service/internal/events"
	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/payment"
	"chargegrid/backend/services/slots-service/internal/repository"
)

// fakeSlotDB is an in-memory slot table with serialized, all-or-nothing transactions.
type fakeSlotDB struct {
	mu        sync.Mutex
	stations  map[string]string // provider -> station
	slots     []models.Slot
	seq       int64
	conflicts int
	txErr     error
}

func newFakeSlotDB() *fakeSlotDB {
	return &fakeSlotDB{stations: map[string]string{}}
}

func (f *fakeSlotDB) addSlots(stationID string, numbers ...int) {
	for _, n := range numbers {
		f.seq++
		f.slots = append(f.slots, models.Slot{
			ID:           FormatSlotID(f.seq),
			StationID:    stationID,
			Number:       n,
			Type:         "AC",
			Price:        10,
			Availability: models.SlotAvailable,
		})
	}
}

func (f *fakeSlotDB) WithAllocationTx(ctx context.Context, fn func(tx repository.AllocationTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		return f.txErr
	}

	snapshotSlots := append([]models.Slot(nil), f.slots...)
	snapshotSeq := f.seq
	if err := fn(&fakeAllocTx{db: f}); err != nil {
		f.slots, f.seq = snapshotSlots, snapshotSeq
		return err
	}
	return nil
}

type fakeAllocTx struct {
	db *fakeSlotDB
}

func (t *fakeAllocTx) LockProviderStation(ctx context.Context, providerID string) (string, error) {
	st, ok := t.db.stations[providerID]
	if !ok {
		return "", repository.ErrStationNotFound
	}
	return st, nil
}

func (t *fakeAllocTx) NextSlotSequence(ctx context.Context) (int64, error) {
	t.db.seq++
	return t.db.seq, nil
}

func (t *fakeAllocTx) SlotNumbers(ctx context.Context, stationID string) ([]int, error) {
	var out []int
	for _, s := range t.db.slots {
		if s.StationID == stationID {
			out = append(out, s.Number)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (t *fakeAllocTx) InsertSlot(ctx context.Context, slot *models.Slot) error {
	if t.db.conflicts > 0 {
		t.db.conflicts--
		return repository.ErrSlotIDConflict
	}
	for _, s := range t.db.slots {
		if s.ID == slot.ID {
			return repository.ErrSlotIDConflict
		}
	}
	slot.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	slot.UpdatedAt = slot.CreatedAt
	t.db.slots = append(t.db.slots, *slot)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SlotEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.SlotEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// callLog records the order of store and gateway calls.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeGateway struct {
	log       *callLog
	createErr error
	expireErr error
	expired   []string
	lastReq   payment.CheckoutRequest
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.log.add("gateway.create")
	g.lastReq = req
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payment.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (g *fakeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	g.log.add("gateway.expire")
	g.expired = append(g.expired, sessionID)
	return g.expireErr
}

type fakeHoldStore struct {
	log *callLog

	slot       *models.Slot
	bookErr    error
	claimErr   error
	confirmErr error
	releaseErr error
	expireErr  error

	claims    []repository.HoldClaim
	holds     map[string]*models.SlotHold
	expirable []models.SlotHold
}

func newFakeHoldStore(log *callLog) *fakeHoldStore {
	return &fakeHoldStore{
		log: log,
		slot: &models.Slot{
			ID: "SL007", StationID: "ST1", Number: 3, Type: "DC", Price: 12.5,
			Availability: models.SlotAvailable,
		},
		holds: map[string]*models.SlotHold{},
	}
}

func (s *fakeHoldStore) BookableSlot(ctx context.Context, key models.SlotKey, now time.Time) (*models.Slot, error) {
	s.log.add("store.bookable")
	if s.bookErr != nil {
		return nil, s.bookErr
	}
	return s.slot, nil
}

func (s *fakeHoldStore) ClaimSlot(ctx context.Context, claim repository.HoldClaim) (*models.SlotHold, error) {
	s.log.add("store.claim")
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	s.claims = append(s.claims, claim)
	s.slot.Availability = models.SlotUnavailable
	hold := &models.SlotHold{
		ID:                claim.HoldID,
		SlotID:            s.slot.ID,
		StationID:         claim.Key.StationID,
		SlotNumber:        claim.Key.Number,
		UserID:            claim.UserID,
		CheckoutSessionID: claim.CheckoutSessionID,
		Amount:            claim.Amount,
		Status:            models.HoldHeld,
		ExpiresAt:         claim.ExpiresAt,
		CreatedAt:         claim.Now,
		UpdatedAt:         claim.Now,
	}
	s.holds[claim.CheckoutSessionID] = hold
	return hold, nil
}

func (s *fakeHoldStore) ConfirmHold(ctx context.Context, sessionID string, now time.Time) (*models.SlotHold, bool, error) {
	if s.confirmErr != nil {
		return nil, false, s.confirmErr
	}
	hold, ok := s.holds[sessionID]
	if !ok {
		return nil, false, repository.ErrHoldNotFound
	}
	switch hold.Status {
	case models.HoldConfirmed:
		return hold, false, nil
	case models.HoldHeld:
		hold.Status = models.HoldConfirmed
		return hold, true, nil
	default:
		return nil, false, repository.ErrHoldClosed
	}
}

func (s *fakeHoldStore) ReleaseHold(ctx context.Context, sessionID, status string, now time.Time) (*models.SlotHold, bool, error) {
	if s.releaseErr != nil {
		return nil, false, s.releaseErr
	}
	hold, ok := s.holds[sessionID]
	if !ok {
		return nil, false, repository.ErrHoldNotFound
	}
	if hold.Status != models.HoldHeld {
		return hold, false, nil
	}
	hold.Status = status
	s.slot.Availability = models.SlotAvailable
	return hold, true, nil
}

func (s *fakeHoldStore) ExpireHolds(ctx context.Context, now time.Time, limit int) ([]models.SlotHold, error) {
	if s.expireErr != nil {
		return nil, s.expireErr
	}
	var out []models.SlotHold
	for _, h := range s.expirable {
		if len(out) == limit {
			break
		}
		if h.Status == models.HoldHeld && !now.Before(h.ExpiresAt) {
			h.Status = models.HoldExpired
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeMutationStore struct {
	owners    map[string]string // station -> provider
	slots     map[models.SlotKey][]string
	err       error
	lastPrice float64
}

func (s *fakeMutationStore) match(target repository.SlotTarget) []string {
	if s.owners[target.Key.StationID] != target.ProviderID {
		return nil
	}
	var ids []string
	for _, id := range s.slots[target.Key] {
		if target.SlotID == "" || target.SlotID == id {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *fakeMutationStore) UpdateSlot(ctx context.Context, target repository.SlotTarget, slotType string, price float64, availability int, now time.Time) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := s.match(target)
	if len(ids) > 0 {
		s.lastPrice = price
	}
	return ids, nil
}

func (s *fakeMutationStore) DeleteSlot(ctx context.Context, target repository.SlotTarget) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := s.match(target)
	var kept []string
	for _, id := range s.slots[target.Key] {
		if !slices.Contains(ids, id) {
			kept = append(kept, id)
		}
	}
	s.slots[target.Key] = kept
	return ids, nil
}
