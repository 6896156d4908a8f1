package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/events"
	"chargegrid/backend/services/slots-service/internal/models"
)

func newTestAllocator(db *fakeSlotDB, pub EventPublisher, policy NumberingPolicy) *SlotAllocator {
	return NewSlotAllocator(db, pub, nil, zap.NewNop(), AllocatorOptions{Policy: policy})
}

func validInput() AllocateInput {
	return AllocateInput{ProviderID: "P1", SlotType: "DC", Price: 12.5, Availability: 1}
}

func TestAllocateSlotNextNumber(t *testing.T) {
	for n := 0; n < 10; n++ {
		db := newFakeSlotDB()
		db.stations["P1"] = "ST1"
		for i := 1; i <= n; i++ {
			db.addSlots("ST1", i)
		}

		slot, err := newTestAllocator(db, nil, NumberingWrap).AllocateSlot(context.Background(), validInput())
		require.NoError(t, err)
		assert.Equal(t, n+1, slot.Number, "station with %d slots", n)
		assert.Equal(t, "ST1", slot.StationID)
	}
}

func TestAllocateSlotFirstIDIsSL001(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"

	slot, err := newTestAllocator(db, nil, NumberingWrap).AllocateSlot(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "SL001", slot.ID)
	assert.Equal(t, 1, slot.Number)
}

func TestAllocateSlotWrapsAfterTenWithFreshID(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	db.addSlots("ST1", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	pub := &recordingPublisher{}
	slot, err := newTestAllocator(db, pub, NumberingWrap).AllocateSlot(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 1, slot.Number)
	assert.Equal(t, "SL011", slot.ID)

	for _, existing := range db.slots[:10] {
		assert.NotEqual(t, existing.ID, slot.ID)
	}
	assert.Equal(t, []string{events.SlotAllocated}, pub.types())
}

func TestAllocateSlotIDsIncreaseAcrossStations(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	db.stations["P2"] = "ST2"
	alloc := newTestAllocator(db, nil, NumberingWrap)

	var last int64
	for i := 0; i < 6; i++ {
		in := validInput()
		if i%2 == 1 {
			in.ProviderID = "P2"
		}
		slot, err := alloc.AllocateSlot(context.Background(), in)
		require.NoError(t, err)
		seq, err := ParseSlotSequence(slot.ID)
		require.NoError(t, err)
		assert.Greater(t, seq, last)
		last = seq
	}
}

func TestAllocateSlotConcurrentUniqueIDs(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	alloc := newTestAllocator(db, nil, NumberingWrap)

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := alloc.AllocateSlot(context.Background(), validInput())
			if assert.NoError(t, err) {
				ids <- slot.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)
}

func TestAllocateSlotRetriesOnIDConflict(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	db.conflicts = 2

	slot, err := newTestAllocator(db, nil, NumberingWrap).AllocateSlot(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "SL001", slot.ID)
}

func TestAllocateSlotGivesUpAfterRepeatedConflicts(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	db.conflicts = 5

	_, err := newTestAllocator(db, nil, NumberingWrap).AllocateSlot(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestAllocateSlotErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    func() AllocateInput
		setup func(*fakeSlotDB)
		want  error
	}{
		{
			name: "missing provider",
			in:   func() AllocateInput { in := validInput(); in.ProviderID = " "; return in },
			want: ErrInvalidRequest,
		},
		{
			name: "missing type",
			in:   func() AllocateInput { in := validInput(); in.SlotType = ""; return in },
			want: ErrInvalidRequest,
		},
		{
			name: "non positive price",
			in:   func() AllocateInput { in := validInput(); in.Price = 0; return in },
			want: ErrInvalidRequest,
		},
		{
			name: "nan price",
			in:   func() AllocateInput { in := validInput(); in.Price = math.NaN(); return in },
			want: ErrInvalidRequest,
		},
		{
			name: "infinite price",
			in:   func() AllocateInput { in := validInput(); in.Price = math.Inf(1); return in },
			want: ErrInvalidRequest,
		},
		{
			name: "bad availability",
			in:   func() AllocateInput { in := validInput(); in.Availability = 2; return in },
			want: ErrInvalidRequest,
		},
		{
			name: "provider without station",
			in:   func() AllocateInput { in := validInput(); in.ProviderID = "nobody"; return in },
			want: ErrNotFound,
		},
		{
			name:  "store failure",
			in:    validInput,
			setup: func(db *fakeSlotDB) { db.txErr = errors.New("connection reset") },
			want:  ErrAllocationFailed,
		},
		{
			name:  "deadline",
			in:    validInput,
			setup: func(db *fakeSlotDB) { db.txErr = context.DeadlineExceeded },
			want:  ErrTimeout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := newFakeSlotDB()
			db.stations["P1"] = "ST1"
			if tc.setup != nil {
				tc.setup(db)
			}
			slot, err := newTestAllocator(db, nil, NumberingWrap).AllocateSlot(context.Background(), tc.in())
			assert.Nil(t, slot)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, db.slots)
		})
	}
}

func TestAllocateSlotRejectPolicyOnFullStation(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	db.addSlots("ST1", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	before := db.seq

	_, err := newTestAllocator(db, nil, NumberingReject).AllocateSlot(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.ErrorIs(t, err, ErrStationFull)
	assert.Equal(t, before, db.seq, "sequence must roll back with the transaction")
}

func TestAllocateSlotLowestFreePolicy(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	db.addSlots("ST1", 1, 2, 4, 5)

	slot, err := newTestAllocator(db, nil, NumberingLowestFree).AllocateSlot(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 3, slot.Number)
}

func TestAllocateSlotIgnoresPublishFailure(t *testing.T) {
	db := newFakeSlotDB()
	db.stations["P1"] = "ST1"
	pub := &recordingPublisher{err: errors.New("redis down")}

	slot, err := newTestAllocator(db, pub, NumberingWrap).AllocateSlot(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, models.SlotAvailable, slot.Availability)
}
