package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersByOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Allocation(AllocationSequential)
	m.Allocation(AllocationWrapped)
	m.Allocation(AllocationWrapped)
	m.Hold(HoldExpired, 3)
	m.Hold(HoldExpired, 0)
	m.Gateway("create_checkout", time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(m.allocations.WithLabelValues(AllocationWrapped)); got != 2 {
		t.Fatalf("expected 2 wrapped allocations, got %v", got)
	}
	if got := testutil.ToFloat64(m.holds.WithLabelValues(HoldExpired)); got != 3 {
		t.Fatalf("expected 3 expired holds, got %v", got)
	}
	if got := testutil.ToFloat64(m.gatewayCalls.WithLabelValues("create_checkout", GatewayError)); got != 1 {
		t.Fatalf("expected 1 gateway error, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *SlotMetrics
	m.Allocation(AllocationFailed)
	m.Hold(HoldCreated, 1)
	m.Gateway("expire_checkout", time.Now(), nil)
	m.Sweep(4)
}
