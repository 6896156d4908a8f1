package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Allocation outcomes.
const (
	AllocationSequential = "sequential"
	AllocationWrapped    = "wrapped"
	AllocationRetried    = "retried"
	AllocationFailed     = "failed"
)

// Hold outcomes.
const (
	HoldCreated   = "created"
	HoldConfirmed = "confirmed"
	HoldReleased  = "released"
	HoldExpired   = "expired"
	HoldRejected  = "rejected"
)

// Gateway results.
const (
	GatewayOK    = "ok"
	GatewayError = "error"
)

// SlotMetrics holds the slots-service instruments. A nil *SlotMetrics is a valid no-op.
type SlotMetrics struct {
	allocations     *prometheus.CounterVec
	holds           *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	sweepBatch      prometheus.Histogram
}

// New creates and registers the instruments on registerer.
func New(registerer prometheus.Registerer) *SlotMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &SlotMetrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slots_allocations_total",
			Help: "Slot allocations by outcome; wrapped counts numbers reused after the station limit.",
		}, []string{"outcome"}),
		holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slots_holds_total",
			Help: "Slot hold lifecycle transitions.",
		}, []string{"outcome"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slots_gateway_requests_total",
			Help: "Payment gateway calls by operation and result.",
		}, []string{"op", "result"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slots_gateway_request_duration_seconds",
			Help:    "Payment gateway call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		sweepBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slots_hold_sweep_batch_size",
			Help:    "Expired holds released per sweep.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}

	registerer.MustRegister(m.allocations, m.holds, m.gatewayCalls, m.gatewayDuration, m.sweepBatch)
	return m
}

// Allocation counts one allocation outcome.
func (m *SlotMetrics) Allocation(outcome string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(outcome).Inc()
}

// Hold counts one hold transition.
func (m *SlotMetrics) Hold(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holds.WithLabelValues(outcome).Add(float64(n))
}

// Gateway records a payment gateway call.
func (m *SlotMetrics) Gateway(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := GatewayOK
	if err != nil {
		result = GatewayError
	}
	m.gatewayCalls.WithLabelValues(op, result).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// Sweep records the size of one expiry sweep.
func (m *SlotMetrics) Sweep(n int) {
	if m == nil {
		return
	}
	m.sweepBatch.Observe(float64(n))
}
