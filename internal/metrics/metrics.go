package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"storefront-be/internal/utils"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Settlement counts settlement outcomes per process.
type Settlement struct {
	Settled    Counter
	Duplicate  Counter
	Pending    Counter
	Rejected   Counter
	Reconcile  Counter
	totalNanos Counter
	observed   Counter
}

// Observe records the latency of one Settle call.
func (s *Settlement) Observe(d time.Duration) {
	s.totalNanos.Add(uint64(d.Nanoseconds()))
	s.observed.Inc()
}

type SettlementSnapshot struct {
	Settled         uint64  `json:"settled"`
	Duplicate       uint64  `json:"duplicate"`
	Pending         uint64  `json:"pending"`
	Rejected        uint64  `json:"rejected"`
	Reconcile       uint64  `json:"reconcile"`
	AvgLatencyMilli float64 `json:"avg_latency_ms"`
}

func (s *Settlement) Snapshot() SettlementSnapshot {
	snap := SettlementSnapshot{
		Settled:   s.Settled.Load(),
		Duplicate: s.Duplicate.Load(),
		Pending:   s.Pending.Load(),
		Rejected:  s.Rejected.Load(),
		Reconcile: s.Reconcile.Load(),
	}
	if n := s.observed.Load(); n > 0 {
		snap.AvgLatencyMilli = float64(s.totalNanos.Load()) / float64(n) / float64(time.Millisecond)
	}
	return snap
}

// Reservations counts stock reservation calls.
type Reservations struct {
	Reserved  Counter
	Rejected  Counter
	Confirmed Counter
	Released  Counter
	Expired   Counter
}

type ReservationsSnapshot struct {
	Reserved  uint64 `json:"reserved"`
	Rejected  uint64 `json:"rejected"`
	Confirmed uint64 `json:"confirmed"`
	Released  uint64 `json:"released"`
	Expired   uint64 `json:"expired"`
}

func (r *Reservations) Snapshot() ReservationsSnapshot {
	return ReservationsSnapshot{
		Reserved:  r.Reserved.Load(),
		Rejected:  r.Rejected.Load(),
		Confirmed: r.Confirmed.Load(),
		Released:  r.Released.Load(),
		Expired:   r.Expired.Load(),
	}
}

type Registry struct {
	Settlement   Settlement
	Reservations Reservations
	started      time.Time
}

func NewRegistry() *Registry {
	return &Registry{started: time.Now()}
}

// Handler serves GET /metrics.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"uptime_seconds": int64(time.Since(r.started).Seconds()),
			"settlement":     r.Settlement.Snapshot(),
			"reservations":   r.Reservations.Snapshot(),
		})
	}
}
