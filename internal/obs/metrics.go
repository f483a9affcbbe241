// Package obs collects lightweight engine counters and latency stats.
package obs

import (
	"sync/atomic"
	"time"

	"github.com/cz9874308/barter-rs/internal/schema"
)

const maxEventKind = int(schema.EventShutdown)

// Metrics collects engine-side counters. All methods are nil-safe so
// wiring metrics stays optional.
type Metrics struct {
	eventCounts  [maxEventKind + 1]uint64
	auditTicks   uint64
	riskRefusals uint64
	execSheds    uint64
	eventErrors  uint64

	tickLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts  map[schema.EngineEventKind]uint64
	AuditTicks   uint64
	RiskRefusals uint64
	ExecSheds    uint64
	EventErrors  uint64
	TickLatency  LatencySnapshot
}

// New creates an empty metrics collector.
func New() *Metrics {
	return &Metrics{}
}

// CountEvent increments the processed-event counter for the kind.
func (m *Metrics) CountEvent(kind schema.EngineEventKind) {
	if m == nil || int(kind) > maxEventKind {
		return
	}
	atomic.AddUint64(&m.eventCounts[kind], 1)
}

// CountAuditTick increments the emitted-tick counter.
func (m *Metrics) CountAuditTick() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.auditTicks, 1)
}

// CountRiskRefusals adds refused proposals.
func (m *Metrics) CountRiskRefusals(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.riskRefusals, uint64(n))
}

// CountExecShed increments the backpressure-shed counter.
func (m *Metrics) CountExecShed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.execSheds, 1)
}

// CountEventErrors adds captured per-event errors.
func (m *Metrics) CountEventErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.eventErrors, uint64(n))
}

// ObserveTickLatency records one event-processing duration.
func (m *Metrics) ObserveTickLatency(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.tickLatency.observe(uint64(d))
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		EventCounts:  make(map[schema.EngineEventKind]uint64, maxEventKind+1),
		AuditTicks:   atomic.LoadUint64(&m.auditTicks),
		RiskRefusals: atomic.LoadUint64(&m.riskRefusals),
		ExecSheds:    atomic.LoadUint64(&m.execSheds),
		EventErrors:  atomic.LoadUint64(&m.eventErrors),
		TickLatency:  m.tickLatency.snapshot(),
	}
	for kind := 0; kind <= maxEventKind; kind++ {
		if count := atomic.LoadUint64(&m.eventCounts[kind]); count > 0 {
			snap.EventCounts[schema.EngineEventKind(kind)] = count
		}
	}
	return snap
}

func (s *LatencyStats) observe(ns uint64) {
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.sum, ns)
	for {
		current := atomic.LoadUint64(&s.min)
		if current != 0 && ns >= current {
			break
		}
		if atomic.CompareAndSwapUint64(&s.min, current, ns) {
			break
		}
	}
	for {
		current := atomic.LoadUint64(&s.max)
		if ns <= current {
			break
		}
		if atomic.CompareAndSwapUint64(&s.max, current, ns) {
			break
		}
	}
}

func (s *LatencyStats) snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&s.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&s.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&s.min)),
		Max:   time.Duration(atomic.LoadUint64(&s.max)),
		Avg:   time.Duration(sum / count),
	}
}
