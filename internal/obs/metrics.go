package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxEventType       = int(schema.EventFill)
	maxAdmissionReason = int(schema.AdmissionReasonCircuitBreaker)
	maxVerdict         = int(schema.VerdictReject)
)

// Metrics collects hot-path counters and latency stats. All updates are
// atomic; nothing here allocates after construction.
type Metrics struct {
	eventCounts   [maxEventType + 1]uint64
	reasonCounts  [maxAdmissionReason + 1]uint64
	verdictCounts [maxVerdict + 1]uint64
	queueDrops    uint64
	queueClosed   uint64
	breakerTrips  uint64

	eventLatency    LatencyStats
	decisionLatency LatencyStats
	gateLatency     LatencyStats
	submitLatency   LatencyStats
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
	EventCounts     map[schema.EventType]uint64
	ReasonCounts    map[schema.AdmissionReason]uint64
	VerdictCounts   map[schema.Verdict]uint64
	QueueDrops      uint64
	QueueClosed     uint64
	BreakerTrips    uint64
	EventLatency    LatencySnapshot
	DecisionLatency LatencySnapshot
	GateLatency     LatencySnapshot
	SubmitLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent increments counters and tracks event latency when timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveAdmission increments the verdict and reason counters.
func (m *Metrics) ObserveAdmission(adm schema.Admission) {
	if m == nil {
		return
	}
	if idx := int(adm.Verdict); idx >= 0 && idx < len(m.verdictCounts) {
		atomic.AddUint64(&m.verdictCounts[idx], 1)
	}
	if idx := int(adm.Reason); idx > 0 && idx < len(m.reasonCounts) {
		atomic.AddUint64(&m.reasonCounts[idx], 1)
	}
}

// IncQueueDrop records an audit queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// IncBreakerTrip records a circuit breaker trip.
func (m *Metrics) IncBreakerTrip() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.breakerTrips, 1)
}

// ObserveDecision measures tick-to-intent latency.
func (m *Metrics) ObserveDecision(d time.Duration) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(d)
}

// ObserveGateEval measures risk gate evaluation latency.
func (m *Metrics) ObserveGateEval(d time.Duration) {
	if m == nil {
		return
	}
	m.gateLatency.Observe(d)
}

// ObserveSubmit measures intent-to-broker-ack latency.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	reasonCounts := make(map[schema.AdmissionReason]uint64)
	for i := range m.reasonCounts {
		if v := atomic.LoadUint64(&m.reasonCounts[i]); v > 0 {
			reasonCounts[schema.AdmissionReason(i)] = v
		}
	}
	verdictCounts := make(map[schema.Verdict]uint64)
	for i := range m.verdictCounts {
		if v := atomic.LoadUint64(&m.verdictCounts[i]); v > 0 {
			verdictCounts[schema.Verdict(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		ReasonCounts:    reasonCounts,
		VerdictCounts:   verdictCounts,
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		QueueClosed:     atomic.LoadUint64(&m.queueClosed),
		BreakerTrips:    atomic.LoadUint64(&m.breakerTrips),
		EventLatency:    m.eventLatency.Snapshot(),
		DecisionLatency: m.decisionLatency.Snapshot(),
		GateLatency:     m.gateLatency.Snapshot(),
		SubmitLatency:   m.submitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
