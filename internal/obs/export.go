package obs

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_ticks_total", Help: "Count of market ticks processed"},
		[]string{"instrument"},
	)
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_intents_total", Help: "Order intents emitted by strategies"},
		[]string{"instrument", "strategy"},
	)
	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_admissions_total", Help: "Risk gate verdicts"},
		[]string{"verdict", "reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_orders_total", Help: "Order state transitions"},
		[]string{"instrument", "status"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_fills_total", Help: "Fills applied to the ledger"},
		[]string{"instrument"},
	)
	BreakerTripped = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_breaker_tripped", Help: "1 while the circuit breaker is tripped"},
	)
	DecisionLatencyAvg = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_decision_latency_avg_ns", Help: "Average tick-to-intent latency"},
	)
	SubmitLatencyAvg = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_submit_latency_avg_ns", Help: "Average intent-to-ack latency"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, IntentsTotal, AdmissionsTotal, OrdersTotal, FillsTotal,
		BreakerTripped, DecisionLatencyAvg, SubmitLatencyAvg,
	)
}

// InstrumentLabel formats an instrument id for metric labels.
func InstrumentLabel(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// SyncSnapshot pushes the internal latency stats into the exported gauges.
// Called periodically; the counters are incremented inline on the pipeline.
func SyncSnapshot(s Snapshot) {
	DecisionLatencyAvg.Set(float64(s.DecisionLatency.Avg / time.Nanosecond))
	SubmitLatencyAvg.Set(float64(s.SubmitLatency.Avg / time.Nanosecond))
}
