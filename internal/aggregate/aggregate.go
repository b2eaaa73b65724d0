package aggregate

import (
	"time"

	"main/internal/schema"
)

// Config controls the per-instrument aggregation window.
type Config struct {
	// Window is the span over which signals are considered simultaneously
	// valid for one decision.
	Window time.Duration
	// TickStaleness is the maximum age of the latest tick for a window to
	// count as complete.
	TickStaleness time.Duration
	// MaxSignals bounds the signal buffer; the oldest signal is dropped
	// when the bound is hit.
	MaxSignals int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 5 * time.Second
	}
	if c.TickStaleness <= 0 {
		c.TickStaleness = time.Second
	}
	if c.MaxSignals <= 0 {
		c.MaxSignals = 32
	}
	return c
}

// Input is one aggregated decision input. Instances are superseded by the
// next aggregation for the instrument, never mutated.
type Input struct {
	InstrumentID uint32
	Tick         schema.MarketTick
	Signals      []schema.Signal
	TsAgg        int64
}

type signalKey struct {
	modelID uint32
	horizon uint16
	tsGen   int64
}

// Aggregator merges forecast signals and the latest market tick for a single
// instrument. It is not safe for concurrent use; each instrument pipeline
// owns exactly one aggregator.
type Aggregator struct {
	cfg          Config
	instrumentID uint32

	tick    schema.MarketTick
	hasTick bool

	signals []schema.Signal
	seen    map[signalKey]struct{}

	// lastClosed is the generation-time boundary of the last fired window.
	// Signals at or before it arrive too late: a closed window never reopens.
	lastClosed int64
}

// New creates an aggregator for one instrument. After a restart the sequence
// resumes from the next live tick; no historical replay happens here.
func New(instrumentID uint32, cfg Config) *Aggregator {
	return &Aggregator{
		cfg:          cfg.withDefaults(),
		instrumentID: instrumentID,
		seen:         make(map[signalKey]struct{}),
	}
}

// OnTick ingests a market tick and reports whether it completed a window.
// Ticks older than the retained one are discarded; ordering from the source
// is best-effort only.
func (a *Aggregator) OnTick(tick schema.MarketTick, now int64) (Input, bool) {
	if tick.InstrumentID != a.instrumentID {
		return Input{}, false
	}
	if a.hasTick && tick.TsExchange < a.tick.TsExchange {
		return Input{}, false
	}
	a.tick = tick
	a.hasTick = true
	return a.tryAggregate(now)
}

// OnSignal ingests a forecast signal and reports whether it completed a
// window. Late signals (older than the window, or from a window that already
// fired) are dropped silently; aggregation is best-effort with missing data.
func (a *Aggregator) OnSignal(sig schema.Signal, now int64) (Input, bool) {
	if sig.InstrumentID != a.instrumentID {
		return Input{}, false
	}
	if sig.TsGen <= a.lastClosed {
		return Input{}, false
	}
	if sig.TsGen < now-a.cfg.Window.Nanoseconds() {
		return Input{}, false
	}
	key := signalKey{modelID: sig.ModelID, horizon: sig.Horizon, tsGen: sig.TsGen}
	if _, ok := a.seen[key]; ok {
		return Input{}, false
	}

	if len(a.signals) >= a.cfg.MaxSignals {
		drop := a.signals[0]
		a.signals = a.signals[1:]
		delete(a.seen, signalKey{modelID: drop.ModelID, horizon: drop.Horizon, tsGen: drop.TsGen})
	}
	a.signals = append(a.signals, sig)
	a.seen[key] = struct{}{}
	return a.tryAggregate(now)
}

// tryAggregate fires a new Input when the window is complete: at least one
// in-window signal and a tick fresher than the staleness threshold.
func (a *Aggregator) tryAggregate(now int64) (Input, bool) {
	a.prune(now)
	if !a.hasTick || len(a.signals) == 0 {
		return Input{}, false
	}
	if now-a.tick.TsExchange > a.cfg.TickStaleness.Nanoseconds() {
		return Input{}, false
	}

	out := Input{
		InstrumentID: a.instrumentID,
		Tick:         a.tick,
		Signals:      append([]schema.Signal(nil), a.signals...),
		TsAgg:        now,
	}
	// The boundary is the newest generation time in the window; signals may
	// have been appended out of order.
	for _, sig := range a.signals {
		if sig.TsGen > a.lastClosed {
			a.lastClosed = sig.TsGen
		}
	}
	return out, true
}

// prune drops signals that aged out of the window.
func (a *Aggregator) prune(now int64) {
	cutoff := now - a.cfg.Window.Nanoseconds()
	kept := a.signals[:0]
	for _, sig := range a.signals {
		if sig.TsGen < cutoff {
			delete(a.seen, signalKey{modelID: sig.ModelID, horizon: sig.Horizon, tsGen: sig.TsGen})
			continue
		}
		kept = append(kept, sig)
	}
	a.signals = kept
}
