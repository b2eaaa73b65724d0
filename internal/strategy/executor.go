package strategy

import (
	"time"

	"main/internal/aggregate"
	"main/internal/schema"
)

// Phase is the executor state machine phase.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseEvaluating
	PhaseCooldown
)

// ExecutorConfig controls decision pacing for one (strategy, instrument).
type ExecutorConfig struct {
	// Cooldown is how long the executor stays quiet after emitting an
	// intent. Inputs arriving during cooldown are buffered latest-only.
	Cooldown time.Duration
	// MinChange is the minimum target delta before an intent is emitted.
	MinChange schema.Quantity
	// StaleAfter bounds how old a buffered input may be when cooldown
	// expires; older inputs are skipped silently.
	StaleAfter time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Cooldown <= 0 {
		c.Cooldown = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * c.Cooldown
	}
	return c
}

// Executor runs the Idle → Evaluating → Cooldown → Idle state machine for one
// (strategy, instrument) pair. It emits at most one intent per cooldown
// window regardless of how many inputs arrive. Not safe for concurrent use;
// every pair owns its own executor and they never share state.
type Executor struct {
	cfg          ExecutorConfig
	strategy     Strategy
	strategyID   uint32
	instrumentID uint32

	phase         Phase
	state         State
	cooldownUntil int64
	pending       *aggregate.Input
}

// NewExecutor creates an executor in Idle with a flat committed target.
func NewExecutor(strategyID, instrumentID uint32, s Strategy, cfg ExecutorConfig) *Executor {
	return &Executor{
		cfg:          cfg.withDefaults(),
		strategy:     s,
		strategyID:   strategyID,
		instrumentID: instrumentID,
	}
}

// Phase returns the current state machine phase.
func (e *Executor) Phase() Phase {
	if e.phase == PhaseCooldown {
		return PhaseCooldown
	}
	return PhaseIdle
}

// State returns a copy of the committed strategy state.
func (e *Executor) State() State {
	return e.state
}

// OnInput feeds one aggregated input into the state machine. During cooldown
// the input replaces any previously buffered one; once cooldown expires the
// buffered input is re-evaluated exactly once.
func (e *Executor) OnInput(input aggregate.Input, now int64) (schema.OrderIntent, bool) {
	if input.InstrumentID != e.instrumentID {
		return schema.OrderIntent{}, false
	}
	if e.phase == PhaseCooldown {
		if now < e.cooldownUntil {
			in := input
			e.pending = &in
			return schema.OrderIntent{}, false
		}
		e.phase = PhaseIdle
		e.pending = nil
	}
	return e.evaluate(input, now)
}

// Tick drives cooldown expiry when no new input arrives. It re-evaluates the
// buffered input if one exists and is still fresh.
func (e *Executor) Tick(now int64) (schema.OrderIntent, bool) {
	if e.phase != PhaseCooldown || now < e.cooldownUntil {
		return schema.OrderIntent{}, false
	}
	e.phase = PhaseIdle
	pending := e.pending
	e.pending = nil
	if pending == nil {
		return schema.OrderIntent{}, false
	}
	if now-pending.TsAgg > e.cfg.StaleAfter.Nanoseconds() {
		// Stale buffered input: skip the cycle, no decision.
		return schema.OrderIntent{}, false
	}
	return e.evaluate(*pending, now)
}

func (e *Executor) evaluate(input aggregate.Input, now int64) (schema.OrderIntent, bool) {
	e.phase = PhaseEvaluating
	target := e.strategy.Target(input, e.state)
	delta := int64(target) - int64(e.state.Target)
	if absDelta(delta) <= int64(e.cfg.MinChange) {
		e.phase = PhaseIdle
		return schema.OrderIntent{}, false
	}

	side := schema.OrderSideBuy
	qty := delta
	if delta < 0 {
		side = schema.OrderSideSell
		qty = -delta
	}

	e.state.Target = target
	e.state.LastDecisionTs = now
	e.phase = PhaseCooldown
	e.cooldownUntil = now + e.cfg.Cooldown.Nanoseconds()

	return schema.OrderIntent{
		StrategyID:   e.strategyID,
		InstrumentID: e.instrumentID,
		Side:         side,
		Price:        input.Tick.Price,
		Qty:          schema.Quantity(qty),
		TsDecision:   now,
	}, true
}

func absDelta(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
