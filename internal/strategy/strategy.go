package strategy

import (
	"main/internal/aggregate"
	"main/internal/schema"
)

// State is the per (strategy, instrument) mutable state. It is owned
// exclusively by the executor that created it and mutated only by its own
// decision step.
type State struct {
	// Target is the last committed target position.
	Target schema.Quantity
	// LastDecisionTs is when the last intent was emitted.
	LastDecisionTs int64
}

// Strategy is the single capability a strategy function provides: given an
// aggregated input and the current state, produce a target position.
// Implementations must be pure; all state lives in State.
type Strategy interface {
	Name() string
	Target(input aggregate.Input, state State) schema.Quantity
}

// blend collapses the in-window signals into one confidence-weighted score in
// Score units (1e8 scale).
func blend(signals []schema.Signal) int64 {
	var weighted, totalConf int64
	for _, sig := range signals {
		weighted += int64(sig.Score) * int64(sig.Confidence) / schema.ConfidenceScale
		totalConf += int64(sig.Confidence)
	}
	if totalConf == 0 {
		return 0
	}
	return weighted * schema.ConfidenceScale / totalConf
}

func clampScore(score int64) int64 {
	if score > schema.ConfidenceScale {
		return schema.ConfidenceScale
	}
	if score < -schema.ConfidenceScale {
		return -schema.ConfidenceScale
	}
	return score
}
