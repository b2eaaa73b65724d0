package strategy

import (
	"main/internal/aggregate"
	"main/internal/schema"
)

// Momentum sizes the position in the direction of the blended forecast,
// proportional to score strength.
type Momentum struct {
	// MaxPosition is the target at full score.
	MaxPosition schema.Quantity
	// EntryThreshold is the minimum absolute blended score (1e8 scale)
	// before any position is taken.
	EntryThreshold schema.Score
}

func (m Momentum) Name() string { return "momentum" }

func (m Momentum) Target(input aggregate.Input, state State) schema.Quantity {
	score := clampScore(blend(input.Signals))
	if abs64(score) < int64(m.EntryThreshold) {
		return 0
	}
	return schema.Quantity(int64(m.MaxPosition) * score / schema.ConfidenceScale)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
