package strategy

import (
	"main/internal/aggregate"
	"main/internal/schema"
)

// MeanReversion fades the blended forecast: a strong positive score is read
// as an overextension and sized short, and vice versa.
type MeanReversion struct {
	MaxPosition    schema.Quantity
	EntryThreshold schema.Score
}

func (m MeanReversion) Name() string { return "meanreversion" }

func (m MeanReversion) Target(input aggregate.Input, state State) schema.Quantity {
	score := clampScore(blend(input.Signals))
	if abs64(score) < int64(m.EntryThreshold) {
		return 0
	}
	return schema.Quantity(-int64(m.MaxPosition) * score / schema.ConfidenceScale)
}
