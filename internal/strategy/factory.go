package strategy

import (
	"fmt"
	"strings"

	"main/internal/schema"
)

// Params expresses the tunable knobs shared by strategy constructors.
type Params struct {
	MaxPosition    schema.Quantity
	EntryThreshold schema.Score
}

// Build returns the strategy implementation registered under name. Strategies
// are swappable per strategy id; unknown names are an error so a config typo
// never silently trades a different model.
func Build(name string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "momentum":
		return Momentum{MaxPosition: params.MaxPosition, EntryThreshold: params.EntryThreshold}, nil
	case "meanrev", "meanreversion", "mean_reversion":
		return MeanReversion{MaxPosition: params.MaxPosition, EntryThreshold: params.EntryThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
}
