package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func validConfig() FileConfig {
	scale := schema.ScaleSpec{PriceScale: 8, QuantityScale: 8, NotionalScale: 8, FeeScale: 8}
	return FileConfig{
		Registry: RegistryConfig{
			Instruments: []InstrumentConfig{
				{Name: "BTC-USD", Scale: scale},
				{Name: "ETH-USD", Scale: scale},
			},
		},
		Risk: RiskConfig{
			Version:              3,
			MaxPortfolioNotional: 1_000_000,
			MaxDailyLoss:         50_000,
			PerInstrument: []InstrumentRiskConfig{
				{Instrument: "BTC-USD", MaxPosition: 100, MaxNotional: 500_000},
			},
		},
		Strategies: []StrategyConfig{
			{ID: 1, Name: "momentum", Instruments: []string{"BTC-USD", "ETH-USD"}, MaxPosition: 100, CooldownMs: 500},
			{ID: 2, Name: "meanrev", Instruments: []string{"ETH-USD"}, MaxPosition: 50},
		},
		Aggregate: AggregateConfig{WindowMs: 3000, TickStalenessMs: 500, MaxSignals: 16},
	}
}

func TestResolveValidConfig(t *testing.T) {
	loaded, err := Resolve(validConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, loaded.Registry.Count())
	btcID, ok := loaded.Registry.InstrumentIDByName("BTC-USD")
	require.True(t, ok)

	assert.Equal(t, uint16(3), loaded.Limits.Version)
	inst := loaded.Limits.Instrument(uint32(btcID))
	assert.Equal(t, schema.Quantity(100), inst.MaxPosition)

	require.Len(t, loaded.Strategies, 2)
	assert.Len(t, loaded.Strategies[0].InstrumentIDs, 2)
	assert.Equal(t, 500*time.Millisecond, loaded.Strategies[0].Executor.Cooldown)

	assert.Equal(t, 3*time.Second, loaded.Aggregate.Window)
	assert.True(t, loaded.Features.EnableTrading)
	assert.True(t, loaded.Features.EnableAudit)
}

func TestResolveRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		desc   string
		mutate func(*FileConfig)
	}{
		{"no instruments", func(c *FileConfig) { c.Registry.Instruments = nil }},
		{"no strategies", func(c *FileConfig) { c.Strategies = nil }},
		{"zero strategy id", func(c *FileConfig) { c.Strategies[0].ID = 0 }},
		{"duplicate strategy id", func(c *FileConfig) { c.Strategies[1].ID = 1 }},
		{"unknown strategy name", func(c *FileConfig) { c.Strategies[0].Name = "arbitrage" }},
		{"strategy without instruments", func(c *FileConfig) { c.Strategies[0].Instruments = nil }},
		{"strategy with unknown instrument", func(c *FileConfig) { c.Strategies[0].Instruments = []string{"DOGE-USD"} }},
		{"risk limits for unknown instrument", func(c *FileConfig) { c.Risk.PerInstrument[0].Instrument = "DOGE-USD" }},
		{"negative instrument cap", func(c *FileConfig) { c.Risk.PerInstrument[0].MaxPosition = -1 }},
		{"negative portfolio cap", func(c *FileConfig) { c.Risk.MaxPortfolioNotional = -1 }},
		{"negative scale", func(c *FileConfig) { c.Registry.Instruments[0].Scale.PriceScale = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			_, err := Resolve(cfg)
			require.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}

func TestResolveFeatureFlagOverride(t *testing.T) {
	cfg := validConfig()
	off := false
	cfg.Features.EnableTrading = &off

	loaded, err := Resolve(cfg)
	require.NoError(t, err)
	assert.False(t, loaded.Features.EnableTrading)
	assert.True(t, loaded.Features.EnableAudit)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.json")
	raw := `{
  "registry": {"instruments": [{"name": "BTC-USD", "scale": {"priceScale": 8, "quantityScale": 8, "notionalScale": 8, "feeScale": 8}}]},
  "risk": {"version": 1, "maxPortfolioNotional": 1000000, "maxDailyLoss": 50000},
  "strategies": [{"id": 1, "name": "momentum", "instruments": ["BTC-USD"], "maxPosition": 100}]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Registry.Count())
	require.Len(t, loaded.Strategies, 1)
	assert.Equal(t, schema.Quantity(100), loaded.Strategies[0].Params.MaxPosition)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigInvalid)
}
