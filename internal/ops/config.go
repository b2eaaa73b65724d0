package ops

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"main/internal/aggregate"
	"main/internal/order"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

// ErrConfigInvalid marks a config that parsed but failed validation. Reloads
// keep the previous version when they see this.
var ErrConfigInvalid = errors.New("config invalid")

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry   RegistryConfig     `json:"registry"`
	Risk       RiskConfig         `json:"risk"`
	Strategies []StrategyConfig   `json:"strategies"`
	Aggregate  AggregateConfig    `json:"aggregate"`
	Order      OrderConfig        `json:"order"`
	Features   FeatureFlagsConfig `json:"features"`
}

// RegistryConfig defines instrument mappings.
type RegistryConfig struct {
	Instruments []InstrumentConfig `json:"instruments"`
}

// InstrumentConfig describes one instrument entry.
type InstrumentConfig struct {
	Name  string           `json:"name"`
	Scale schema.ScaleSpec `json:"scale"`
}

// RiskConfig describes the versioned limit set. Per-instrument caps are keyed
// by instrument name in the file and resolved to ids at load time.
type RiskConfig struct {
	Version              uint16                 `json:"version"`
	MaxPortfolioNotional schema.Notional        `json:"maxPortfolioNotional"`
	MaxDailyLoss         schema.Notional        `json:"maxDailyLoss"`
	PerInstrument        []InstrumentRiskConfig `json:"perInstrument"`
}

// InstrumentRiskConfig caps one instrument.
type InstrumentRiskConfig struct {
	Instrument  string          `json:"instrument"`
	MaxPosition schema.Quantity `json:"maxPosition"`
	MaxNotional schema.Notional `json:"maxNotional"`
}

// StrategyConfig binds a strategy implementation to instruments.
type StrategyConfig struct {
	ID             uint32          `json:"id"`
	Name           string          `json:"name"`
	Instruments    []string        `json:"instruments"`
	MaxPosition    schema.Quantity `json:"maxPosition"`
	EntryThreshold schema.Score    `json:"entryThreshold"`
	CooldownMs     int64           `json:"cooldownMs"`
	MinChange      schema.Quantity `json:"minChange"`
	StaleAfterMs   int64           `json:"staleAfterMs"`
}

// AggregateConfig tunes the signal aggregator.
type AggregateConfig struct {
	WindowMs        int64 `json:"windowMs"`
	TickStalenessMs int64 `json:"tickStalenessMs"`
	MaxSignals      int   `json:"maxSignals"`
}

// OrderConfig tunes the order manager's broker I/O.
type OrderConfig struct {
	SubmitTimeoutMs int64 `json:"submitTimeoutMs"`
	MaxRetries      int   `json:"maxRetries"`
	RetryBackoffMs  int64 `json:"retryBackoffMs"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableTrading *bool `json:"enableTrading"`
	EnableAudit   *bool `json:"enableAudit"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableTrading bool
	EnableAudit   bool
}

// StrategySpec is one resolved strategy binding.
type StrategySpec struct {
	ID            uint32
	Name          string
	InstrumentIDs []uint32
	Params        strategy.Params
	Executor      strategy.ExecutorConfig
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry   *schema.Registry
	Limits     risk.Limits
	Strategies []StrategySpec
	Aggregate  aggregate.Config
	Order      order.Config
	Features   FeatureFlags
}

// Load reads a JSON config file and resolves every section.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := sonic.ConfigStd.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and builds the runtime representation.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	limits, err := resolveLimits(cfg.Risk, registry)
	if err != nil {
		return Loaded{}, err
	}
	strategies, err := resolveStrategies(cfg.Strategies, registry)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Registry:   registry,
		Limits:     limits,
		Strategies: strategies,
		Aggregate: aggregate.Config{
			Window:        time.Duration(cfg.Aggregate.WindowMs) * time.Millisecond,
			TickStaleness: time.Duration(cfg.Aggregate.TickStalenessMs) * time.Millisecond,
			MaxSignals:    cfg.Aggregate.MaxSignals,
		},
		Order: order.Config{
			SubmitTimeout: time.Duration(cfg.Order.SubmitTimeoutMs) * time.Millisecond,
			MaxRetries:    cfg.Order.MaxRetries,
			RetryBackoff:  time.Duration(cfg.Order.RetryBackoffMs) * time.Millisecond,
		},
		Features: resolveFeatures(cfg.Features),
	}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("%w: no instruments", ErrConfigInvalid)
	}
	reg := schema.NewRegistry()
	for _, inst := range cfg.Instruments {
		if err := validateScale(inst.Scale); err != nil {
			return nil, fmt.Errorf("%w: instrument %s: %v", ErrConfigInvalid, inst.Name, err)
		}
		if _, err := reg.AddInstrument(inst.Name, inst.Scale); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}
	return reg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 || scale.FeeScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}

func resolveLimits(cfg RiskConfig, reg *schema.Registry) (risk.Limits, error) {
	if cfg.MaxPortfolioNotional < 0 || cfg.MaxDailyLoss < 0 {
		return risk.Limits{}, fmt.Errorf("%w: portfolio caps must be >= 0", ErrConfigInvalid)
	}
	limits := risk.Limits{
		Version:              cfg.Version,
		MaxPortfolioNotional: cfg.MaxPortfolioNotional,
		MaxDailyLoss:         cfg.MaxDailyLoss,
		PerInstrument:        make(map[uint32]risk.InstrumentLimits, len(cfg.PerInstrument)),
	}
	for _, entry := range cfg.PerInstrument {
		id, ok := reg.InstrumentIDByName(entry.Instrument)
		if !ok {
			return risk.Limits{}, fmt.Errorf("%w: risk limits for unknown instrument: %s", ErrConfigInvalid, entry.Instrument)
		}
		if entry.MaxPosition < 0 || entry.MaxNotional < 0 {
			return risk.Limits{}, fmt.Errorf("%w: caps for %s must be >= 0", ErrConfigInvalid, entry.Instrument)
		}
		limits.PerInstrument[uint32(id)] = risk.InstrumentLimits{
			MaxPosition: entry.MaxPosition,
			MaxNotional: entry.MaxNotional,
		}
	}
	return limits, nil
}

func resolveStrategies(cfgs []StrategyConfig, reg *schema.Registry) ([]StrategySpec, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%w: no strategies", ErrConfigInvalid)
	}
	seen := make(map[uint32]struct{}, len(cfgs))
	specs := make([]StrategySpec, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.ID == 0 {
			return nil, fmt.Errorf("%w: strategy id must be > 0", ErrConfigInvalid)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate strategy id: %d", ErrConfigInvalid, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}

		// Fail at load time, not on the first tick.
		if _, err := strategy.Build(cfg.Name, strategy.Params{}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		if len(cfg.Instruments) == 0 {
			return nil, fmt.Errorf("%w: strategy %d has no instruments", ErrConfigInvalid, cfg.ID)
		}

		ids := make([]uint32, 0, len(cfg.Instruments))
		for _, name := range cfg.Instruments {
			id, ok := reg.InstrumentIDByName(name)
			if !ok {
				return nil, fmt.Errorf("%w: strategy %d references unknown instrument: %s", ErrConfigInvalid, cfg.ID, name)
			}
			ids = append(ids, uint32(id))
		}
		specs = append(specs, StrategySpec{
			ID:            cfg.ID,
			Name:          cfg.Name,
			InstrumentIDs: ids,
			Params: strategy.Params{
				MaxPosition:    cfg.MaxPosition,
				EntryThreshold: cfg.EntryThreshold,
			},
			Executor: strategy.ExecutorConfig{
				Cooldown:   time.Duration(cfg.CooldownMs) * time.Millisecond,
				MinChange:  cfg.MinChange,
				StaleAfter: time.Duration(cfg.StaleAfterMs) * time.Millisecond,
			},
		})
	}
	return specs, nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableTrading: true,
		EnableAudit:   true,
	}
	if cfg.EnableTrading != nil {
		flags.EnableTrading = *cfg.EnableTrading
	}
	if cfg.EnableAudit != nil {
		flags.EnableAudit = *cfg.EnableAudit
	}
	return flags
}
