package feed

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Generator produces synthetic ticks for every instrument in the registry.
// The walk is deterministic so paper trading runs are reproducible.
type Generator struct {
	instruments []schema.Instrument
	basePrice   int64
	baseVolume  int64
	drift       int64
	swing       int64
	index       int
	step        int64
}

// NewGenerator creates a generator over all registered instruments.
func NewGenerator(reg *schema.Registry, basePrice, baseVolume, drift, swing int64) (*Generator, error) {
	if reg == nil || reg.Count() == 0 {
		return nil, errors.New("registry has no instruments")
	}
	instruments := make([]schema.Instrument, 0, reg.Count())
	for i := 0; i < reg.Count(); i++ {
		inst, ok := reg.At(i)
		if !ok {
			continue
		}
		instruments = append(instruments, inst)
	}
	if baseVolume <= 0 {
		baseVolume = 1
	}
	if swing <= 0 {
		swing = 1
	}
	return &Generator{
		instruments: instruments,
		basePrice:   basePrice,
		baseVolume:  baseVolume,
		drift:       drift,
		swing:       swing,
	}, nil
}

// Next produces the next tick in round-robin instrument order.
func (g *Generator) Next(now time.Time) (schema.EventHeader, schema.MarketTick) {
	inst := g.instruments[g.index]
	g.index = (g.index + 1) % len(g.instruments)
	if g.index == 0 {
		g.step++
	}

	// Sawtooth around a drifting base: exercises both strategy directions
	// without any randomness.
	phase := g.step % (4 * g.swing)
	offset := phase
	if phase > 2*g.swing {
		offset = 4*g.swing - phase
	}
	price := g.basePrice + g.drift*g.step + offset - g.swing

	ts := now.UnixNano()
	header := schema.NewHeader(schema.EventMarketTick, SourceSim, uint64(g.step), ts, ts)
	return header, schema.MarketTick{
		InstrumentID: uint32(inst.ID),
		Price:        schema.Price(price),
		Volume:       schema.Quantity(g.baseVolume),
		TsExchange:   ts,
	}
}

// SimSource drives a Generator on a fixed interval.
type SimSource struct {
	gen      *Generator
	interval time.Duration
	done     chan struct{}
}

// NewSimSource creates a tick source emitting one tick per interval.
func NewSimSource(gen *Generator, interval time.Duration) *SimSource {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &SimSource{gen: gen, interval: interval, done: make(chan struct{})}
}

// Run emits ticks until ctx is done or Close is called.
func (s *SimSource) Run(ctx context.Context, emit Emit) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case now := <-ticker.C:
			header, tick := s.gen.Next(now.UTC())
			emit(header, tick)
		}
	}
}

// Close stops the source.
func (s *SimSource) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
		logs.Info("sim tick source closed")
	}
}
