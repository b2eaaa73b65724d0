package engine

import (
	"context"
	"time"

	"main/internal/aggregate"
	"main/internal/obs"
	"main/internal/schema"
	"main/internal/strategy"
)

// pipeline owns the decision path for one instrument: aggregator and the
// executors of every strategy trading it. All state inside a pipeline is
// touched only by its own goroutine; instruments never contend with each
// other.
type pipeline struct {
	instrumentID uint32
	agg          *aggregate.Aggregator
	executors    []*strategy.Executor

	ticks   chan schema.MarketTick
	signals chan schema.Signal
}

func newPipeline(instrumentID uint32, agg *aggregate.Aggregator, executors []*strategy.Executor, buffer int) *pipeline {
	if buffer <= 0 {
		buffer = 256
	}
	return &pipeline{
		instrumentID: instrumentID,
		agg:          agg,
		executors:    executors,
		ticks:        make(chan schema.MarketTick, buffer),
		signals:      make(chan schema.Signal, buffer),
	}
}

// run drives the pipeline until ctx is done. The cooldown ticker flushes
// executor-buffered inputs when no fresh market data arrives to do it.
func (p *pipeline) run(ctx context.Context, e *Engine, cooldownTick time.Duration) {
	if cooldownTick <= 0 {
		cooldownTick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(cooldownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-p.ticks:
			now := time.Now().UTC().UnixNano()
			start := time.Now()
			if input, ok := p.agg.OnTick(tick, now); ok {
				p.dispatch(ctx, e, input, now, start)
			}
		case sig := <-p.signals:
			now := time.Now().UTC().UnixNano()
			start := time.Now()
			if input, ok := p.agg.OnSignal(sig, now); ok {
				p.dispatch(ctx, e, input, now, start)
			}
		case <-ticker.C:
			now := time.Now().UTC().UnixNano()
			for _, exec := range p.executors {
				if intent, ok := exec.Tick(now); ok {
					e.processIntent(ctx, intent)
				}
			}
		}
	}
}

func (p *pipeline) dispatch(ctx context.Context, e *Engine, input aggregate.Input, now int64, start time.Time) {
	for _, exec := range p.executors {
		if intent, ok := exec.OnInput(input, now); ok {
			e.metrics.ObserveDecision(time.Since(start))
			e.processIntent(ctx, intent)
		}
	}
}

// offerTick hands a tick to the pipeline without blocking.
func (p *pipeline) offerTick(tick schema.MarketTick, metrics *obs.Metrics) {
	select {
	case p.ticks <- tick:
	default:
		metrics.IncQueueDrop()
	}
}

// offerSignal hands a signal to the pipeline without blocking.
func (p *pipeline) offerSignal(sig schema.Signal, metrics *obs.Metrics) {
	select {
	case p.signals <- sig:
	default:
		metrics.IncQueueDrop()
	}
}
