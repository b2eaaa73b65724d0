package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
)

func testLoaded(t *testing.T) ops.Loaded {
	t.Helper()
	scale := schema.ScaleSpec{PriceScale: 8, QuantityScale: 8, NotionalScale: 8, FeeScale: 8}
	loaded, err := ops.Resolve(ops.FileConfig{
		Registry: ops.RegistryConfig{
			Instruments: []ops.InstrumentConfig{{Name: "TEST-USD", Scale: scale}},
		},
		Risk: ops.RiskConfig{
			Version:              1,
			MaxPortfolioNotional: 1_000_000_000,
			MaxDailyLoss:         1_000_000,
			PerInstrument: []ops.InstrumentRiskConfig{{
				Instrument:  "TEST-USD",
				MaxPosition: 100,
				MaxNotional: 100_000_000,
			}},
		},
		Strategies: []ops.StrategyConfig{{
			ID:          1,
			Name:        "momentum",
			Instruments: []string{"TEST-USD"},
			MaxPosition: 100,
			CooldownMs:  50,
		}},
		Aggregate: ops.AggregateConfig{WindowMs: 5000, TickStalenessMs: 5000},
	})
	require.NoError(t, err)
	return loaded
}

func newTestEngine(t *testing.T, loaded ops.Loaded) (*Engine, *broker.Sim, *bus.Queue) {
	t.Helper()
	sim := broker.NewSim(broker.SimConfig{})
	auditQ := bus.NewQueue(1024)
	eng, err := New(Config{CooldownTick: 5 * time.Millisecond}, ops.NewRuntime(loaded), nil, sim, auditQ, obs.NewMetrics())
	require.NoError(t, err)
	return eng, sim, auditQ
}

func testIntent(qty schema.Quantity) schema.OrderIntent {
	return schema.OrderIntent{
		StrategyID:   1,
		InstrumentID: 1,
		Side:         schema.OrderSideBuy,
		Price:        100,
		Qty:          qty,
		TsDecision:   time.Now().UTC().UnixNano(),
	}
}

func TestProcessIntentSubmitsAdmitted(t *testing.T) {
	eng, _, auditQ := newTestEngine(t, testLoaded(t))

	eng.processIntent(context.Background(), testIntent(50))

	orders := eng.Orders().NonTerminal()
	require.Len(t, orders, 1)
	assert.Equal(t, schema.OrderStatusSubmitted, orders[0].Status)
	assert.Equal(t, schema.Quantity(50), orders[0].Qty)
	assert.NotZero(t, orders[0].ID)

	// intent, admission, and both order transitions hit the audit queue
	types := drainTypes(auditQ)
	assert.Contains(t, types, schema.EventOrderIntent)
	assert.Contains(t, types, schema.EventAdmission)
	assert.Contains(t, types, schema.EventOrderUpdate)
}

func TestProcessIntentClipsToPositionCap(t *testing.T) {
	eng, _, _ := newTestEngine(t, testLoaded(t))

	eng.processIntent(context.Background(), testIntent(150))

	orders := eng.Orders().NonTerminal()
	require.Len(t, orders, 1)
	assert.Equal(t, schema.Quantity(100), orders[0].Qty)
}

func TestProcessIntentHonorsTradingFlag(t *testing.T) {
	loaded := testLoaded(t)
	loaded.Features.EnableTrading = false
	eng, _, _ := newTestEngine(t, loaded)

	eng.processIntent(context.Background(), testIntent(50))
	assert.Empty(t, eng.Orders().NonTerminal(), "admitted intent must not reach the broker when trading is off")
}

func TestTrippedBreakerBlocksSubmission(t *testing.T) {
	eng, _, _ := newTestEngine(t, testLoaded(t))
	eng.Breaker().Trip()

	eng.processIntent(context.Background(), testIntent(50))
	assert.Empty(t, eng.Orders().NonTerminal())

	eng.ResetBreaker()
	eng.processIntent(context.Background(), testIntent(50))
	assert.Len(t, eng.Orders().NonTerminal(), 1)
}

func TestBreakerTripHaltsAllPipelines(t *testing.T) {
	scale := schema.ScaleSpec{PriceScale: 8, QuantityScale: 8, NotionalScale: 8, FeeScale: 8}
	loaded, err := ops.Resolve(ops.FileConfig{
		Registry: ops.RegistryConfig{
			Instruments: []ops.InstrumentConfig{
				{Name: "TEST-USD", Scale: scale},
				{Name: "DEMO-USD", Scale: scale},
			},
		},
		Risk: ops.RiskConfig{
			Version:              1,
			MaxPortfolioNotional: 1_000_000_000,
			MaxDailyLoss:         1_000_000,
			PerInstrument: []ops.InstrumentRiskConfig{
				{Instrument: "TEST-USD", MaxPosition: 100, MaxNotional: 100_000_000},
				{Instrument: "DEMO-USD", MaxPosition: 100, MaxNotional: 100_000_000},
			},
		},
		Strategies: []ops.StrategyConfig{{
			ID:          1,
			Name:        "momentum",
			Instruments: []string{"TEST-USD", "DEMO-USD"},
			MaxPosition: 100,
			CooldownMs:  50,
		}},
		Aggregate: ops.AggregateConfig{WindowMs: 5000, TickStalenessMs: 5000},
	})
	require.NoError(t, err)
	eng, _, _ := newTestEngine(t, loaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	// one decision round per instrument, pushed from concurrent goroutines
	feed := func(score schema.Score) {
		var wg sync.WaitGroup
		for _, id := range []uint32{1, 2} {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				now := time.Now().UTC().UnixNano()
				header := schema.NewHeader(schema.EventMarketTick, 2, 0, now, now)
				eng.OnTick(header, schema.MarketTick{InstrumentID: id, Price: 100, Volume: 1, TsExchange: now})
				eng.OnSignal(schema.Signal{
					InstrumentID: id,
					ModelID:      1,
					Horizon:      1,
					Score:        score,
					Confidence:   schema.Confidence(schema.ConfidenceScale),
					TsGen:        now,
				})
			}()
		}
		wg.Wait()
	}
	submitted := func() int { return len(eng.Orders().NonTerminal()) }

	feed(schema.Score(schema.ConfidenceScale))
	require.Eventually(t, func() bool { return submitted() == 2 }, 2*time.Second, 5*time.Millisecond)

	// trip mid-stream; the reversal round reaches the gate in every pipeline
	// once cooldowns expire, and nothing may get through until the reset
	eng.Breaker().Trip()
	time.Sleep(100 * time.Millisecond)
	feed(schema.Score(-schema.ConfidenceScale))
	assert.Never(t, func() bool { return submitted() > 2 }, 300*time.Millisecond, 10*time.Millisecond)

	eng.ResetBreaker()
	time.Sleep(100 * time.Millisecond)
	feed(schema.Score(schema.ConfidenceScale))
	require.Eventually(t, func() bool { return submitted() == 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestOnTickMarksLedgerPrice(t *testing.T) {
	eng, _, auditQ := newTestEngine(t, testLoaded(t))

	now := time.Now().UTC().UnixNano()
	header := schema.NewHeader(schema.EventMarketTick, 2, 0, now, now)
	eng.OnTick(header, schema.MarketTick{InstrumentID: 1, Price: 123, Volume: 1, TsExchange: now})

	assert.Equal(t, schema.Price(123), eng.Ledger().Position(1).LastMark)
	types := drainTypes(auditQ)
	assert.Contains(t, types, schema.EventMarketTick)
}

func TestDecisionPathEndToEnd(t *testing.T) {
	eng, sim, _ := newTestEngine(t, testLoaded(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	now := time.Now().UTC().UnixNano()
	header := schema.NewHeader(schema.EventMarketTick, 2, 0, now, now)
	eng.OnTick(header, schema.MarketTick{InstrumentID: 1, Price: 100, Volume: 1, TsExchange: now})
	eng.OnSignal(schema.Signal{
		InstrumentID: 1,
		ModelID:      1,
		Horizon:      1,
		Score:        schema.Score(schema.ConfidenceScale),
		Confidence:   schema.Confidence(schema.ConfidenceScale),
		TsGen:        now,
	})

	// tick + full-score signal aggregate into an intent that the gate admits
	var orderID uint64
	require.Eventually(t, func() bool {
		orders := eng.Orders().NonTerminal()
		if len(orders) != 1 || orders[0].Status != schema.OrderStatusSubmitted {
			return false
		}
		orderID = orders[0].ID
		return true
	}, 2*time.Second, 5*time.Millisecond)

	// the venue fills; the fill loop feeds the ledger through the manager
	require.True(t, sim.FillRemaining(orderID, time.Now().UTC().UnixNano()))
	require.Eventually(t, func() bool {
		o, ok := eng.Orders().Order(orderID)
		return ok && o.Status == schema.OrderStatusFilled
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, schema.Quantity(100), eng.Ledger().Position(1).Qty)
}

func drainTypes(q *bus.Queue) []schema.EventType {
	var types []schema.EventType
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	q.Close()
	q.Run(ctx, func(e bus.Event) {
		types = append(types, e.Header.Type)
	})
	return types
}
