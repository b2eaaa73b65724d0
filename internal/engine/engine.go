package engine

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/aggregate"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/order"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

const engineSource uint16 = 1

// Config tunes the coordinator.
type Config struct {
	// PipelineBuffer sizes each instrument's tick and signal channels.
	PipelineBuffer int
	// CooldownTick is how often idle pipelines poll executors for expired
	// cooldowns.
	CooldownTick time.Duration
}

// Engine wires the decision path together: feed events fan out to
// per-instrument pipelines, intents flow through the risk gate to the order
// manager, and every hop is published to the audit queue.
type Engine struct {
	cfg     Config
	runtime *ops.Runtime

	ledger  *ledger.Ledger
	breaker *risk.Breaker
	gate    *risk.Gate
	orders  *order.Manager
	adapter broker.Adapter

	auditQ  *bus.Queue
	metrics *obs.Metrics

	pipelines map[uint32]*pipeline
	seq       uint64
	orderID   uint64
	tripped   uint32

	wg sync.WaitGroup
}

// New builds an engine from the active configuration. The ledger may carry
// recovered state; pipelines always start cold from the next live tick.
func New(cfg Config, runtime *ops.Runtime, led *ledger.Ledger, adapter broker.Adapter, auditQ *bus.Queue, metrics *obs.Metrics) (*Engine, error) {
	if led == nil {
		led = ledger.New()
	}
	if metrics == nil {
		metrics = obs.NewMetrics()
	}

	breaker := risk.NewBreaker()
	e := &Engine{
		cfg:       cfg,
		runtime:   runtime,
		ledger:    led,
		breaker:   breaker,
		gate:      risk.NewGate(breaker),
		adapter:   adapter,
		auditQ:    auditQ,
		metrics:   metrics,
		orderID:   uint64(time.Now().UTC().UnixNano()),
		pipelines: make(map[uint32]*pipeline),
	}

	loaded := runtime.Load()
	e.orders = order.NewManager(loaded.Order, adapter, led, e.onOrderUpdate)

	if err := e.buildPipelines(loaded); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) buildPipelines(loaded ops.Loaded) error {
	type binding struct {
		spec ops.StrategySpec
		impl strategy.Strategy
	}
	perInstrument := make(map[uint32][]binding)
	for _, spec := range loaded.Strategies {
		impl, err := strategy.Build(spec.Name, spec.Params)
		if err != nil {
			return errors.Wrap(err, "build strategy").With("id", spec.ID)
		}
		for _, instrumentID := range spec.InstrumentIDs {
			perInstrument[instrumentID] = append(perInstrument[instrumentID], binding{spec: spec, impl: impl})
		}
	}

	for instrumentID, bindings := range perInstrument {
		executors := make([]*strategy.Executor, 0, len(bindings))
		for _, b := range bindings {
			executors = append(executors, strategy.NewExecutor(b.spec.ID, instrumentID, b.impl, b.spec.Executor))
		}
		agg := aggregate.New(instrumentID, loaded.Aggregate)
		e.pipelines[instrumentID] = newPipeline(instrumentID, agg, executors, e.cfg.PipelineBuffer)
	}
	return nil
}

// Run starts every pipeline and the fill loop, then blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	for _, p := range e.pipelines {
		p := p
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			p.run(ctx, e, e.cfg.CooldownTick)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runFills(ctx)
	}()

	<-ctx.Done()
	e.wg.Wait()
}

// OnTick routes a market tick: the ledger marks the price for unrealized P&L
// and risk notionals, the audit queue records it, and the owning pipeline
// gets it for aggregation. Never blocks.
func (e *Engine) OnTick(header schema.EventHeader, tick schema.MarketTick) {
	e.ledger.MarkPrice(tick.InstrumentID, tick.Price)
	obs.TicksTotal.WithLabelValues(obs.InstrumentLabel(tick.InstrumentID)).Inc()

	header.Seq = e.nextSeq()
	e.publish(header, codec.EncodeMarketTick(nil, tick))

	if p, ok := e.pipelines[tick.InstrumentID]; ok {
		p.offerTick(tick, e.metrics)
	}
}

// OnSignal routes a forecast signal to its pipeline and the audit queue.
func (e *Engine) OnSignal(sig schema.Signal) {
	now := time.Now().UTC().UnixNano()
	header := schema.NewHeader(schema.EventSignal, engineSource, e.nextSeq(), sig.TsGen, now)
	e.publish(header, codec.EncodeSignal(nil, sig))

	if p, ok := e.pipelines[sig.InstrumentID]; ok {
		p.offerSignal(sig, e.metrics)
	}
}

// processIntent runs one intent through admission and submission. Called from
// pipeline goroutines; the ledger snapshot and runtime load make the gate
// evaluation lock-free against fills.
func (e *Engine) processIntent(ctx context.Context, intent schema.OrderIntent) {
	loaded := e.runtime.Load()
	intent.OrderID = e.nextOrderID()

	now := time.Now().UTC().UnixNano()
	header := schema.NewHeader(schema.EventOrderIntent, engineSource, e.nextSeq(), intent.TsDecision, now)
	header.TraceID = intent.OrderID
	e.publish(header, codec.EncodeOrderIntent(nil, intent))
	obs.IntentsTotal.WithLabelValues(
		obs.InstrumentLabel(intent.InstrumentID),
		strconv.FormatUint(uint64(intent.StrategyID), 10),
	).Inc()

	gateStart := time.Now()
	view := e.ledger.Snapshot()
	adm := e.gate.Evaluate(intent, view, loaded.Limits)
	e.metrics.ObserveGateEval(time.Since(gateStart))
	e.metrics.ObserveAdmission(adm)
	e.observeBreaker()

	admTs := time.Now().UTC().UnixNano()
	admHeader := schema.NewHeader(schema.EventAdmission, engineSource, e.nextSeq(), admTs, admTs)
	admHeader.TraceID = intent.OrderID
	e.publish(admHeader, codec.EncodeAdmission(nil, adm))
	obs.AdmissionsTotal.WithLabelValues(verdictLabel(adm.Verdict), reasonLabel(adm.Reason)).Inc()

	if !adm.Admitted() {
		return
	}
	if !loaded.Features.EnableTrading {
		logs.Infof("trading disabled, intent %d admitted but not submitted", intent.OrderID)
		return
	}

	submitStart := time.Now()
	if _, err := e.orders.Submit(ctx, adm, intent); err != nil {
		logs.Errorf("order submit failed: order=%d err=%+v", intent.OrderID, err)
	}
	e.metrics.ObserveSubmit(time.Since(submitStart))
}

// runFills consumes the broker fill stream, applying each fill to the ledger
// through the order manager and recording it in the audit trail.
func (e *Engine) runFills(ctx context.Context) {
	fills := e.adapter.Fills()
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-fills:
			if !ok {
				return
			}
			if err := e.orders.OnFill(fill); err != nil {
				continue
			}
			now := time.Now().UTC().UnixNano()
			header := schema.NewHeader(schema.EventFill, engineSource, e.nextSeq(), fill.TsFill, now)
			header.TraceID = fill.OrderID
			e.publish(header, codec.EncodeFill(nil, fill))
			obs.FillsTotal.WithLabelValues(obs.InstrumentLabel(fill.InstrumentID)).Inc()
			e.observeBreaker()
		}
	}
}

// Reconcile replays broker state after a reconnect.
func (e *Engine) Reconcile(ctx context.Context) error {
	return e.orders.Reconcile(ctx)
}

// ResetBreaker clears a tripped circuit breaker and starts a fresh trading
// day. Explicit operator action only; nothing resets the breaker on a timer.
func (e *Engine) ResetBreaker() {
	e.ledger.ResetDailyPnL()
	e.breaker.Reset()
	atomic.StoreUint32(&e.tripped, 0)
	obs.BreakerTripped.Set(0)
	logs.Info("circuit breaker reset, daily pnl cleared")
}

// Breaker exposes the shared circuit breaker.
func (e *Engine) Breaker() *risk.Breaker {
	return e.breaker
}

// Orders exposes the order manager for ops surfaces.
func (e *Engine) Orders() *order.Manager {
	return e.orders
}

// Ledger exposes the risk ledger for snapshots.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

func (e *Engine) onOrderUpdate(upd schema.OrderUpdate) {
	header := schema.NewHeader(schema.EventOrderUpdate, engineSource, e.nextSeq(), upd.TsUpdate, upd.TsUpdate)
	header.TraceID = upd.OrderID
	e.publish(header, codec.EncodeOrderUpdate(nil, upd))
	obs.OrdersTotal.WithLabelValues(obs.InstrumentLabel(upd.InstrumentID), statusLabel(upd.Status)).Inc()
}

func (e *Engine) observeBreaker() {
	if e.breaker.Tripped() {
		if atomic.CompareAndSwapUint32(&e.tripped, 0, 1) {
			e.metrics.IncBreakerTrip()
			obs.BreakerTripped.Set(1)
			logs.Error("circuit breaker tripped, all intents rejected until reset")
		}
	}
}

func (e *Engine) publish(header schema.EventHeader, payload []byte) {
	if !e.runtime.Load().Features.EnableAudit {
		return
	}
	err := e.auditQ.TryPublish(bus.Event{Header: header, Payload: payload})
	if err != nil {
		switch {
		case errors.Is(err, bus.ErrQueueFull):
			e.metrics.IncQueueDrop()
		case errors.Is(err, bus.ErrQueueClosed):
			e.metrics.IncQueueClosed()
		}
	}
}

func (e *Engine) nextSeq() uint64 {
	return atomic.AddUint64(&e.seq, 1)
}

// nextOrderID hands out order ids, which double as audit trace ids. The clock
// seed keeps ids unique across restarts.
func (e *Engine) nextOrderID() uint64 {
	return atomic.AddUint64(&e.orderID, 1)
}

func verdictLabel(v schema.Verdict) string {
	switch v {
	case schema.VerdictAdmit:
		return "admit"
	case schema.VerdictClip:
		return "clip"
	case schema.VerdictReject:
		return "reject"
	default:
		return "unknown"
	}
}

func reasonLabel(r schema.AdmissionReason) string {
	switch r {
	case schema.AdmissionReasonNone:
		return "none"
	case schema.AdmissionReasonPositionCap:
		return "position_cap"
	case schema.AdmissionReasonInstrumentNotional:
		return "instrument_notional"
	case schema.AdmissionReasonPortfolioNotional:
		return "portfolio_notional"
	case schema.AdmissionReasonCircuitBreaker:
		return "circuit_breaker"
	default:
		return "unknown"
	}
}

func statusLabel(s schema.OrderStatus) string {
	switch s {
	case schema.OrderStatusCreated:
		return "created"
	case schema.OrderStatusSubmitted:
		return "submitted"
	case schema.OrderStatusPartiallyFilled:
		return "partially_filled"
	case schema.OrderStatusFilled:
		return "filled"
	case schema.OrderStatusCancelled:
		return "cancelled"
	case schema.OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
