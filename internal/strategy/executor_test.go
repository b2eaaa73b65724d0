package strategy

import (
	"testing"
	"time"

	"main/internal/aggregate"
	"main/internal/schema"
)

func input(ts int64, score int64) aggregate.Input {
	return aggregate.Input{
		InstrumentID: 1,
		Tick:         schema.MarketTick{InstrumentID: 1, Price: 100, TsExchange: ts},
		Signals: []schema.Signal{{
			InstrumentID: 1,
			ModelID:      1,
			Horizon:      1,
			Score:        schema.Score(score),
			Confidence:   schema.Confidence(schema.ConfidenceScale),
			TsGen:        ts,
		}},
		TsAgg: ts,
	}
}

func newTestExecutor(cfg ExecutorConfig) *Executor {
	s := Momentum{MaxPosition: 100}
	return NewExecutor(1, 1, s, cfg)
}

func TestExecutorEmitsIntentFromTargetDelta(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{Cooldown: time.Second})
	now := int64(1_000_000_000_000)

	intent, ok := e.OnInput(input(now, schema.ConfidenceScale/2), now)
	if !ok {
		t.Fatal("expected an intent")
	}
	if intent.Side != schema.OrderSideBuy || intent.Qty != 50 {
		t.Fatalf("intent mismatch: %+v", intent)
	}
	if intent.OrderID != 0 {
		t.Fatalf("order id must be unassigned at decision time: %d", intent.OrderID)
	}
	if intent.Price != 100 {
		t.Fatalf("intent must carry the tick price: %d", intent.Price)
	}
	if e.State().Target != 50 {
		t.Fatalf("target not committed: %d", e.State().Target)
	}
}

func TestExecutorCooldownBuffersLatestOnly(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{Cooldown: time.Second})
	now := int64(1_000_000_000_000)

	if _, ok := e.OnInput(input(now, schema.ConfidenceScale), now); !ok {
		t.Fatal("expected first intent")
	}

	// both arrive inside the cooldown window; only the latest survives
	if _, ok := e.OnInput(input(now+1, schema.ConfidenceScale/4), now+1); ok {
		t.Fatal("cooldown must suppress intents")
	}
	if _, ok := e.OnInput(input(now+2, -schema.ConfidenceScale/2), now+2); ok {
		t.Fatal("cooldown must suppress intents")
	}

	after := now + time.Second.Nanoseconds()
	intent, ok := e.Tick(after)
	if !ok {
		t.Fatal("expected buffered input to be re-evaluated after cooldown")
	}
	// committed target 100, buffered score -1/2 targets -50: sell 150
	if intent.Side != schema.OrderSideSell || intent.Qty != 150 {
		t.Fatalf("intent mismatch: %+v", intent)
	}
}

func TestExecutorSkipsStaleBufferedInput(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{Cooldown: time.Second, StaleAfter: time.Second})
	now := int64(1_000_000_000_000)

	e.OnInput(input(now, schema.ConfidenceScale), now)
	e.OnInput(input(now+1, -schema.ConfidenceScale), now+1)

	// cooldown expired long ago; the buffered input aged out with it
	after := now + 5*time.Second.Nanoseconds()
	if _, ok := e.Tick(after); ok {
		t.Fatal("stale buffered input must be skipped")
	}
	if e.Phase() != PhaseIdle {
		t.Fatalf("executor must return to idle, got %d", e.Phase())
	}
}

func TestExecutorMinChangeSuppressesChurn(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{Cooldown: time.Millisecond, MinChange: 10})
	now := int64(1_000_000_000_000)

	if _, ok := e.OnInput(input(now, schema.ConfidenceScale), now); !ok {
		t.Fatal("expected first intent")
	}
	after := now + time.Second.Nanoseconds()
	// new target 95, committed 100: delta 5 <= MinChange
	if _, ok := e.OnInput(input(after, schema.ConfidenceScale*95/100), after); ok {
		t.Fatal("delta below MinChange must not emit")
	}
	if e.State().Target != 100 {
		t.Fatalf("suppressed decision must not move the target: %d", e.State().Target)
	}
}

func TestExecutorIgnoresForeignInstrument(t *testing.T) {
	e := newTestExecutor(ExecutorConfig{})
	now := int64(1_000_000_000_000)
	in := input(now, schema.ConfidenceScale)
	in.InstrumentID = 2
	if _, ok := e.OnInput(in, now); ok {
		t.Fatal("input for another instrument must be ignored")
	}
}

func TestMomentumEntryThreshold(t *testing.T) {
	m := Momentum{MaxPosition: 100, EntryThreshold: schema.Score(schema.ConfidenceScale / 2)}
	weak := input(0, schema.ConfidenceScale/4)
	if target := m.Target(weak, State{}); target != 0 {
		t.Fatalf("score below threshold must stay flat: %d", target)
	}
	strong := input(0, schema.ConfidenceScale*3/4)
	if target := m.Target(strong, State{}); target != 75 {
		t.Fatalf("target mismatch: got %d want 75", target)
	}
}

func TestMeanReversionFadesScore(t *testing.T) {
	m := MeanReversion{MaxPosition: 100}
	up := input(0, schema.ConfidenceScale/2)
	if target := m.Target(up, State{}); target != -50 {
		t.Fatalf("mean reversion must fade a positive score: got %d", target)
	}
}

func TestBuildStrategies(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "momentum", want: "momentum"},
		{name: "", want: "momentum"},
		{name: "MeanRev", want: "meanreversion"},
		{name: "mean_reversion", want: "meanreversion"},
		{name: "arbitrage", wantErr: true},
	}
	for _, tt := range tests {
		s, err := Build(tt.name, Params{MaxPosition: 10})
		if tt.wantErr {
			if err == nil {
				t.Fatalf("Build(%q) should fail", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Build(%q) failed: %v", tt.name, err)
		}
		if s.Name() != tt.want {
			t.Fatalf("Build(%q) name mismatch: got %s want %s", tt.name, s.Name(), tt.want)
		}
	}
}
