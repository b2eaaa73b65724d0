package aggregate

import (
	"testing"
	"time"

	"main/internal/schema"
)

const baseTs = int64(1_000_000_000_000)

func tick(ts int64) schema.MarketTick {
	return schema.MarketTick{InstrumentID: 1, Price: 100, Volume: 1, TsExchange: ts}
}

func sig(modelID uint32, tsGen int64) schema.Signal {
	return schema.Signal{InstrumentID: 1, ModelID: modelID, Horizon: 1, Score: 50, TsGen: tsGen}
}

func TestWindowFiresOnTickAndSignal(t *testing.T) {
	a := New(1, Config{})
	now := baseTs

	if _, ok := a.OnSignal(sig(1, now-time.Millisecond.Nanoseconds()), now); ok {
		t.Fatal("signal alone must not fire")
	}
	in, ok := a.OnTick(tick(now), now)
	if !ok {
		t.Fatal("tick with a buffered signal must fire")
	}
	if in.InstrumentID != 1 || len(in.Signals) != 1 {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.Tick.TsExchange != now {
		t.Fatalf("input must carry the latest tick: %+v", in.Tick)
	}
}

func TestStaleTickDoesNotFire(t *testing.T) {
	a := New(1, Config{TickStaleness: time.Second})
	now := baseTs

	if _, ok := a.OnTick(tick(now), now); ok {
		t.Fatal("tick alone must not fire")
	}
	// by the time the signal arrives the tick is past the staleness bound
	later := now + 2*time.Second.Nanoseconds()
	if _, ok := a.OnSignal(sig(1, later), later); ok {
		t.Fatal("stale tick must block the window")
	}
	// a fresh tick completes it
	if _, ok := a.OnTick(tick(later), later); !ok {
		t.Fatal("fresh tick must complete the window")
	}
}

func TestClosedWindowNeverReopens(t *testing.T) {
	a := New(1, Config{})
	now := baseTs

	a.OnSignal(sig(1, now), now)
	if _, ok := a.OnTick(tick(now), now); !ok {
		t.Fatal("window should fire")
	}

	// a signal generated at or before the fired boundary is dropped
	if _, ok := a.OnSignal(sig(2, now), now+1); ok {
		t.Fatal("late signal for a closed window must be dropped")
	}
	if _, ok := a.OnSignal(sig(2, now-10), now+1); ok {
		t.Fatal("older signal for a closed window must be dropped")
	}
	// a newer signal opens the next window
	if _, ok := a.OnSignal(sig(2, now+5), now+5); !ok {
		t.Fatal("newer signal must open the next window")
	}
}

func TestClosedBoundaryIsNewestBufferedSignal(t *testing.T) {
	a := New(1, Config{})
	now := baseTs + 2*time.Second.Nanoseconds()

	// two in-window signals arrive out of order before the tick fires
	a.OnSignal(sig(1, baseTs+2*time.Second.Nanoseconds()), now)
	a.OnSignal(sig(2, baseTs+time.Second.Nanoseconds()), now)
	if _, ok := a.OnTick(tick(now), now); !ok {
		t.Fatal("window should fire")
	}

	// anything at or before the newest fired signal is part of the closed
	// window, even if it is newer than the last-appended one
	if _, ok := a.OnSignal(sig(3, baseTs+1500*time.Millisecond.Nanoseconds()), now); ok {
		t.Fatal("signal inside the closed window must be dropped")
	}
}

func TestDuplicateSignalDropped(t *testing.T) {
	a := New(1, Config{})
	now := baseTs
	s := sig(1, now)

	a.OnSignal(s, now)
	a.OnSignal(s, now+1)
	in, ok := a.OnTick(tick(now+1), now+1)
	if !ok {
		t.Fatal("window should fire")
	}
	if len(in.Signals) != 1 {
		t.Fatalf("duplicate must not be buffered twice: got %d signals", len(in.Signals))
	}
}

func TestOutOfOrderTickDiscarded(t *testing.T) {
	a := New(1, Config{})
	now := baseTs

	a.OnTick(tick(now), now)
	a.OnTick(tick(now-100), now) // stale exchange timestamp
	in, ok := a.OnSignal(sig(1, now), now)
	if !ok {
		t.Fatal("window should fire")
	}
	if in.Tick.TsExchange != now {
		t.Fatalf("older tick must not replace the retained one: got %d", in.Tick.TsExchange)
	}
}

func TestOutOfWindowSignalDropped(t *testing.T) {
	a := New(1, Config{Window: time.Second})
	now := baseTs
	a.OnTick(tick(now), now)
	if _, ok := a.OnSignal(sig(1, now-2*time.Second.Nanoseconds()), now); ok {
		t.Fatal("signal older than the window must be dropped")
	}
}

func TestMaxSignalsEvictsOldest(t *testing.T) {
	a := New(1, Config{MaxSignals: 2})
	now := baseTs

	a.OnSignal(sig(1, now), now)
	a.OnSignal(sig(2, now+1), now+1)
	a.OnSignal(sig(3, now+2), now+2) // evicts model 1

	in, ok := a.OnTick(tick(now+2), now+2)
	if !ok {
		t.Fatal("window should fire")
	}
	if len(in.Signals) != 2 {
		t.Fatalf("buffer bound violated: got %d signals", len(in.Signals))
	}
	for _, s := range in.Signals {
		if s.ModelID == 1 {
			t.Fatal("oldest signal should have been evicted")
		}
	}
}

func TestWrongInstrumentIgnored(t *testing.T) {
	a := New(1, Config{})
	now := baseTs
	other := schema.MarketTick{InstrumentID: 2, TsExchange: now}
	if _, ok := a.OnTick(other, now); ok {
		t.Fatal("tick for another instrument must be ignored")
	}
	if a.hasTick {
		t.Fatal("foreign tick must not be retained")
	}
}
