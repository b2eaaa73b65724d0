package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"main/internal/schema"
)

// PositionView is one instrument's entry in a point-in-time view.
type PositionView struct {
	Qty      schema.Quantity
	LastMark schema.Price
	Notional schema.Notional
}

// View is a point-in-time consistent read of positions and exposures. Risk
// evaluations read a View and never hold the ledger lock; staleness is
// bounded by one fill-application cycle.
type View struct {
	FillCycle         uint64
	RealizedDayPnL    schema.Notional
	PortfolioNotional schema.Notional
	Positions         map[uint32]PositionView
}

// Position returns the view entry for an instrument, zero if absent.
func (v View) Position(instrumentID uint32) PositionView {
	return v.Positions[instrumentID]
}

// Snapshot builds a consistent view under the ledger lock. The copy is O(open
// positions) so fill application for unrelated instruments is blocked only
// briefly.
func (l *Ledger) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	view := View{
		FillCycle:      l.fillCycle,
		RealizedDayPnL: l.realizedDay,
		Positions:      make(map[uint32]PositionView, len(l.positions)),
	}
	for id, pos := range l.positions {
		mark := pos.LastMark
		if mark == 0 {
			mark = pos.AvgEntryPrice
		}
		notional := schema.Notional(abs(int64(mark) * int64(pos.Qty)))
		view.Positions[id] = PositionView{
			Qty:      pos.Qty,
			LastMark: mark,
			Notional: notional,
		}
		view.PortfolioNotional += notional
	}
	return view
}

// PersistedSnapshot is the on-disk snapshot layout.
type PersistedSnapshot struct {
	Timestamp int64           `json:"timestamp"`
	FillCycle uint64          `json:"fillCycle"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single instrument position entry.
type PositionEntry struct {
	InstrumentID uint32          `json:"instrumentId"`
	Qty          schema.Quantity `json:"qty"`
	AvgEntry     schema.Price    `json:"avgEntry"`
	RealizedPnL  schema.Notional `json:"realizedPnl"`
}

// Persist builds a durable snapshot of current positions.
func (l *Ledger) Persist() PersistedSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]PositionEntry, 0, len(l.positions))
	for id, pos := range l.positions {
		entries = append(entries, PositionEntry{
			InstrumentID: id,
			Qty:          pos.Qty,
			AvgEntry:     pos.AvgEntryPrice,
			RealizedPnL:  pos.RealizedPnL,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].InstrumentID < entries[j].InstrumentID
	})
	return PersistedSnapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		FillCycle: l.fillCycle,
		Positions: entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot PersistedSnapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (PersistedSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PersistedSnapshot{}, err
	}
	var snap PersistedSnapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return PersistedSnapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same positions.
func CompareSnapshots(expected, actual PersistedSnapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[uint32]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.InstrumentID] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.InstrumentID]
		if !ok {
			return fmt.Errorf("snapshot missing instrument: %d", entry.InstrumentID)
		}
		if want.Qty != entry.Qty {
			return fmt.Errorf("snapshot qty mismatch: instrument=%d expected=%d actual=%d", entry.InstrumentID, want.Qty, entry.Qty)
		}
	}
	return nil
}
