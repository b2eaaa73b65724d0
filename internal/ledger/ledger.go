package ledger

import (
	"errors"
	"sync"

	"main/internal/schema"
)

var (
	ErrUnknownOrder   = errors.New("ledger: fill references unknown order")
	ErrOverfill       = errors.New("ledger: cumulative fills exceed order quantity")
	ErrDuplicateOrder = errors.New("ledger: order already registered")
	ErrInvalidFill    = errors.New("ledger: invalid fill quantity")
)

// Position is the authoritative view of one instrument's holdings.
// Mutated only through ApplyFill and MarkPrice.
type Position struct {
	InstrumentID  uint32
	Qty           schema.Quantity
	AvgEntryPrice schema.Price
	RealizedPnL   schema.Notional
	UnrealizedPnL schema.Notional
	LastMark      schema.Price
}

type orderEntry struct {
	instrumentID uint32
	side         schema.OrderSide
	requested    schema.Quantity
	filled       schema.Quantity
}

type fillKey struct {
	orderID uint64
	seq     uint32
}

// Ledger is the single serialization point for fills across all instruments.
// The mutex scopes to one instrument's position update plus the portfolio
// aggregates; everything else reads snapshots.
type Ledger struct {
	mu          sync.Mutex
	positions   map[uint32]*Position
	orders      map[uint64]*orderEntry
	seenFills   map[fillKey]struct{}
	realizedDay schema.Notional
	fillCycle   uint64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[uint32]*Position),
		orders:    make(map[uint64]*orderEntry),
		seenFills: make(map[fillKey]struct{}),
	}
}

// RegisterOrder records an order's requested quantity so later fills can be
// bounded against it. Fills for unregistered orders are rejected.
func (l *Ledger) RegisterOrder(orderID uint64, instrumentID uint32, side schema.OrderSide, qty schema.Quantity) error {
	if qty <= 0 {
		return ErrInvalidFill
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.orders[orderID]; ok {
		return ErrDuplicateOrder
	}
	l.orders[orderID] = &orderEntry{
		instrumentID: instrumentID,
		side:         side,
		requested:    qty,
	}
	return nil
}

// ApplyFill applies a fill to the position of its instrument. Duplicate fills
// (same order id + sequence) are a no-op. A fill that would push cumulative
// filled quantity past the order's requested quantity is rejected whole.
func (l *Ledger) ApplyFill(fill schema.Fill) error {
	if fill.Qty <= 0 {
		return ErrInvalidFill
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := fillKey{orderID: fill.OrderID, seq: fill.Seq}
	if _, ok := l.seenFills[key]; ok {
		return nil
	}
	entry, ok := l.orders[fill.OrderID]
	if !ok {
		return ErrUnknownOrder
	}
	if int64(entry.filled)+int64(fill.Qty) > int64(entry.requested) {
		return ErrOverfill
	}

	entry.filled += fill.Qty
	l.seenFills[key] = struct{}{}

	pos := l.position(fill.InstrumentID)
	realized := applyToPosition(pos, fill.Side, fill.Price, fill.Qty)
	l.realizedDay += realized
	if pos.LastMark != 0 {
		pos.UnrealizedPnL = unrealized(pos)
	}
	l.fillCycle++
	return nil
}

// MarkPrice updates the mark price used for unrealized P&L.
func (l *Ledger) MarkPrice(instrumentID uint32, price schema.Price) {
	if price <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.position(instrumentID)
	pos.LastMark = price
	pos.UnrealizedPnL = unrealized(pos)
}

// Position returns a copy of the current position for an instrument.
func (l *Ledger) Position(instrumentID uint32) Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[instrumentID]; ok {
		return *pos
	}
	return Position{InstrumentID: instrumentID}
}

// FilledQty returns the cumulative filled quantity recorded for an order.
func (l *Ledger) FilledQty(orderID uint64) (schema.Quantity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.orders[orderID]
	if !ok {
		return 0, false
	}
	return entry.filled, true
}

// ResetDailyPnL zeroes the portfolio day P&L aggregate. Called together with
// the circuit breaker reset at session roll.
func (l *Ledger) ResetDailyPnL() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.realizedDay = 0
}

func (l *Ledger) position(instrumentID uint32) *Position {
	pos, ok := l.positions[instrumentID]
	if !ok {
		pos = &Position{InstrumentID: instrumentID}
		l.positions[instrumentID] = pos
	}
	return pos
}

// applyToPosition mutates pos with a fill and returns the realized P&L of any
// closed quantity. P&L is in raw price*quantity units, like Notional.
func applyToPosition(pos *Position, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.Notional {
	signed := int64(qty)
	if side == schema.OrderSideSell {
		signed = -signed
	}

	cur := int64(pos.Qty)
	next := cur + signed

	var realized int64
	switch {
	case cur == 0 || sameSign(cur, signed):
		// Extending the position: blend the entry price.
		total := abs(cur) + abs(signed)
		if total > 0 {
			pos.AvgEntryPrice = schema.Price((int64(pos.AvgEntryPrice)*abs(cur) + int64(price)*abs(signed)) / total)
		}
	case abs(signed) <= abs(cur):
		// Reducing: realize on the closed part, entry price unchanged.
		closed := abs(signed)
		realized = (int64(price) - int64(pos.AvgEntryPrice)) * closed
		if cur < 0 {
			realized = -realized
		}
	default:
		// Crossing zero: realize the whole old position, reopen at fill price.
		closed := abs(cur)
		realized = (int64(price) - int64(pos.AvgEntryPrice)) * closed
		if cur < 0 {
			realized = -realized
		}
		pos.AvgEntryPrice = price
	}

	pos.Qty = schema.Quantity(next)
	if next == 0 {
		pos.AvgEntryPrice = 0
	}
	pos.RealizedPnL += schema.Notional(realized)
	return schema.Notional(realized)
}

func unrealized(pos *Position) schema.Notional {
	if pos.Qty == 0 || pos.LastMark == 0 {
		return 0
	}
	return schema.Notional((int64(pos.LastMark) - int64(pos.AvgEntryPrice)) * int64(pos.Qty))
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
