package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/ledger"
	"main/internal/schema"
)

var (
	ErrUnknownOrder    = errors.New("order: not found")
	ErrAlreadyTerminal = errors.New("order: not cancellable in current state")
	ErrNotAdmitted     = errors.New("order: intent was not admitted")
	ErrSubmitTimeout   = errors.New("order: broker submit timed out")
)

// Order is the manager's view of one order. Terminal states are final; a
// late fill after a cancel still updates FilledQty but never the status.
type Order struct {
	ID           uint64
	InstrumentID uint32
	StrategyID   uint32
	Side         schema.OrderSide
	Price        schema.Price
	Qty          schema.Quantity
	FilledQty    schema.Quantity
	Status       schema.OrderStatus
	TsSubmit     int64
	TsUpdate     int64
	// Flagged marks orders needing manual reconciliation after a ledger
	// rejection (overfill / unknown order).
	Flagged bool
}

// Config bounds the manager's broker I/O.
type Config struct {
	// SubmitTimeout is the per-call deadline for Submit and Cancel,
	// tied to the sub-100ms execution target.
	SubmitTimeout time.Duration
	// MaxRetries bounds submit retries after a timeout.
	MaxRetries int
	// RetryBackoff is the base delay between retries.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 100 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 10 * time.Millisecond
	}
	return c
}

// Manager converts admitted intents into broker orders, tracks their
// lifecycle and applies fills back to the risk ledger.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	adapter broker.Adapter
	ledger  *ledger.Ledger
	orders  map[uint64]*Order

	// onUpdate receives every order state transition for the audit sink.
	// Must not block.
	onUpdate func(schema.OrderUpdate)
}

// NewManager creates a manager bound to one broker adapter and the ledger.
func NewManager(cfg Config, adapter broker.Adapter, led *ledger.Ledger, onUpdate func(schema.OrderUpdate)) *Manager {
	if onUpdate == nil {
		onUpdate = func(schema.OrderUpdate) {}
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		adapter:  adapter,
		ledger:   led,
		orders:   make(map[uint64]*Order),
		onUpdate: onUpdate,
	}
}

// Submit creates an order from an admitted intent and hands it to the broker.
// The order starts in Created, moves to Submitted on acknowledgement, and to
// Rejected on immediate rejection or after the bounded retry budget is spent.
func (m *Manager) Submit(ctx context.Context, adm schema.Admission, intent schema.OrderIntent) (Order, error) {
	if !adm.Admitted() || adm.AdmittedQty <= 0 {
		return Order{}, ErrNotAdmitted
	}

	now := time.Now().UTC().UnixNano()
	o := &Order{
		ID:           intent.OrderID,
		InstrumentID: intent.InstrumentID,
		StrategyID:   intent.StrategyID,
		Side:         intent.Side,
		Price:        intent.Price,
		Qty:          adm.AdmittedQty,
		Status:       schema.OrderStatusCreated,
		TsSubmit:     now,
		TsUpdate:     now,
	}

	m.mu.Lock()
	if _, exists := m.orders[o.ID]; exists {
		m.mu.Unlock()
		return Order{}, ErrNotAdmitted
	}
	m.orders[o.ID] = o
	m.mu.Unlock()

	// The ledger must know the order before any fill can reference it.
	if err := m.ledger.RegisterOrder(o.ID, o.InstrumentID, o.Side, o.Qty); err != nil {
		m.mu.Lock()
		delete(m.orders, o.ID)
		m.mu.Unlock()
		return Order{}, err
	}
	m.emit(o)

	req := broker.OrderRequest{
		OrderID:      o.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Price:        o.Price,
		Qty:          o.Qty,
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.cfg.RetryBackoff * time.Duration(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return m.reject(o), ctx.Err()
			case <-timer.C:
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
		err := m.adapter.Submit(callCtx, req)
		cancel()

		switch {
		case err == nil:
			m.transition(o, schema.OrderStatusSubmitted)
			return m.snapshot(o), nil
		case errors.Is(err, broker.ErrRejected):
			return m.reject(o), broker.ErrRejected
		default:
			lastErr = err
			logs.Errorf("order submit attempt failed: order=%d attempt=%d err=%+v", o.ID, attempt, err)
		}
	}

	_ = lastErr
	return m.reject(o), ErrSubmitTimeout
}

// OnFill applies a fill to the ledger and advances the order state. Ledger
// rejections (overfill, unknown order) are fatal for this fill only: the
// order is flagged for manual reconciliation and the pipeline keeps running.
func (m *Manager) OnFill(fill schema.Fill) error {
	if err := m.ledger.ApplyFill(fill); err != nil {
		m.mu.Lock()
		if o, ok := m.orders[fill.OrderID]; ok {
			o.Flagged = true
		}
		m.mu.Unlock()
		logs.Errorf("fill rejected by ledger: order=%d seq=%d err=%+v", fill.OrderID, fill.Seq, err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[fill.OrderID]
	if !ok {
		return ErrUnknownOrder
	}
	if filled, ok := m.ledger.FilledQty(o.ID); ok {
		o.FilledQty = filled
	}
	if o.Status.Terminal() {
		// Late fill after cancel/reject: the quantity is recorded, the
		// terminal status stands.
		return nil
	}
	if o.FilledQty >= o.Qty {
		m.transitionLocked(o, schema.OrderStatusFilled)
	} else if o.FilledQty > 0 {
		m.transitionLocked(o, schema.OrderStatusPartiallyFilled)
	}
	return nil
}

// Cancel requests cancellation. Valid only from Submitted or PartiallyFilled.
// Best-effort against the broker: a fill racing the cancel is still honored
// when it arrives.
func (m *Manager) Cancel(ctx context.Context, orderID uint64) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownOrder
	}
	if o.Status != schema.OrderStatusSubmitted && o.Status != schema.OrderStatusPartiallyFilled {
		m.mu.Unlock()
		return ErrAlreadyTerminal
	}
	m.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
	err := m.adapter.Cancel(callCtx, orderID)
	cancel()
	if err != nil {
		return err
	}
	m.transition(o, schema.OrderStatusCancelled)
	return nil
}

// Run consumes the adapter's fill stream until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	fills := m.adapter.Fills()
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-fills:
			if !ok {
				return
			}
			_ = m.OnFill(fill)
		}
	}
}

// Reconcile re-fetches the authoritative state of every order after a
// reconnect and replays any fills not yet applied. The ledger's idempotency
// key guarantees nothing is double-applied.
func (m *Manager) Reconcile(ctx context.Context) error {
	snapshots, err := m.adapter.OpenOrders(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		m.mu.Lock()
		o, ok := m.orders[snap.OrderID]
		if !ok || o.Status.Terminal() {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		for _, fill := range snap.Fills {
			if err := m.OnFill(fill); err != nil {
				logs.Errorf("reconcile fill failed: order=%d seq=%d err=%+v", fill.OrderID, fill.Seq, err)
			}
		}

		if snap.Status == schema.OrderStatusCancelled || snap.Status == schema.OrderStatusRejected {
			m.mu.Lock()
			if o, ok := m.orders[snap.OrderID]; ok && !o.Status.Terminal() {
				m.transitionLocked(o, snap.Status)
			}
			m.mu.Unlock()
		}
	}
	return nil
}

// Order returns a copy of the tracked order.
func (m *Manager) Order(orderID uint64) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// NonTerminal returns copies of every order still in flight.
func (m *Manager) NonTerminal() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

func (m *Manager) reject(o *Order) Order {
	m.transition(o, schema.OrderStatusRejected)
	return m.snapshot(o)
}

func (m *Manager) snapshot(o *Order) Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *o
}

func (m *Manager) transition(o *Order, status schema.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(o, status)
}

func (m *Manager) transitionLocked(o *Order, status schema.OrderStatus) {
	if o.Status.Terminal() || o.Status == status {
		return
	}
	o.Status = status
	o.TsUpdate = time.Now().UTC().UnixNano()
	m.emitLocked(o)
}

func (m *Manager) emit(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(o)
}

func (m *Manager) emitLocked(o *Order) {
	m.onUpdate(schema.OrderUpdate{
		OrderID:      o.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Status:       o.Status,
		Price:        o.Price,
		Qty:          o.Qty,
		FilledQty:    o.FilledQty,
		TsUpdate:     o.TsUpdate,
	})
}
