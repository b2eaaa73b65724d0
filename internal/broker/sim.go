package broker

import (
	"context"
	"sync"
	"time"

	"main/internal/schema"
)

// SimConfig controls the simulated venue.
type SimConfig struct {
	// AckLatency delays every Submit/Cancel acknowledgement.
	AckLatency time.Duration
	// RejectAll makes the venue reject every submission immediately.
	RejectAll bool
	// FillBuffer sizes the fill event channel.
	FillBuffer int
}

type simOrder struct {
	req       OrderRequest
	status    schema.OrderStatus
	filledQty schema.Quantity
	fillSeq   uint32
	fills     []schema.Fill
}

// Sim is an in-process broker adapter used by the paper trading command and
// the tests. Fills are injected by the caller; disconnects drop the fill
// stream while the venue keeps filling, which is exactly the reconciliation
// case the order manager must survive.
type Sim struct {
	mu        sync.Mutex
	cfg       SimConfig
	orders    map[uint64]*simOrder
	fills     chan schema.Fill
	connected bool
}

// NewSim creates a connected simulated venue.
func NewSim(cfg SimConfig) *Sim {
	if cfg.FillBuffer <= 0 {
		cfg.FillBuffer = 256
	}
	return &Sim{
		cfg:       cfg,
		orders:    make(map[uint64]*simOrder),
		fills:     make(chan schema.Fill, cfg.FillBuffer),
		connected: true,
	}
}

// Submit registers the order and acks or rejects it.
func (s *Sim) Submit(ctx context.Context, req OrderRequest) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrDisconnected
	}
	if s.cfg.RejectAll || req.Qty <= 0 {
		return ErrRejected
	}
	s.orders[req.OrderID] = &simOrder{req: req, status: schema.OrderStatusSubmitted}
	return nil
}

// Cancel marks a non-terminal order cancelled.
func (s *Sim) Cancel(ctx context.Context, orderID uint64) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrDisconnected
	}
	order, ok := s.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if order.status.Terminal() {
		return ErrUnknownOrder
	}
	order.status = schema.OrderStatusCancelled
	return nil
}

// OpenOrders returns the authoritative state of every order the venue knows,
// including its full fill history.
func (s *Sim) OpenOrders(ctx context.Context) ([]OrderSnapshot, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrDisconnected
	}
	out := make([]OrderSnapshot, 0, len(s.orders))
	for id, order := range s.orders {
		out = append(out, OrderSnapshot{
			OrderID:   id,
			Status:    order.status,
			FilledQty: order.filledQty,
			Fills:     append([]schema.Fill(nil), order.fills...),
		})
	}
	return out, nil
}

// Fills returns the fill event stream.
func (s *Sim) Fills() <-chan schema.Fill {
	return s.fills
}

// Fill records a (possibly partial) fill against an order. When the adapter
// is disconnected the fill still happens at the venue but is not delivered,
// so it can only be recovered through OpenOrders on reconnect.
func (s *Sim) Fill(orderID uint64, qty schema.Quantity, price schema.Price, ts int64) bool {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok || qty <= 0 {
		s.mu.Unlock()
		return false
	}
	if int64(order.filledQty)+int64(qty) > int64(order.req.Qty) {
		s.mu.Unlock()
		return false
	}
	order.fillSeq++
	order.filledQty += qty
	if order.filledQty == order.req.Qty {
		order.status = schema.OrderStatusFilled
	} else if order.status == schema.OrderStatusSubmitted {
		order.status = schema.OrderStatusPartiallyFilled
	}
	fill := schema.Fill{
		OrderID:      orderID,
		Seq:          order.fillSeq,
		InstrumentID: order.req.InstrumentID,
		Side:         order.req.Side,
		Price:        price,
		Qty:          qty,
		TsFill:       ts,
	}
	order.fills = append(order.fills, fill)
	deliver := s.connected
	s.mu.Unlock()

	if deliver {
		select {
		case s.fills <- fill:
		default:
			// Dropped delivery surfaces through reconciliation.
		}
	}
	return true
}

// FillRemaining fills whatever is left of an order at its request price.
func (s *Sim) FillRemaining(orderID uint64, ts int64) bool {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok || order.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	remaining := order.req.Qty - order.filledQty
	price := order.req.Price
	s.mu.Unlock()
	if remaining <= 0 {
		return false
	}
	return s.Fill(orderID, remaining, price, ts)
}

// Disconnect drops the connection; fills stop being delivered.
func (s *Sim) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// Reconnect restores the connection.
func (s *Sim) Reconnect() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
}

func (s *Sim) wait(ctx context.Context) error {
	if s.cfg.AckLatency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.AckLatency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
