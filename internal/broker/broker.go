package broker

import (
	"context"
	"errors"

	"main/internal/schema"
)

var (
	ErrRejected     = errors.New("broker: order rejected")
	ErrDisconnected = errors.New("broker: disconnected")
	ErrUnknownOrder = errors.New("broker: order not found")
)

// OrderRequest is the minimal order description a venue needs.
type OrderRequest struct {
	OrderID      uint64
	InstrumentID uint32
	Side         schema.OrderSide
	Price        schema.Price
	Qty          schema.Quantity
}

// OrderSnapshot is the broker's authoritative view of one order, fetched
// during reconciliation. Fills carries every fill the broker recorded; the
// ledger's idempotency key makes replaying them safe.
type OrderSnapshot struct {
	OrderID   uint64
	Status    schema.OrderStatus
	FilledQty schema.Quantity
	Fills     []schema.Fill
}

// Adapter is the contract a venue integration must satisfy. Submit and
// Cancel suspend on I/O and must honor ctx deadlines; Fills yields fill
// events until the adapter is closed.
type Adapter interface {
	Submit(ctx context.Context, req OrderRequest) error
	Cancel(ctx context.Context, orderID uint64) error
	OpenOrders(ctx context.Context) ([]OrderSnapshot, error)
	Fills() <-chan schema.Fill
}
