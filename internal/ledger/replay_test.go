package ledger

import (
	"testing"

	"main/internal/codec"
	"main/internal/schema"
)

func orderUpdateEvent(seq uint64, upd schema.OrderUpdate) (schema.EventHeader, []byte) {
	return schema.NewHeader(schema.EventOrderUpdate, 1, seq, 1, 1), codec.EncodeOrderUpdate(nil, upd)
}

func fillEvent(seq uint64, f schema.Fill) (schema.EventHeader, []byte) {
	return schema.NewHeader(schema.EventFill, 1, seq, 1, 1), codec.EncodeFill(nil, f)
}

func TestApplyEventRebuildsPositions(t *testing.T) {
	live := New()
	if err := live.RegisterOrder(1, 1, schema.OrderSideBuy, 10); err != nil {
		t.Fatalf("register order: %v", err)
	}
	if err := live.ApplyFill(fill(1, 1, schema.OrderSideBuy, 100, 10)); err != nil {
		t.Fatalf("apply fill: %v", err)
	}

	// replay the same history from audit events into a fresh ledger
	replayed := New()
	h, p := orderUpdateEvent(1, schema.OrderUpdate{
		OrderID: 1, InstrumentID: 1, Side: schema.OrderSideBuy,
		Status: schema.OrderStatusCreated, Qty: 10,
	})
	if err := replayed.ApplyEvent(h, p); err != nil {
		t.Fatalf("apply event: %v", err)
	}
	h, p = fillEvent(2, fill(1, 1, schema.OrderSideBuy, 100, 10))
	if err := replayed.ApplyEvent(h, p); err != nil {
		t.Fatalf("apply event: %v", err)
	}

	if err := CompareSnapshots(live.Persist(), replayed.Persist()); err != nil {
		t.Fatalf("replayed ledger diverged: %v", err)
	}
}

func TestApplyEventIgnoresNonLedgerTypes(t *testing.T) {
	l := New()
	header := schema.NewHeader(schema.EventMarketTick, 1, 1, 1, 1)
	payload := codec.EncodeMarketTick(nil, schema.MarketTick{InstrumentID: 1, Price: 100})
	if err := l.ApplyEvent(header, payload); err != nil {
		t.Fatalf("tick events must be ignored: %v", err)
	}
}

func TestApplyEventDuplicateCreateIsNoOp(t *testing.T) {
	l := New()
	header, payload := orderUpdateEvent(1, schema.OrderUpdate{
		OrderID: 1, InstrumentID: 1, Side: schema.OrderSideBuy,
		Status: schema.OrderStatusCreated, Qty: 10,
	})
	if err := l.ApplyEvent(header, payload); err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if err := l.ApplyEvent(header, payload); err != nil {
		t.Fatalf("replayed create must be idempotent: %v", err)
	}
}

func TestApplyEventRejectsTruncatedPayload(t *testing.T) {
	l := New()
	header := schema.NewHeader(schema.EventFill, 1, 1, 1, 1)
	if err := l.ApplyEvent(header, []byte{1, 2, 3}); err == nil {
		t.Fatal("truncated fill payload must fail")
	}
}
