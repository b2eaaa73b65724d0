package ledger

import (
	"errors"
	"fmt"

	"main/internal/codec"
	"main/internal/schema"
)

// ApplyEvent replays one audit event into the ledger. Order creation and fill
// events are sufficient to rebuild every position; all other event types are
// ignored. Replaying an audit log into a fresh ledger must reproduce the
// positions the live ledger held when the log was written.
func (l *Ledger) ApplyEvent(header schema.EventHeader, payload []byte) error {
	switch header.Type {
	case schema.EventOrderUpdate:
		upd, ok := codec.DecodeOrderUpdate(payload)
		if !ok {
			return fmt.Errorf("decode order update failed: seq=%d", header.Seq)
		}
		if upd.Status != schema.OrderStatusCreated {
			return nil
		}
		err := l.RegisterOrder(upd.OrderID, upd.InstrumentID, upd.Side, upd.Qty)
		if errors.Is(err, ErrDuplicateOrder) {
			return nil
		}
		return err
	case schema.EventFill:
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			return fmt.Errorf("decode fill failed: seq=%d", header.Seq)
		}
		return l.ApplyFill(fill)
	default:
		return nil
	}
}
