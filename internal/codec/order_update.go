package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderUpdatePayloadSize = 52

// EncodeOrderUpdate serializes an order state transition into a fixed-size payload.
func EncodeOrderUpdate(dst []byte, upd schema.OrderUpdate) []byte {
	if cap(dst) < OrderUpdatePayloadSize {
		dst = make([]byte, OrderUpdatePayloadSize)
	} else {
		dst = dst[:OrderUpdatePayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], upd.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], upd.InstrumentID)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(upd.Side))
	binary.LittleEndian.PutUint16(dst[14:16], uint16(upd.Status))
	binary.LittleEndian.PutUint16(dst[16:18], upd.Reason)
	binary.LittleEndian.PutUint16(dst[18:20], upd.Reserved)
	binary.LittleEndian.PutUint64(dst[20:28], uint64(upd.Price))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(upd.Qty))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(upd.FilledQty))
	binary.LittleEndian.PutUint64(dst[44:52], uint64(upd.TsUpdate))

	return dst
}

// DecodeOrderUpdate parses a fixed-size order update payload.
func DecodeOrderUpdate(src []byte) (schema.OrderUpdate, bool) {
	if len(src) < OrderUpdatePayloadSize {
		return schema.OrderUpdate{}, false
	}
	return schema.OrderUpdate{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: binary.LittleEndian.Uint32(src[8:12]),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[12:14])),
		Status:       schema.OrderStatus(binary.LittleEndian.Uint16(src[14:16])),
		Reason:       binary.LittleEndian.Uint16(src[16:18]),
		Reserved:     binary.LittleEndian.Uint16(src[18:20]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[20:28]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[28:36]))),
		FilledQty:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[36:44]))),
		TsUpdate:     int64(binary.LittleEndian.Uint64(src[44:52])),
	}, true
}
