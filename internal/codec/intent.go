package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderIntentPayloadSize = 44

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, intent schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], intent.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], intent.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], intent.InstrumentID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(intent.Side))
	binary.LittleEndian.PutUint16(dst[18:20], intent.Flags)
	binary.LittleEndian.PutUint64(dst[20:28], uint64(intent.Price))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(intent.Qty))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(intent.TsDecision))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID: binary.LittleEndian.Uint32(src[12:16]),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Flags:        binary.LittleEndian.Uint16(src[18:20]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[20:28]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[28:36]))),
		TsDecision:   int64(binary.LittleEndian.Uint64(src[36:44])),
	}, true
}
