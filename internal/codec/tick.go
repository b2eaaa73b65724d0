package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const MarketTickPayloadSize = 32

// EncodeMarketTick serializes a market tick into a fixed-size payload.
func EncodeMarketTick(dst []byte, tick schema.MarketTick) []byte {
	if cap(dst) < MarketTickPayloadSize {
		dst = make([]byte, MarketTickPayloadSize)
	} else {
		dst = dst[:MarketTickPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], tick.InstrumentID)
	binary.LittleEndian.PutUint16(dst[4:6], tick.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], tick.Reserved)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tick.Price))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(tick.Volume))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.TsExchange))

	return dst
}

// DecodeMarketTick parses a fixed-size market tick payload.
func DecodeMarketTick(src []byte) (schema.MarketTick, bool) {
	if len(src) < MarketTickPayloadSize {
		return schema.MarketTick{}, false
	}
	return schema.MarketTick{
		InstrumentID: binary.LittleEndian.Uint32(src[0:4]),
		Flags:        binary.LittleEndian.Uint16(src[4:6]),
		Reserved:     binary.LittleEndian.Uint16(src[6:8]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Volume:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		TsExchange:   int64(binary.LittleEndian.Uint64(src[24:32])),
	}, true
}
