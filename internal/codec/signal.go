package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const SignalPayloadSize = 36

// EncodeSignal serializes a forecast signal into a fixed-size payload.
func EncodeSignal(dst []byte, sig schema.Signal) []byte {
	if cap(dst) < SignalPayloadSize {
		dst = make([]byte, SignalPayloadSize)
	} else {
		dst = dst[:SignalPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], sig.InstrumentID)
	binary.LittleEndian.PutUint32(dst[4:8], sig.ModelID)
	binary.LittleEndian.PutUint16(dst[8:10], sig.Horizon)
	binary.LittleEndian.PutUint16(dst[10:12], sig.Flags)
	binary.LittleEndian.PutUint64(dst[12:20], uint64(sig.Score))
	binary.LittleEndian.PutUint64(dst[20:28], uint64(sig.Confidence))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(sig.TsGen))

	return dst
}

// DecodeSignal parses a fixed-size forecast signal payload.
func DecodeSignal(src []byte) (schema.Signal, bool) {
	if len(src) < SignalPayloadSize {
		return schema.Signal{}, false
	}
	return schema.Signal{
		InstrumentID: binary.LittleEndian.Uint32(src[0:4]),
		ModelID:      binary.LittleEndian.Uint32(src[4:8]),
		Horizon:      binary.LittleEndian.Uint16(src[8:10]),
		Flags:        binary.LittleEndian.Uint16(src[10:12]),
		Score:        schema.Score(int64(binary.LittleEndian.Uint64(src[12:20]))),
		Confidence:   schema.Confidence(int64(binary.LittleEndian.Uint64(src[20:28]))),
		TsGen:        int64(binary.LittleEndian.Uint64(src[28:36])),
	}, true
}
