package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const AdmissionPayloadSize = 48

// EncodeAdmission serializes an admission verdict into a fixed-size payload.
func EncodeAdmission(dst []byte, adm schema.Admission) []byte {
	if cap(dst) < AdmissionPayloadSize {
		dst = make([]byte, AdmissionPayloadSize)
	} else {
		dst = dst[:AdmissionPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], adm.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], adm.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], adm.InstrumentID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(adm.Verdict))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(adm.Reason))
	binary.LittleEndian.PutUint16(dst[20:22], adm.LimitsVersion)
	binary.LittleEndian.PutUint16(dst[22:24], adm.Reserved)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(adm.ProposedQty))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(adm.AdmittedQty))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(adm.Price))

	return dst
}

// DecodeAdmission parses a fixed-size admission payload.
func DecodeAdmission(src []byte) (schema.Admission, bool) {
	if len(src) < AdmissionPayloadSize {
		return schema.Admission{}, false
	}
	return schema.Admission{
		OrderID:       binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:    binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID:  binary.LittleEndian.Uint32(src[12:16]),
		Verdict:       schema.Verdict(binary.LittleEndian.Uint16(src[16:18])),
		Reason:        schema.AdmissionReason(binary.LittleEndian.Uint16(src[18:20])),
		LimitsVersion: binary.LittleEndian.Uint16(src[20:22]),
		Reserved:      binary.LittleEndian.Uint16(src[22:24]),
		ProposedQty:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		AdmittedQty:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Price:         schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}, true
}
