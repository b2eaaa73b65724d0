package codec

import (
	"testing"

	"main/internal/schema"
)

func TestMarketTickRoundTrip(t *testing.T) {
	tick := schema.MarketTick{
		InstrumentID: 7,
		Flags:        1,
		Price:        6_432_150_000_000,
		Volume:       250_000_000,
		TsExchange:   1_700_000_000_000_000_000,
	}

	buf := EncodeMarketTick(nil, tick)
	if len(buf) != MarketTickPayloadSize {
		t.Fatalf("payload size mismatch: got %d want %d", len(buf), MarketTickPayloadSize)
	}
	decoded, ok := DecodeMarketTick(buf)
	if !ok {
		t.Fatal("decode failed")
	}
	if decoded != tick {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, tick)
	}
}

func TestEncodeReusesBuffer(t *testing.T) {
	scratch := make([]byte, 0, 64)
	buf := EncodeMarketTick(scratch, schema.MarketTick{InstrumentID: 1, Price: 100})
	if &buf[0] != &scratch[:1][0] {
		t.Fatal("encode must reuse a buffer with enough capacity")
	}
}

func TestFillRoundTripNegativeValues(t *testing.T) {
	fill := schema.Fill{
		OrderID:      1 << 40,
		Seq:          3,
		InstrumentID: 2,
		Side:         schema.OrderSideSell,
		Price:        99_000_000_000,
		Qty:          1_500_000_000,
		Fee:          -25_000, // rebate
		TsFill:       1_700_000_000_000_000_000,
	}

	decoded, ok := DecodeFill(EncodeFill(nil, fill))
	if !ok {
		t.Fatal("decode failed")
	}
	if decoded != fill {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, fill)
	}
}

func TestAdmissionRoundTrip(t *testing.T) {
	adm := schema.Admission{
		OrderID:       42,
		StrategyID:    1,
		InstrumentID:  2,
		Verdict:       schema.VerdictClip,
		Reason:        schema.AdmissionReasonPositionCap,
		LimitsVersion: 12,
		ProposedQty:   150,
		AdmittedQty:   100,
		Price:         6_400_000_000_000,
	}

	decoded, ok := DecodeAdmission(EncodeAdmission(nil, adm))
	if !ok {
		t.Fatal("decode failed")
	}
	if decoded != adm {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, adm)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, ok := DecodeMarketTick(make([]byte, MarketTickPayloadSize-1)); ok {
		t.Fatal("short tick buffer must fail")
	}
	if _, ok := DecodeFill(make([]byte, FillPayloadSize-1)); ok {
		t.Fatal("short fill buffer must fail")
	}
	if _, ok := DecodeSignal(nil); ok {
		t.Fatal("nil signal buffer must fail")
	}
}
