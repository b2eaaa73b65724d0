package feed

import (
	"math"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// RawTick is a venue-shaped tick before normalization. Prices and volumes are
// decimal strings as venues send them.
type RawTick struct {
	Symbol     string
	Flags      uint16
	Price      string
	Volume     string
	Source     uint16
	TsExchange int64
	TsRecv     int64
}

// Normalizer maps raw venue ticks into schema events using the instrument
// registry for id and scale resolution.
type Normalizer struct {
	reg *schema.Registry
}

// NewNormalizer creates a normalizer for a registry.
func NewNormalizer(reg *schema.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// Normalize converts a raw tick into an event header and payload.
func (n *Normalizer) Normalize(seq uint64, raw RawTick) (schema.EventHeader, schema.MarketTick, error) {
	if n.reg == nil {
		return schema.EventHeader{}, schema.MarketTick{}, errors.New("registry is nil")
	}
	id, ok := n.reg.InstrumentIDByName(raw.Symbol)
	if !ok {
		return schema.EventHeader{}, schema.MarketTick{}, errors.Errorf("instrument not found: %s", raw.Symbol)
	}
	inst, _ := n.reg.Instrument(id)

	price, err := ParseScaled(raw.Price, inst.Scale.PriceScale)
	if err != nil {
		return schema.EventHeader{}, schema.MarketTick{}, errors.Wrap(err, "parse price").With("symbol", raw.Symbol)
	}
	volume, err := ParseScaled(raw.Volume, inst.Scale.QuantityScale)
	if err != nil {
		return schema.EventHeader{}, schema.MarketTick{}, errors.Wrap(err, "parse volume").With("symbol", raw.Symbol)
	}

	if raw.TsRecv == 0 {
		raw.TsRecv = time.Now().UTC().UnixNano()
	}
	if raw.TsExchange == 0 {
		raw.TsExchange = raw.TsRecv
	}

	header := schema.NewHeader(schema.EventMarketTick, raw.Source, seq, raw.TsExchange, raw.TsRecv)
	tick := schema.MarketTick{
		InstrumentID: uint32(id),
		Flags:        raw.Flags,
		Price:        schema.Price(price),
		Volume:       schema.Quantity(volume),
		TsExchange:   raw.TsExchange,
	}
	return header, tick, nil
}

// ParseScaled converts a decimal string into a scaled integer. Extra fraction
// digits beyond the scale are truncated, never rounded, so two parsers can
// never disagree on the last digit.
func ParseScaled(s string, scale schema.Scale) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty decimal string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, errors.New("bare sign")
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > int(scale) {
		fracPart = fracPart[:scale]
	}

	var v int64
	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("invalid decimal string: %s", s)
		}
		d := int64(c - '0')
		if v > (math.MaxInt64-d)/10 {
			return 0, errors.Errorf("decimal overflows int64: %s", s)
		}
		v = v*10 + d
	}
	for i := len(fracPart); i < int(scale); i++ {
		if v > math.MaxInt64/10 {
			return 0, errors.Errorf("decimal overflows int64: %s", s)
		}
		v *= 10
	}
	if neg {
		v = -v
	}
	return v, nil
}
