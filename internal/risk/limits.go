package risk

import (
	"main/internal/schema"
)

// InstrumentLimits caps a single instrument's exposure.
type InstrumentLimits struct {
	MaxPosition schema.Quantity
	MaxNotional schema.Notional
}

// Limits is one consistent, versioned set of risk limits. Instances are
// immutable after construction; reloads install a whole new value so an
// evaluation always reads a single limit version end-to-end.
type Limits struct {
	Version              uint16
	MaxPortfolioNotional schema.Notional
	MaxDailyLoss         schema.Notional
	PerInstrument        map[uint32]InstrumentLimits
}

// Instrument returns the limits for an instrument, zero values meaning
// "no cap configured".
func (l Limits) Instrument(instrumentID uint32) InstrumentLimits {
	return l.PerInstrument[instrumentID]
}
