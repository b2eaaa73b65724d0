package risk

import (
	"main/internal/ledger"
	"main/internal/schema"
)

// Gate performs stateless admission control against a ledger view. The caps
// are independently necessary conditions; their fixed evaluation order only
// decides which reason is reported. A capped intent is clipped to the largest
// quantity that respects every limit, and rejected when that quantity is zero.
type Gate struct {
	breaker *Breaker
}

// NewGate creates a gate sharing the given circuit breaker.
func NewGate(breaker *Breaker) *Gate {
	return &Gate{breaker: breaker}
}

// Evaluate returns the admission verdict for an intent given a point-in-time
// ledger view and one consistent limits version.
func (g *Gate) Evaluate(intent schema.OrderIntent, view ledger.View, limits Limits) schema.Admission {
	adm := schema.Admission{
		OrderID:       intent.OrderID,
		StrategyID:    intent.StrategyID,
		InstrumentID:  intent.InstrumentID,
		Verdict:       schema.VerdictAdmit,
		Reason:        schema.AdmissionReasonNone,
		LimitsVersion: limits.Version,
		ProposedQty:   intent.Qty,
		AdmittedQty:   intent.Qty,
		Price:         intent.Price,
	}
	if intent.Qty <= 0 || intent.Side == schema.OrderSideUnknown {
		adm.Verdict = schema.VerdictReject
		adm.AdmittedQty = 0
		return adm
	}

	pos := view.Position(intent.InstrumentID)
	mark := pos.LastMark
	if mark == 0 {
		mark = intent.Price
	}
	instLimits := limits.Instrument(intent.InstrumentID)

	admitted := intent.Qty

	// (1) per-instrument position cap
	if instLimits.MaxPosition > 0 {
		allowed := capAbsPosition(pos.Qty, intent.Side, admitted, int64(instLimits.MaxPosition))
		admitted = clipQty(&adm, admitted, allowed, schema.AdmissionReasonPositionCap)
	}

	// (2) per-instrument notional cap
	if instLimits.MaxNotional > 0 && mark > 0 {
		maxAbs := int64(instLimits.MaxNotional) / int64(mark)
		allowed := capAbsPosition(pos.Qty, intent.Side, admitted, maxAbs)
		admitted = clipQty(&adm, admitted, allowed, schema.AdmissionReasonInstrumentNotional)
	}

	// (3) portfolio-level notional cap
	if limits.MaxPortfolioNotional > 0 && mark > 0 {
		headroom := int64(limits.MaxPortfolioNotional) - int64(view.PortfolioNotional) + int64(pos.Notional)
		if headroom < 0 {
			headroom = 0
		}
		maxAbs := headroom / int64(mark)
		allowed := capAbsPosition(pos.Qty, intent.Side, admitted, maxAbs)
		admitted = clipQty(&adm, admitted, allowed, schema.AdmissionReasonPortfolioNotional)
	}

	// (4) daily-loss circuit breaker: never clipped, overrides any admit.
	if g.breaker != nil {
		g.breaker.Observe(view.RealizedDayPnL, limits.MaxDailyLoss)
		if g.breaker.Tripped() {
			adm.Verdict = schema.VerdictReject
			if adm.Reason == schema.AdmissionReasonNone {
				adm.Reason = schema.AdmissionReasonCircuitBreaker
			}
			adm.AdmittedQty = 0
			return adm
		}
	}

	adm.AdmittedQty = admitted
	return adm
}

// clipQty shrinks the admitted quantity to allowed, recording the first
// binding check as the reported reason.
func clipQty(adm *schema.Admission, admitted, allowed schema.Quantity, reason schema.AdmissionReason) schema.Quantity {
	if allowed >= admitted {
		return admitted
	}
	if adm.Reason == schema.AdmissionReasonNone {
		adm.Reason = reason
	}
	if allowed <= 0 {
		adm.Verdict = schema.VerdictReject
		return 0
	}
	adm.Verdict = schema.VerdictClip
	return allowed
}

// capAbsPosition returns the largest quantity q in [0, proposed] such that
// the post-fill position stays within ±maxAbs.
func capAbsPosition(pos schema.Quantity, side schema.OrderSide, proposed schema.Quantity, maxAbs int64) schema.Quantity {
	if maxAbs < 0 {
		maxAbs = 0
	}
	var allowed int64
	switch side {
	case schema.OrderSideBuy:
		allowed = maxAbs - int64(pos)
	case schema.OrderSideSell:
		allowed = maxAbs + int64(pos)
	default:
		return 0
	}
	if allowed < 0 {
		return 0
	}
	if allowed > int64(proposed) {
		return proposed
	}
	return schema.Quantity(allowed)
}
