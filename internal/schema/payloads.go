package schema

// Price is a scaled integer. The scale is defined by the instrument registry.
type Price int64

// Quantity is a scaled integer. The scale is defined by the instrument registry.
type Quantity int64

// Notional is a scaled integer. The scale is defined by the instrument registry.
type Notional int64

// Fee is a scaled integer. The scale is defined by the instrument registry.
type Fee int64

// Score is a forecast signal score scaled by 1e8.
type Score int64

// Confidence is a forecast confidence scaled by 1e8, in [0, 1e8].
type Confidence int64

// ConfidenceScale is the fixed scale used by Score and Confidence.
const ConfidenceScale int64 = 100_000_000

// MarketTick is the payload for EventMarketTick.
type MarketTick struct {
	InstrumentID uint32
	Flags        uint16
	Reserved     uint16
	Price        Price
	Volume       Quantity
	TsExchange   int64
}

// Signal is the payload for EventSignal. Signals are immutable once produced.
type Signal struct {
	InstrumentID uint32
	ModelID      uint32
	Horizon      uint16
	Flags        uint16
	Score        Score
	Confidence   Confidence
	TsGen        int64
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderIntent is the payload for EventOrderIntent. The desired position delta
// is expressed as Side + Qty, with Qty always positive.
type OrderIntent struct {
	OrderID      uint64
	StrategyID   uint32
	InstrumentID uint32
	Side         OrderSide
	Flags        uint16
	Price        Price
	Qty          Quantity
	TsDecision   int64
}

// Verdict is the risk gate outcome for an order intent.
type Verdict uint16

const (
	VerdictUnknown Verdict = iota
	VerdictAdmit
	VerdictClip
	VerdictReject
)

// AdmissionReason is a coarse reason code for admissions.
type AdmissionReason uint16

const (
	AdmissionReasonNone AdmissionReason = iota
	AdmissionReasonPositionCap
	AdmissionReasonInstrumentNotional
	AdmissionReasonPortfolioNotional
	AdmissionReasonCircuitBreaker
)

// Admission is the payload for EventAdmission.
type Admission struct {
	OrderID       uint64
	StrategyID    uint32
	InstrumentID  uint32
	Verdict       Verdict
	Reason        AdmissionReason
	LimitsVersion uint16
	Reserved      uint16
	ProposedQty   Quantity
	AdmittedQty   Quantity
	Price         Price
}

// Admitted reports whether any quantity may be submitted.
func (a Admission) Admitted() bool {
	return a.Verdict == VerdictAdmit || a.Verdict == VerdictClip
}

// OrderStatus tracks the lifecycle of an order.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusCreated
	OrderStatusSubmitted
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

// Terminal reports whether the status is final and immutable.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderUpdate is the payload for EventOrderUpdate, one per state transition.
type OrderUpdate struct {
	OrderID      uint64
	InstrumentID uint32
	Side         OrderSide
	Status       OrderStatus
	Reason       uint16
	Reserved     uint16
	Price        Price
	Qty          Quantity
	FilledQty    Quantity
	TsUpdate     int64
}

// Fill is the payload for EventFill. (OrderID, Seq) is the idempotency key
// used to deduplicate fill application.
type Fill struct {
	OrderID      uint64
	Seq          uint32
	InstrumentID uint32
	Side         OrderSide
	Flags        uint16
	Price        Price
	Qty          Quantity
	Fee          Fee
	TsFill       int64
}
