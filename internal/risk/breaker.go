package risk

import (
	"sync/atomic"

	"main/internal/schema"
)

// Breaker is the portfolio-wide daily-loss circuit breaker. Once tripped it
// rejects every new intent across all instrument pipelines until Reset is
// called; nothing resets it implicitly.
type Breaker struct {
	tripped atomic.Bool
}

// NewBreaker creates an untripped breaker.
func NewBreaker() *Breaker {
	return &Breaker{}
}

// Observe trips the breaker when realized day P&L breaches the loss cap.
// A zero cap disables the breaker.
func (b *Breaker) Observe(realizedDay, maxDailyLoss schema.Notional) {
	if maxDailyLoss > 0 && realizedDay <= -maxDailyLoss {
		b.tripped.Store(true)
	}
}

// Trip forces the breaker open.
func (b *Breaker) Trip() {
	b.tripped.Store(true)
}

// Reset closes the breaker. Explicit external action only.
func (b *Breaker) Reset() {
	b.tripped.Store(false)
}

// Tripped reports the breaker state.
func (b *Breaker) Tripped() bool {
	return b.tripped.Load()
}
