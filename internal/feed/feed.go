package feed

import (
	"context"

	"main/internal/schema"
)

// Source identifiers carried in the event header.
const (
	SourceSim      uint16 = 1
	SourceExchange uint16 = 2
	SourceReplay   uint16 = 3
)

// Emit receives one normalized tick. Implementations must not block; slow
// consumers drop instead of stalling the feed.
type Emit func(header schema.EventHeader, tick schema.MarketTick)

// Source delivers normalized market ticks until ctx is done.
type Source interface {
	Run(ctx context.Context, emit Emit) error
	Close()
}
