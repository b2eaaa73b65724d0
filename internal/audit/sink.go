package audit

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
)

// Sink drains the audit queue into the segment writer and, when configured,
// the relational store. The pipeline publishes with TryPublish so a slow sink
// drops records instead of stalling decisions; drops are counted.
type Sink struct {
	queue   *bus.Queue
	writer  *Writer
	store   *Store
	metrics *obs.Metrics

	storeFlushEvery time.Duration
}

// NewSink wires a queue to a writer. store may be nil.
func NewSink(queue *bus.Queue, writer *Writer, store *Store, metrics *obs.Metrics) *Sink {
	return &Sink{
		queue:           queue,
		writer:          writer,
		store:           store,
		metrics:         metrics,
		storeFlushEvery: time.Second,
	}
}

// Run consumes the queue until ctx is done, then flushes the store.
func (s *Sink) Run(ctx context.Context) {
	var flushC <-chan time.Time
	if s.store != nil {
		t := time.NewTicker(s.storeFlushEvery)
		defer t.Stop()
		flushC = t.C
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.queue.Run(ctx, func(e bus.Event) {
			s.handle(ctx, e)
		})
	}()

	for {
		select {
		case <-done:
			s.flushStore(context.WithoutCancel(ctx))
			return
		case <-flushC:
			s.flushStore(ctx)
		}
	}
}

func (s *Sink) handle(ctx context.Context, e bus.Event) {
	s.metrics.ObserveEvent(e.Header)

	if err := s.writer.TryAppend(e.Header, e.Payload); err != nil {
		switch err {
		case ErrQueueFull:
			s.metrics.IncQueueDrop()
		case ErrClosed:
			s.metrics.IncQueueClosed()
		default:
			logs.Errorf("audit append failed, err: %+v", err)
		}
	}

	if s.store != nil {
		if err := s.store.Append(ctx, e.Header, e.Payload); err != nil {
			logs.Errorf("audit store append failed, err: %+v", err)
		}
	}
}

func (s *Sink) flushStore(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Flush(ctx); err != nil {
		logs.Errorf("audit store flush failed, err: %+v", err)
	}
}
