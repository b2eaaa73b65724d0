package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/codec"
	"main/internal/schema"
)

func writeRecords(t *testing.T, dir string, ticks []schema.MarketTick) {
	t.Helper()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	for i, tick := range ticks {
		header := schema.NewHeader(schema.EventMarketTick, 1, uint64(i+1), tick.TsExchange, tick.TsExchange+10)
		require.NoError(t, w.TryAppend(header, codec.EncodeMarketTick(nil, tick)))
	}
	require.NoError(t, w.Close())
}

func TestWriteThenPlayback(t *testing.T) {
	dir := t.TempDir()
	ticks := []schema.MarketTick{
		{InstrumentID: 1, Price: 100, Volume: 5, TsExchange: 1000},
		{InstrumentID: 1, Price: 101, Volume: 3, TsExchange: 2000},
		{InstrumentID: 2, Price: 64_000, Volume: 1, TsExchange: 3000},
	}
	writeRecords(t, dir, ticks)

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)

	var headers []schema.EventHeader
	var decoded []schema.MarketTick
	err = pb.Run(context.Background(), func(header schema.EventHeader, payload []byte) error {
		tick, ok := codec.DecodeMarketTick(payload)
		require.True(t, ok)
		headers = append(headers, header)
		decoded = append(decoded, tick)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, decoded, len(ticks))
	assert.Equal(t, ticks, decoded)
	for i, header := range headers {
		assert.Equal(t, schema.EventMarketTick, header.Type)
		assert.Equal(t, uint64(i+1), header.Seq)
	}
}

func TestPlaybackDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, []schema.MarketTick{{InstrumentID: 1, Price: 100, Volume: 5, TsExchange: 1000}})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(dir, entries[0].Name())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[recordHeaderSize] ^= 0xff // first payload byte
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	err = pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil })
	require.ErrorIs(t, err, ErrChecksumMismatch)

	// checksum validation can be bypassed for forensic reads
	pb, err = NewPlayback(PlaybackConfig{Dir: dir, DisableChecksum: true})
	require.NoError(t, err)
	count := 0
	err = pb.Run(context.Background(), func(schema.EventHeader, []byte) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTryAppendLifecycle(t *testing.T) {
	w, err := NewWriter(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	header := schema.NewHeader(schema.EventMarketTick, 1, 1, 1, 1)
	require.ErrorIs(t, w.TryAppend(header, nil), ErrNotStarted)

	require.NoError(t, w.Start(context.Background()))
	require.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, w.TryAppend(header, nil))

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.TryAppend(header, nil), ErrClosed)
}

func TestSegmentRotationBySize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir, SegmentBytes: 128})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	for i := 0; i < 4; i++ {
		header := schema.NewHeader(schema.EventMarketTick, 1, uint64(i+1), int64(i), int64(i))
		require.NoError(t, w.TryAppend(header, codec.EncodeMarketTick(nil, schema.MarketTick{InstrumentID: 1})))
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "records exceeding SegmentBytes must rotate")

	// playback stitches the segments back together in order
	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	var seqs []uint64
	require.NoError(t, pb.Run(context.Background(), func(header schema.EventHeader, _ []byte) error {
		seqs = append(seqs, header.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)
}

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPlaybackPacing(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, []schema.MarketTick{
		{InstrumentID: 1, Price: 100, TsExchange: 1_000_000},
		{InstrumentID: 1, Price: 101, TsExchange: 3_000_000},
	})

	pb, err := NewPlayback(PlaybackConfig{Dir: dir, Speed: 2})
	require.NoError(t, err)
	clock := &fakeClock{}
	pb.WithClock(clock)

	require.NoError(t, pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil }))
	// 2ms of event time at double speed is a 1ms sleep
	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Millisecond, clock.slept[0])
}
