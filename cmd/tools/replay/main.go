package main

import (
	"context"
	"flag"
	"os"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/bus"
	"main/internal/ledger"
	"main/internal/schema"
)

// Replays an audit log directory through a fresh ledger and optionally
// verifies the result against a persisted position snapshot.
func main() {
	dir := flag.String("dir", "", "Audit log directory")
	prefix := flag.String("prefix", "", "Audit file prefix (default: audit)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Pace on receive timestamps")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	snapshotPath := flag.String("snapshot", "", "Snapshot to verify against (empty=skip)")
	flag.Parse()

	if *dir == "" {
		logs.Error("missing -dir")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := bus.NewQueue(1024)
	led := ledger.New()
	counts := make(map[schema.EventType]int)
	total := 0
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, func(e bus.Event) {
			total++
			counts[e.Header.Type]++
			if err := led.ApplyEvent(e.Header, e.Payload); err != nil {
				select {
				case errCh <- err:
				default:
				}
				cancel()
			}
		})
	}()

	pb, err := audit.NewPlayback(audit.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		logs.Errorf("playback init failed, err: %+v", err)
		os.Exit(1)
	}

	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		var copied []byte
		if len(payload) > 0 {
			copied = make([]byte, len(payload))
			copy(copied, payload)
		}
		return queue.TryPublish(bus.Event{Header: header, Payload: copied})
	})

	queue.Close()
	wg.Wait()

	if err != nil && ctx.Err() == nil {
		logs.Errorf("playback failed, err: %+v", err)
		os.Exit(1)
	}
	select {
	case applyErr := <-errCh:
		logs.Errorf("replay apply failed, err: %+v", applyErr)
		os.Exit(1)
	default:
	}

	if *snapshotPath != "" {
		expected, err := ledger.ReadSnapshot(*snapshotPath)
		if err != nil {
			logs.Errorf("snapshot read failed, err: %+v", err)
			os.Exit(1)
		}
		actual := led.Persist()
		if err := ledger.CompareSnapshots(expected, actual); err != nil {
			logs.Errorf("snapshot mismatch, err: %+v", err)
			os.Exit(1)
		}
		logs.Infof("snapshot verified: positions=%d", len(actual.Positions))
	}

	logs.Infof("replay completed: total=%d counts=%v", total, counts)
}
