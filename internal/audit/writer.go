package audit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

var (
	ErrQueueFull       = errors.New("audit queue full")
	ErrClosed          = errors.New("audit writer closed")
	ErrNotStarted      = errors.New("audit writer not started")
	ErrAlreadyStarted  = errors.New("audit writer already started")
	ErrPayloadTooLarge = errors.New("audit payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Config controls the audit log writer.
type Config struct {
	Dir           string
	SegmentBytes  int64
	SegmentMaxAge time.Duration
	QueueSize     int
	BufferSize    int
	FilePrefix    string
	FlushInterval time.Duration
	SyncInterval  time.Duration
}

// DefaultConfig returns a baseline writer configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		SegmentBytes:  1 << 30,
		SegmentMaxAge: 5 * time.Minute,
		QueueSize:     4096,
		BufferSize:    256 * 1024,
		FilePrefix:    "audit",
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentBytes <= 0 {
		c.SegmentBytes = 1 << 30
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256 * 1024
	}
	if c.FilePrefix == "" {
		c.FilePrefix = "audit"
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid audit config: Dir is empty")
	}
	if c.FlushInterval < 0 || c.SyncInterval < 0 {
		return fmt.Errorf("invalid audit config: intervals must be >= 0")
	}
	return nil
}

type appendRequest struct {
	header  schema.EventHeader
	payload []byte
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// Writer appends audit records to rotating segment files from a bounded
// queue. TryAppend never blocks; when the queue is full the record is lost
// and the caller counts the drop.
type Writer struct {
	cfg Config
	ch  chan appendRequest
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32

	seg         *segment
	segID       uint64
	headerBuf   [recordHeaderSize]byte
	checksumBuf [recordChecksumSize]byte
}

// NewWriter creates a writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan appendRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes buffered data.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues a record without blocking. The payload is copied so the
// caller may reuse its buffer.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)

	select {
	case w.ch <- appendRequest{header: header, payload: cp}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	defer func() {
		if err := w.closeSegment(); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(req); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if w.seg != nil {
				if err := w.seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		case <-syncC:
			if err := w.sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(req); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) writeRecord(req appendRequest) error {
	now := time.Now().UTC()
	recordSize := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if w.shouldRotate(now, recordSize) {
		if err := w.closeSegment(); err != nil {
			return err
		}
		if err := w.openSegment(now); err != nil {
			return err
		}
	}

	encodeRecordHeader(w.headerBuf[:], req.header, len(req.payload))
	sum := checksum(w.headerBuf[:], req.payload)
	w.checksumBuf[0] = byte(sum)
	w.checksumBuf[1] = byte(sum >> 8)
	w.checksumBuf[2] = byte(sum >> 16)
	w.checksumBuf[3] = byte(sum >> 24)

	if _, err := w.seg.buf.Write(w.headerBuf[:]); err != nil {
		return err
	}
	if len(req.payload) > 0 {
		if _, err := w.seg.buf.Write(req.payload); err != nil {
			return err
		}
	}
	if _, err := w.seg.buf.Write(w.checksumBuf[:]); err != nil {
		return err
	}
	w.seg.size += recordSize
	return nil
}

func (w *Writer) shouldRotate(now time.Time, nextSize int64) bool {
	if w.seg == nil {
		return true
	}
	if w.seg.size+nextSize > w.cfg.SegmentBytes {
		return true
	}
	if w.cfg.SegmentMaxAge > 0 && now.Sub(w.seg.openedAt) >= w.cfg.SegmentMaxAge {
		return true
	}
	return false
}

func (w *Writer) sync() error {
	if w.seg == nil {
		return nil
	}
	if err := w.seg.buf.Flush(); err != nil {
		return err
	}
	return w.seg.file.Sync()
}

func (w *Writer) closeSegment() error {
	if w.seg == nil {
		return nil
	}
	seg := w.seg
	w.seg = nil
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *Writer) openSegment(now time.Time) error {
	ts := now.Format("20060102-150405")
	for {
		w.segID++
		name := fmt.Sprintf("%s-%s-%06d.log", w.cfg.FilePrefix, ts, w.segID)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return err
		}
		w.seg = &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}
		return nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}
