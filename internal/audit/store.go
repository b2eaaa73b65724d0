package audit

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"main/internal/schema"
)

// EventRow is the relational projection of one audit record. The binary
// payload is stored as-is; queries filter on the indexed header columns and
// decode payloads offline.
type EventRow struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Type    uint16 `gorm:"index:idx_audit_type_ts,priority:1"`
	Source  uint16
	Seq     uint64
	TraceID uint64 `gorm:"index"`
	TsEvent int64  `gorm:"index:idx_audit_type_ts,priority:2"`
	TsRecv  int64
	Payload []byte
}

// TableName sets the table name for gorm.
func (EventRow) TableName() string {
	return "audit_events"
}

// Store batches audit events into Postgres. Not safe for concurrent use; the
// sink owns it from a single goroutine.
type Store struct {
	db        *gorm.DB
	batch     []EventRow
	batchSize int
}

// NewStore migrates the audit table and returns a store.
func NewStore(db *gorm.DB, batchSize int) (*Store, error) {
	if batchSize <= 0 {
		batchSize = 256
	}
	if err := db.AutoMigrate(&EventRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate audit_events")
	}
	return &Store{
		db:        db,
		batch:     make([]EventRow, 0, batchSize),
		batchSize: batchSize,
	}, nil
}

// Append buffers one event and flushes when the batch is full.
func (s *Store) Append(ctx context.Context, header schema.EventHeader, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.batch = append(s.batch, EventRow{
		Type:    uint16(header.Type),
		Source:  header.Source,
		Seq:     header.Seq,
		TraceID: header.TraceID,
		TsEvent: header.TsEvent,
		TsRecv:  header.TsRecv,
		Payload: cp,
	})
	if len(s.batch) >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered batch in one insert.
func (s *Store) Flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&s.batch).Error; err != nil {
		return errors.Wrap(err, "insert audit batch")
	}
	s.batch = s.batch[:0]
	return nil
}

// CountByType returns how many rows exist for an event type.
func (s *Store) CountByType(ctx context.Context, eventType schema.EventType) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&EventRow{}).
		Where("type = ?", uint16(eventType)).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count audit rows")
	}
	return count, nil
}
