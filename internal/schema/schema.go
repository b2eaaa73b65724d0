package schema

// SchemaVersion is the current audit event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of an event written to the audit log.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketTick
	EventSignal
	EventOrderIntent
	EventAdmission
	EventOrderUpdate
	EventFill
)

// EventHeader is the common metadata attached to every audit event.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}
