package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "DOCUMENT_INDEXED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the generic implementation used across the bus.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	EventDocumentIndexed     = "DOCUMENT_INDEXED"
	EventDocumentIndexFailed = "DOCUMENT_INDEX_FAILED"
)

// NewDocumentIndexed signals that a document finished embedding and its
// chunks are searchable. The file name rides along so subscribers can
// build user-facing notices without a repository lookup.
func NewDocumentIndexed(documentId, fileName string, chunkCount int) Event {
	return BaseEvent{
		Type: EventDocumentIndexed,
		Data: map[string]interface{}{
			"document_id": documentId,
			"file_name":   fileName,
			"chunk_count": chunkCount,
		},
		OccurredAt: time.Now(),
	}
}

func NewDocumentIndexFailed(documentId string, reason string) Event {
	return BaseEvent{
		Type: EventDocumentIndexFailed,
		Data: map[string]interface{}{
			"document_id": documentId,
			"reason":      reason,
		},
		OccurredAt: time.Now(),
	}
}
