package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentIndexedPayload(t *testing.T) {
	event := NewDocumentIndexed("doc-1", "notes.txt", 12)

	assert.Equal(t, EventDocumentIndexed, event.EventType())
	assert.False(t, event.Timestamp().IsZero())

	payload := event.Payload()
	assert.Equal(t, "doc-1", payload["document_id"])
	// Subscribers build user-facing notices from the file name alone.
	assert.Equal(t, "notes.txt", payload["file_name"])
	assert.Equal(t, 12, payload["chunk_count"])
}

func TestDocumentIndexFailedPayload(t *testing.T) {
	event := NewDocumentIndexFailed("doc-2", "unreadable")

	assert.Equal(t, EventDocumentIndexFailed, event.EventType())
	payload := event.Payload()
	assert.Equal(t, "doc-2", payload["document_id"])
	assert.Equal(t, "unreadable", payload["reason"])
}
