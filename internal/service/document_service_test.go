package service

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDocRepo struct {
	fakeDocumentRepo
	created []*entity.Document
}

func (r *recordingDocRepo) Create(ctx context.Context, d *entity.Document) error {
	r.created = append(r.created, d)
	return nil
}

func newTestPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

func TestUploadQueuesDocumentForIndexing(t *testing.T) {
	repo := &recordingDocRepo{}
	pubSub := newTestPubSub()
	dir := t.TempDir()

	svc := NewDocumentService(repo, pubSub, "INGEST_TEST", nopLogger{}, dir, 1024)

	messages, err := pubSub.Subscribe(context.Background(), "INGEST_TEST")
	require.NoError(t, err)

	res, err := svc.Upload(context.Background(), "notes.txt", "text/plain", 11, strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.FileName)
	assert.Equal(t, string(entity.DocumentStatusPending), res.Status)

	require.Len(t, repo.created, 1)
	doc := repo.created[0]
	assert.Equal(t, int64(11), doc.SizeBytes)

	// File landed on disk under the document id.
	data, err := os.ReadFile(doc.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// Ingest message carries the document id.
	select {
	case msg := <-messages:
		var payload dto.PublishIngestDocumentMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, doc.Id, payload.DocumentId)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no ingest message published")
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	svc := NewDocumentService(&recordingDocRepo{}, newTestPubSub(), "INGEST_TEST", nopLogger{}, t.TempDir(), 10)

	_, err := svc.Upload(context.Background(), "big.txt", "text/plain", 100, strings.NewReader(strings.Repeat("a", 100)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc := NewDocumentService(&recordingDocRepo{}, newTestPubSub(), "INGEST_TEST", nopLogger{}, t.TempDir(), 1024)

	_, err := svc.Upload(context.Background(), "malware.exe", "application/octet-stream", 5, strings.NewReader("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestUploadRejectsUndeclaredOversizeBody(t *testing.T) {
	repo := &recordingDocRepo{}
	svc := NewDocumentService(repo, newTestPubSub(), "INGEST_TEST", nopLogger{}, t.TempDir(), 10)

	// Declared size lies, the actual body is bigger than the limit.
	_, err := svc.Upload(context.Background(), "liar.txt", "text/plain", 5, strings.NewReader(strings.Repeat("a", 50)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, repo.created)
}
