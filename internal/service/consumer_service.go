package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/contract"
	ws "ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/events"
	pkgNats "ai-assistant-be/pkg/nats"
	"ai-assistant-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pgvector/pgvector-go"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	documents         contract.DocumentRepository
	embeddingProvider embedding.EmbeddingProvider
	eventPublisher    *pkgNats.Publisher
	hub               *ws.Hub
	logger            logger.ILogger

	chunkSize    int
	chunkOverlap int
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	documents contract.DocumentRepository,
	embeddingProvider embedding.EmbeddingProvider,
	eventPublisher *pkgNats.Publisher,
	hub *ws.Hub,
	log logger.ILogger,
	chunkSize int,
	chunkOverlap int,
) IConsumerService {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		documents:         documents,
		embeddingProvider: embeddingProvider,
		eventPublisher:    eventPublisher,
		hub:               hub,
		logger:            log,
		chunkSize:         chunkSize,
		chunkOverlap:      chunkOverlap,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishIngestDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("Consumer", "Failed to unmarshal ingest message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.logger.Info("Consumer", "Indexing document", map[string]interface{}{"document_id": payload.DocumentId})

	doc, err := cs.documents.FindById(ctx, payload.DocumentId)
	if err != nil {
		cs.logger.Error("Consumer", "Document not found", map[string]interface{}{
			"document_id": payload.DocumentId, "error": err.Error(),
		})
		msg.Ack() // Document deleted? Ack.
		return
	}

	if err := cs.indexDocument(ctx, doc); err != nil {
		cs.logger.Error("Consumer", "Indexing failed", map[string]interface{}{
			"document_id": doc.Id, "error": err.Error(),
		})
		doc.Status = entity.DocumentStatusFailed
		_ = cs.documents.Update(ctx, doc)
		cs.publishEvent(ctx, events.NewDocumentIndexFailed(doc.Id.String(), err.Error()))
		msg.Ack() // Indexing failures are recorded on the row, no retry
		return
	}

	cs.publishEvent(ctx, events.NewDocumentIndexed(doc.Id.String(), doc.FileName, doc.ChunkCount))
	// The bus subscriber turns the event into a hub notice. Without a bus
	// connection the notice goes to local clients directly.
	if cs.eventPublisher == nil && cs.hub != nil {
		cs.hub.Broadcast(ws.NoticeFrame{
			Type:    ws.FrameTypeNotice,
			Message: fmt.Sprintf("Document %q is ready for questions", doc.FileName),
		})
	}
	msg.Ack()
}

func (cs *consumerService) indexDocument(ctx context.Context, doc *entity.Document) error {
	if strings.EqualFold(filepath.Ext(doc.StoragePath), ".pdf") {
		return fmt.Errorf("text extraction is not supported for pdf files")
	}

	raw, err := os.ReadFile(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	chunks := utils.SplitText(string(raw), cs.chunkSize, cs.chunkOverlap)
	cs.logger.Info("Consumer", "Content split into chunks", map[string]interface{}{
		"document_id": doc.Id, "chunks": len(chunks),
	})

	entities := make([]entity.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		entities = append(entities, entity.DocumentChunk{
			DocumentId: doc.Id,
			ChunkIndex: i,
			Content:    chunk,
			Embedding:  pgvector.NewVector(res.Embedding.Values),
			CreatedAt:  time.Now(),
		})
	}

	// Re-indexing replaces the old chunks wholesale.
	if err := cs.documents.DeleteChunksByDocumentId(ctx, doc.Id); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}
	if err := cs.documents.CreateChunks(ctx, entities); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	doc.Status = entity.DocumentStatusIndexed
	doc.ChunkCount = len(entities)
	return cs.documents.Update(ctx, doc)
}

func (cs *consumerService) publishEvent(ctx context.Context, event events.Event) {
	if cs.eventPublisher == nil {
		return
	}
	if err := cs.eventPublisher.Publish(ctx, event); err != nil {
		cs.logger.Warn("Consumer", "Failed to publish event", map[string]interface{}{
			"type": event.EventType(), "error": err.Error(),
		})
	}
}
