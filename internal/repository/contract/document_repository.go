package contract

import (
	"context"

	"ai-assistant-be/internal/entity"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ScoredChunk is a retrieval hit: a chunk plus its cosine similarity to
// the query embedding.
type ScoredChunk struct {
	Chunk    entity.DocumentChunk
	FileName string
	Score    float64
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	Update(ctx context.Context, doc *entity.Document) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	FindAll(ctx context.Context) ([]*entity.Document, error)
	CountIndexed(ctx context.Context) (int64, error)

	CreateChunks(ctx context.Context, chunks []entity.DocumentChunk) error
	DeleteChunksByDocumentId(ctx context.Context, documentId uuid.UUID) error
	// SearchChunks runs a cosine top-k query over the pgvector index and
	// drops hits below minScore.
	SearchChunks(ctx context.Context, embedding pgvector.Vector, topK int, minScore float64) ([]ScoredChunk, error)
}
