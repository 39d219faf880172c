package implementation

import (
	"context"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) contract.DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *entity.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) Update(ctx context.Context, doc *entity.Document) error {
	now := time.Now()
	doc.UpdatedAt = &now
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *documentRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	var doc entity.Document
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindAll(ctx context.Context) ([]*entity.Document, error) {
	var docs []*entity.Document
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepository) CountIndexed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("status = ? AND is_deleted = ?", entity.DocumentStatusIndexed, false).
		Count(&count).Error
	return count, err
}

func (r *documentRepository) CreateChunks(ctx context.Context, chunks []entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

func (r *documentRepository) DeleteChunksByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("document_id = ?", documentId).
		Delete(&entity.DocumentChunk{}).Error
}

func (r *documentRepository) SearchChunks(ctx context.Context, embedding pgvector.Vector, topK int, minScore float64) ([]contract.ScoredChunk, error) {
	type row struct {
		entity.DocumentChunk
		FileName string
		Score    float64
	}
	var rows []row
	// Cosine distance via the <=> operator, similarity is 1 - distance.
	err := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, documents.file_name AS file_name, 1 - (document_chunks.embedding <=> ?) AS score", embedding).
		Joins("JOIN documents ON documents.id = document_chunks.document_id AND documents.is_deleted = false").
		Where("document_chunks.deleted_at IS NULL").
		Order("score DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]contract.ScoredChunk, 0, len(rows))
	for _, rw := range rows {
		if rw.Score < minScore {
			continue
		}
		results = append(results, contract.ScoredChunk{
			Chunk:    rw.DocumentChunk,
			FileName: rw.FileName,
			Score:    rw.Score,
		})
	}
	return results, nil
}
