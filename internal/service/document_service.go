package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/contract"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

var (
	ErrFileTooLarge        = errors.New("file exceeds the upload size limit")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// allowedExtensions is the upload allowlist. PDFs are accepted at upload
// but the indexer only chunks plain-text formats, so a PDF lands in the
// failed state with a reason instead of being rejected at the door.
var allowedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
	".log": true,
	".pdf": true,
}

type IDocumentService interface {
	Upload(ctx context.Context, fileName, contentType string, size int64, src io.Reader) (*dto.UploadDocumentResponse, error)
	GetAll(ctx context.Context) ([]*dto.GetDocumentResponse, error)
}

type documentService struct {
	documents contract.DocumentRepository
	pubSub    *gochannel.GoChannel
	topicName string
	logger    logger.ILogger

	uploadDir    string
	maxSizeBytes int64
}

func NewDocumentService(
	documents contract.DocumentRepository,
	pubSub *gochannel.GoChannel,
	topicName string,
	log logger.ILogger,
	uploadDir string,
	maxSizeBytes int64,
) IDocumentService {
	return &documentService{
		documents:    documents,
		pubSub:       pubSub,
		topicName:    topicName,
		logger:       log,
		uploadDir:    uploadDir,
		maxSizeBytes: maxSizeBytes,
	}
}

func (s *documentService) Upload(ctx context.Context, fileName, contentType string, size int64, src io.Reader) (*dto.UploadDocumentResponse, error) {
	if size > s.maxSizeBytes {
		return nil, ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return nil, ErrUnsupportedFileType
	}

	docId := uuid.New()
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	// Stored under a fresh id so colliding upload names never clobber
	// each other.
	storagePath := filepath.Join(s.uploadDir, docId.String()+ext)
	dst, err := os.Create(storagePath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, io.LimitReader(src, s.maxSizeBytes+1))
	if err != nil {
		os.Remove(storagePath)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if written > s.maxSizeBytes {
		os.Remove(storagePath)
		return nil, ErrFileTooLarge
	}

	doc := &entity.Document{
		Id:          docId,
		FileName:    filepath.Base(fileName),
		StoragePath: storagePath,
		SizeBytes:   written,
		ContentType: contentType,
		Status:      entity.DocumentStatusPending,
		CreatedAt:   time.Now(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		os.Remove(storagePath)
		return nil, err
	}

	// Indexing runs async, the response only confirms receipt.
	payload, _ := json.Marshal(dto.PublishIngestDocumentMessage{DocumentId: doc.Id})
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pubSub.Publish(s.topicName, msg); err != nil {
		s.logger.Error("DocumentService", "Failed to publish ingest message", map[string]interface{}{
			"document_id": doc.Id, "error": err.Error(),
		})
		doc.Status = entity.DocumentStatusFailed
		_ = s.documents.Update(ctx, doc)
		return nil, fmt.Errorf("queue document for indexing: %w", err)
	}

	return &dto.UploadDocumentResponse{
		Id:       doc.Id,
		FileName: doc.FileName,
		Status:   string(doc.Status),
	}, nil
}

func (s *documentService) GetAll(ctx context.Context) ([]*dto.GetDocumentResponse, error) {
	docs, err := s.documents.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.GetDocumentResponse, 0, len(docs))
	for _, doc := range docs {
		result = append(result, &dto.GetDocumentResponse{
			Id:         doc.Id,
			FileName:   doc.FileName,
			SizeBytes:  doc.SizeBytes,
			Status:     string(doc.Status),
			ChunkCount: doc.ChunkCount,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	return result, nil
}
