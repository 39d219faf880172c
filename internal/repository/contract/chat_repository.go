package contract

import (
	"context"

	"ai-assistant-be/internal/entity"

	"github.com/google/uuid"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *entity.ChatSession) error
	Update(ctx context.Context, session *entity.ChatSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error)
	FindAllByUserId(ctx context.Context, userId uuid.UUID) ([]*entity.ChatSession, error)
	// EnsureExists creates the session row if the client-generated id has
	// not been seen before. Websocket sessions are created client-side, so
	// the first frame on a new conversation implicitly registers it.
	EnsureExists(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error)
	Count(ctx context.Context) (int64, error)
}

type ChatMessageRepository interface {
	Create(ctx context.Context, message *entity.ChatMessage) error
	FindBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatMessage, error)
	// FindRecentBySessionId returns the last `limit` messages in
	// chronological order, for the model context window.
	FindRecentBySessionId(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.ChatMessage, error)
	DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error
}
