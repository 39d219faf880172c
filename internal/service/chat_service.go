package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/contract"
	"ai-assistant-be/internal/repository/memory"
	ws "ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxTitleLength = 48

var ErrSessionNotFound = errors.New("chat session not found")

type IChatService interface {
	CreateSession(ctx context.Context, userId *uuid.UUID, title string) (*dto.CreateSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error)
	GetChatHistory(ctx context.Context, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error)
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
	SendChat(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error)

	// ProcessMessage is the websocket entry point, see ws.ChatProcessor.
	ProcessMessage(ctx context.Context, sessionID uuid.UUID, content, model string, useRAG bool) (*ws.ReplyFrame, error)
}

type chatService struct {
	db           *gorm.DB
	sessions     contract.ChatSessionRepository
	messages     contract.ChatMessageRepository
	liveSessions *memory.SessionRepository
	llmProvider  llm.LLMProvider
	retriever    *rag.Retriever
	logger       logger.ILogger

	defaultModel  string
	historyWindow int
}

func NewChatService(
	db *gorm.DB,
	sessions contract.ChatSessionRepository,
	messages contract.ChatMessageRepository,
	liveSessions *memory.SessionRepository,
	llmProvider llm.LLMProvider,
	retriever *rag.Retriever,
	log logger.ILogger,
	defaultModel string,
	historyWindow int,
) IChatService {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &chatService{
		db:            db,
		sessions:      sessions,
		messages:      messages,
		liveSessions:  liveSessions,
		llmProvider:   llmProvider,
		retriever:     retriever,
		logger:        log,
		defaultModel:  defaultModel,
		historyWindow: historyWindow,
	}
}

func (s *chatService) CreateSession(ctx context.Context, userId *uuid.UUID, title string) (*dto.CreateSessionResponse, error) {
	session := &entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     strings.TrimSpace(title),
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return &dto.CreateSessionResponse{Id: session.Id}, nil
}

func (s *chatService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error) {
	sessions, err := s.sessions.FindAllByUserId(ctx, userId)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.GetAllSessionsResponse, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, &dto.GetAllSessionsResponse{
			Id:        session.Id,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		})
	}
	return result, nil
}

func (s *chatService) GetChatHistory(ctx context.Context, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error) {
	if _, err := s.sessions.FindById(ctx, sessionId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	messages, err := s.messages.FindBySessionId(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.GetChatHistoryResponse, 0, len(messages))
	for _, msg := range messages {
		item := &dto.GetChatHistoryResponse{
			Id:        msg.Id,
			Role:      msg.Role,
			Chat:      msg.Chat,
			Model:     msg.Model,
			CreatedAt: msg.CreatedAt,
		}
		if len(msg.Sources) > 0 {
			// Sources were stored as JSON, decode best-effort
			var sources []dto.SourceDTO
			if err := json.Unmarshal(msg.Sources, &sources); err == nil {
				item.Sources = sources
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (s *chatService) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	if _, err := s.sessions.FindById(ctx, sessionId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.messages.DeleteBySessionId(ctx, sessionId); err != nil {
			return err
		}
		return s.sessions.Delete(ctx, sessionId)
	})
}

// SendChat runs one full exchange: persist the user turn, build the
// model context, optionally retrieve documents, persist the reply.
func (s *chatService) SendChat(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	session, err := s.sessions.EnsureExists(ctx, req.ChatSessionId)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Chat)
	if content == "" {
		return nil, errors.New("chat content cannot be empty")
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	// First message titles the session.
	if session.Title == "" {
		session.Title = makeTitle(content)
		if err := s.sessions.Update(ctx, session); err != nil {
			s.logger.Warn("ChatService", "Failed to set session title", map[string]interface{}{
				"session_id": session.Id, "error": err.Error(),
			})
		}
	}

	history, err := s.messages.FindRecentBySessionId(ctx, session.Id, s.historyWindow)
	if err != nil {
		return nil, err
	}

	// Retrieval happens before the user turn is stored so the prompt
	// context never contains the question itself.
	var retrieved *rag.Result
	if req.UseRAG && s.retriever != nil {
		retrieved, err = s.retriever.Retrieve(ctx, content)
		if err != nil {
			s.logger.Warn("ChatService", "Retrieval failed, answering without context", map[string]interface{}{
				"session_id": session.Id, "error": err.Error(),
			})
			retrieved = nil
		}
	}

	prompt := content
	if retrieved != nil && retrieved.Context != "" {
		prompt = rag.BuildPrompt(retrieved.Context, content)
	}

	llmHistory := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		llmHistory = append(llmHistory, llm.Message{Role: msg.Role, Content: msg.Chat})
	}
	llmHistory = append(llmHistory, llm.Message{Role: entity.RoleUser, Content: prompt})

	answer, err := s.llmProvider.Chat(ctx, llmHistory, llm.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}

	now := time.Now()
	userMsg := &entity.ChatMessage{
		Id:            uuid.New(),
		Chat:          content,
		Role:          entity.RoleUser,
		ChatSessionId: session.Id,
		Model:         model,
		UsedRAG:       req.UseRAG,
		CreatedAt:     now,
	}
	assistantMsg := &entity.ChatMessage{
		Id:            uuid.New(),
		Chat:          answer,
		Role:          entity.RoleAssistant,
		ChatSessionId: session.Id,
		Model:         model,
		UsedRAG:       req.UseRAG,
		CreatedAt:     now.Add(time.Millisecond),
	}

	var sources []dto.SourceDTO
	if retrieved != nil && len(retrieved.Sources) > 0 {
		for _, src := range retrieved.Sources {
			docId, err := uuid.Parse(src.DocumentId)
			if err != nil {
				continue
			}
			sources = append(sources, dto.SourceDTO{
				DocumentId: docId,
				FileName:   src.FileName,
				Score:      src.Score,
			})
		}
		if data, err := json.Marshal(sources); err == nil {
			assistantMsg.Sources = data
		}
	}

	// Store both turns atomically, a reply without its question is
	// worse than neither.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		return tx.Create(assistantMsg).Error
	})
	if err != nil {
		return nil, err
	}

	return &dto.SendChatResponse{
		ChatSessionId:    session.Id,
		ChatSessionTitle: session.Title,
		Sent: &dto.SendChatResponseChat{
			Id:        userMsg.Id,
			Chat:      userMsg.Chat,
			Role:      userMsg.Role,
			CreatedAt: userMsg.CreatedAt,
		},
		Reply: &dto.SendChatResponseChat{
			Id:        assistantMsg.Id,
			Chat:      assistantMsg.Chat,
			Role:      assistantMsg.Role,
			Sources:   sources,
			CreatedAt: assistantMsg.CreatedAt,
		},
	}, nil
}

func (s *chatService) ProcessMessage(ctx context.Context, sessionID uuid.UUID, content, model string, useRAG bool) (*ws.ReplyFrame, error) {
	// Remember the socket's last requested model and retrieval toggle so
	// a frame that omits them reuses the previous choice.
	if state, ok := s.liveSessions.Get(sessionID.String()); ok {
		if model == "" {
			model = state.Model
		}
	}
	s.liveSessions.Save(&memory.SessionState{
		SessionID: sessionID.String(),
		Model:     model,
		UseRAG:    useRAG,
	})

	resp, err := s.SendChat(ctx, &dto.SendChatRequest{
		ChatSessionId: sessionID,
		Chat:          content,
		Model:         model,
		UseRAG:        useRAG,
	})
	if err != nil {
		return nil, err
	}

	return &ws.ReplyFrame{
		Type:           ws.FrameTypeMessage,
		Content:        resp.Reply.Chat,
		ConversationID: sessionID.String(),
		Timestamp:      resp.Reply.CreatedAt.UTC(),
	}, nil
}

func makeTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}
