package service

import (
	"context"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/contract"
	ws "ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/llm"
)

type IStatsService interface {
	GetStats(ctx context.Context) (*dto.StatsResponse, error)

	// Snapshot feeds the websocket stats push, see ws.StatsProvider.
	Snapshot(ctx context.Context) (*ws.StatsFrame, error)
}

type statsService struct {
	sessions    contract.ChatSessionRepository
	documents   contract.DocumentRepository
	llmProvider llm.LLMProvider
	logger      logger.ILogger
}

func NewStatsService(
	sessions contract.ChatSessionRepository,
	documents contract.DocumentRepository,
	llmProvider llm.LLMProvider,
	log logger.ILogger,
) IStatsService {
	return &statsService{
		sessions:    sessions,
		documents:   documents,
		llmProvider: llmProvider,
		logger:      log,
	}
}

func (s *statsService) GetStats(ctx context.Context) (*dto.StatsResponse, error) {
	conversations, err := s.sessions.Count(ctx)
	if err != nil {
		return nil, err
	}

	docCount, err := s.documents.CountIndexed(ctx)
	if err != nil {
		return nil, err
	}

	// Model listing talks to the LLM backend, degrade to zero instead of
	// failing the whole endpoint when it is down.
	activeModels := 0
	if models, err := s.llmProvider.ListModels(ctx); err == nil {
		activeModels = len(models)
	} else {
		s.logger.Warn("StatsService", "Failed to list models", map[string]interface{}{"error": err.Error()})
	}

	return &dto.StatsResponse{
		ActiveModels:  activeModels,
		DocCount:      int(docCount),
		Conversations: int(conversations),
	}, nil
}

func (s *statsService) Snapshot(ctx context.Context) (*ws.StatsFrame, error) {
	stats, err := s.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &ws.StatsFrame{
		Type:          ws.FrameTypeStats,
		ActiveModels:  stats.ActiveModels,
		DocCount:      stats.DocCount,
		Conversations: stats.Conversations,
	}, nil
}
