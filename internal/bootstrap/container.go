package bootstrap

import (
	"context"
	"fmt"
	"log"

	"ai-assistant-be/internal/config"
	"ai-assistant-be/internal/controller"
	"ai-assistant-be/internal/handler"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/pkg/serverutils"
	"ai-assistant-be/internal/repository/implementation"
	"ai-assistant-be/internal/repository/memory"
	"ai-assistant-be/internal/service"
	"ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/events"
	"ai-assistant-be/pkg/llm/factory"
	"ai-assistant-be/pkg/rag"

	pkgNats "ai-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController     controller.IAuthController
	ChatController     controller.IChatController
	StatsController    controller.IStatsController
	DocumentController controller.IDocumentController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	NatsSubscriber  *pkgNats.Subscriber

	// WebSockets
	WebSocketHub  *websocket.Hub
	ChatWsHandler *handler.ChatWsHandler
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	embeddingProvider := embedding.NewOllamaProvider(
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.EmbeddingModel,
	)
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// Initialize In-Memory Session Storage
	liveSessions := memory.NewSessionRepository()

	// 4. Infrastructure
	// NATS
	natsPub, err := pkgNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	natsSub, err := pkgNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		natsSub = nil
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// Indexed documents are announced over the event bus. One instance
	// picks the event up (shared durable), its hub fans the notice out to
	// the whole cluster through Redis.
	if natsSub != nil {
		subject := "events." + events.EventDocumentIndexed
		err := natsSub.Subscribe(subject, "ws-notifier", func(ctx context.Context, event events.Event) error {
			fileName, _ := event.Payload()["file_name"].(string)
			wsHub.Broadcast(websocket.NoticeFrame{
				Type:    websocket.FrameTypeNotice,
				Message: fmt.Sprintf("Document %q is ready for questions", fileName),
			})
			return nil
		})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to %s: %v", subject, err)
		}
	}

	// 5. Repositories
	sessionRepo := implementation.NewChatSessionRepository(db)
	messageRepo := implementation.NewChatMessageRepository(db)
	documentRepo := implementation.NewDocumentRepository(db)
	userRepo := implementation.NewUserRepository(db)

	// 6. Services
	retriever := rag.NewRetriever(embeddingProvider, documentRepo, cfg.Ai.RetrievalTopK, cfg.Ai.MinScore)

	chatService := service.NewChatService(
		db,
		sessionRepo,
		messageRepo,
		liveSessions,
		llmProvider,
		retriever,
		sysLogger,
		cfg.Ai.LLMModel,
		cfg.Ai.HistoryWindow,
	)
	statsService := service.NewStatsService(sessionRepo, documentRepo, llmProvider, sysLogger)
	documentService := service.NewDocumentService(
		documentRepo,
		pubSub,
		cfg.App.IngestTopic,
		sysLogger,
		cfg.Upload.Dir,
		int64(cfg.Upload.MaxSizeBytes),
	)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.IngestTopic,
		documentRepo,
		embeddingProvider,
		natsPub,
		wsHub,
		sysLogger,
		cfg.Upload.ChunkSize,
		cfg.Upload.ChunkOverlap,
	)
	authService := service.NewAuthService(userRepo, cfg.Auth.JWTSecret)

	// 7. Controllers
	authMw := serverutils.JwtMiddleware(cfg.Auth.JWTSecret)
	return &Container{
		AuthController:     controller.NewAuthController(authService),
		ChatController:     controller.NewChatController(chatService, authMw),
		StatsController:    controller.NewStatsController(statsService),
		DocumentController: controller.NewDocumentController(documentService, authMw),

		ConsumerService: consumerService,
		NatsSubscriber:  natsSub,

		WebSocketHub:  wsHub,
		ChatWsHandler: handler.NewChatWsHandler(wsHub, chatService, statsService, cfg.Auth.JWTSecret, wsLogger),
	}
}
