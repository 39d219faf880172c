package handler

import (
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/pkg/serverutils"
	"ai-assistant-be/internal/service"
	internalWS "ai-assistant-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ChatWsHandler upgrades chat websocket requests and hands them to the hub.
type ChatWsHandler struct {
	hub       *internalWS.Hub
	chat      service.IChatService
	stats     service.IStatsService
	jwtSecret string
	logger    logger.ILogger
}

func NewChatWsHandler(hub *internalWS.Hub, chat service.IChatService, stats service.IStatsService, jwtSecret string, log logger.ILogger) *ChatWsHandler {
	return &ChatWsHandler{
		hub:       hub,
		chat:      chat,
		stats:     stats,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs handles websocket requests from the peer. The session id comes
// from the path so a client can mint one locally and connect straight
// away. A token is accepted but not required, chat sessions opened from
// the public widget are anonymous.
func (h *ChatWsHandler) ServeWs(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("session_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}

	// Query param token (browser standard), falls back to the header.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr != "" {
		if _, err := serverutils.ParseToken(tokenStr, h.jwtSecret); err != nil {
			h.logger.Warn("ChatWsHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			internalWS.ServeWs(h.hub, conn, sessionID, h.chat, h.stats)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *ChatWsHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/ws/chat/:session_id", h.ServeWs)
}
