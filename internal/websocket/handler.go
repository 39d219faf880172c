package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs attaches a websocket connection to a chat session and runs the
// pumps until the peer disconnects.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID uuid.UUID, processor ChatProcessor, stats StatsProvider) {
	client := &Client{
		Hub:       hub,
		Conn:      c,
		SessionID: sessionID,
		Send:      make(chan []byte, 256),
		processor: processor,
		stats:     stats,
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
