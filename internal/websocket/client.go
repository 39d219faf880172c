package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	processTimeout = 150 * time.Second
)

// ChatProcessor turns one inbound user message into an assistant reply.
// The chat service implements this.
type ChatProcessor interface {
	ProcessMessage(ctx context.Context, sessionID uuid.UUID, content, model string, useRAG bool) (*ReplyFrame, error)
}

// StatsProvider supplies the numbers pushed to clients after activity.
type StatsProvider interface {
	Snapshot(ctx context.Context) (*StatsFrame, error)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// SessionID is the conversation this socket is attached to.
	SessionID uuid.UUID

	// Buffered channel of outbound messages.
	Send chan []byte

	processor ChatProcessor
	stats     StatsProvider
}

// readPump pumps messages from the websocket connection to the chat
// processor and queues replies on the hub.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket", "Unexpected close", map[string]interface{}{
					"session_id": c.SessionID, "error": err.Error(),
				})
			}
			break
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var frame ChatFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		// Bare text is accepted as a plain chat message.
		frame = ChatFrame{Type: FrameTypeMessage, Content: string(raw)}
	}

	if frame.Type != FrameTypeMessage {
		c.Hub.logger.Warn("WebSocket", "Ignoring unsupported frame type", map[string]interface{}{
			"session_id": c.SessionID, "type": frame.Type,
		})
		return
	}

	if strings.TrimSpace(frame.Content) == "" {
		c.sendFrame(ErrorFrame{Type: FrameTypeError, Message: "Message content cannot be empty"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	reply, err := c.processor.ProcessMessage(ctx, c.SessionID, frame.Content, frame.Model, frame.WantsRAG())
	if err != nil {
		c.Hub.logger.Error("WebSocket", "Failed to process message", map[string]interface{}{
			"session_id": c.SessionID, "error": err.Error(),
		})
		c.sendFrame(ErrorFrame{Type: FrameTypeError, Message: "Failed to generate a response, please retry"})
		return
	}

	// Reply goes through the hub so every tab on the session sees it.
	c.Hub.SendToSession(c.SessionID, reply)

	if c.stats != nil {
		if snapshot, err := c.stats.Snapshot(ctx); err == nil {
			c.Hub.Broadcast(snapshot)
		}
	}
}

func (c *Client) sendFrame(frame interface{}) {
	data, _ := json.Marshal(frame)
	select {
	case c.Send <- data:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued frames to the current websocket message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
