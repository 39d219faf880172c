package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-assistant-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// clusterPayload is the envelope relayed between instances over Redis.
// Origin identifies the publishing instance so it can skip its own copy,
// local clients already received the frame directly.
type clusterPayload struct {
	Origin          string          `json:"origin"`
	TargetSessionID string          `json:"target_session_id"`
	Message         json.RawMessage `json:"message"`
}

type Hub struct {
	// Registered clients map: SessionID -> List of Clients (multi-tab)
	clients map[uuid.UUID][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// instanceID tags Redis payloads published by this process.
	instanceID string

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run() {
	// Start Redis Subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
						// Run is the only closer of Send. A client already
						// removed from the map is simply skipped, so a second
						// unregister of the same client is harmless.
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionID]) == 0 {
					delete(h.clients, client.SessionID)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"session_id": client.SessionID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast pushes a frame to ALL connected clients, local and remote.
func (h *Hub) Broadcast(frame interface{}) {
	data, _ := json.Marshal(frame)
	h.deliverAll(data)
	h.publishCluster("*", data)
}

// SendToSession delivers a frame to every client attached to the session.
func (h *Hub) SendToSession(sessionID uuid.UUID, frame interface{}) {
	data, _ := json.Marshal(frame)
	h.deliverLocal(sessionID, data)
	// Publish to Redis so other instances holding the session deliver too
	h.publishCluster(sessionID.String(), data)
}

// deliverLocal queues data on every local client of the session. A client
// whose buffer is full is queued for unregistration instead of having its
// channel closed here, closing is Run's job.
func (h *Hub) deliverLocal(sessionID uuid.UUID, data []byte) {
	var slow []*Client
	h.mu.RLock()
	for _, client := range h.clients[sessionID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()
	h.dropSlow(slow)
}

func (h *Hub) deliverAll(data []byte) {
	var slow []*Client
	h.mu.RLock()
	for _, clients := range h.clients {
		for _, client := range clients {
			select {
			case client.Send <- data:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()
	h.dropSlow(slow)
}

// dropSlow runs after the read lock is released, the unregister handler
// needs the write lock.
func (h *Hub) dropSlow(slow []*Client) {
	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, disconnecting", map[string]interface{}{"session_id": client.SessionID})
		h.unregister <- client
	}
}

func (h *Hub) publishCluster(target string, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, _ := json.Marshal(clusterPayload{
		Origin:          h.instanceID,
		TargetSessionID: target,
		Message:         data,
	})
	h.rdb.Publish(context.Background(), clusterChannel, payload)
}

func (h *Hub) subscribeToRedis() {
	// All instances subscribe to "cluster_events". A payload carries
	// {origin, target_session_id, message}, each instance delivers to the
	// sessions it holds locally.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.handleClusterPayload([]byte(msg.Payload))
	}
}

func (h *Hub) handleClusterPayload(raw []byte) {
	var payload clusterPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("Hub", "Malformed cluster payload", map[string]interface{}{"error": err.Error()})
		return
	}

	// Our own publication, local clients were already served.
	if payload.Origin == h.instanceID {
		return
	}

	if payload.TargetSessionID == "*" {
		h.deliverAll(payload.Message)
		return
	}

	sid, err := uuid.Parse(payload.TargetSessionID)
	if err != nil {
		return
	}
	h.deliverLocal(sid, payload.Message)
}
