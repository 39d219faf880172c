package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func newTestHub() *Hub {
	hub := NewHub(nil, nopLogger{})
	go hub.Run()
	return hub
}

func registered(hub *Hub, sid uuid.UUID) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	_, ok := hub.clients[sid]
	return ok
}

func TestSendToSessionReachesEveryTab(t *testing.T) {
	hub := newTestHub()
	sid := uuid.New()

	tabs := []*Client{
		{Hub: hub, SessionID: sid, Send: make(chan []byte, 8)},
		{Hub: hub, SessionID: sid, Send: make(chan []byte, 8)},
	}
	for _, c := range tabs {
		hub.register <- c
	}
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[sid]) == len(tabs)
	}, time.Second, 10*time.Millisecond)

	hub.SendToSession(sid, ReplyFrame{Type: FrameTypeMessage, Content: "hello"})

	for _, c := range tabs {
		select {
		case data := <-c.Send:
			var reply ReplyFrame
			require.NoError(t, json.Unmarshal(data, &reply))
			assert.Equal(t, "hello", reply.Content)
		case <-time.After(time.Second):
			t.Fatal("tab did not receive the frame")
		}
	}
}

func TestFullBufferDisconnectsClientWithoutPanic(t *testing.T) {
	hub := newTestHub()
	sid := uuid.New()

	stuck := &Client{Hub: hub, SessionID: sid, Send: make(chan []byte, 1)}
	stuck.Send <- []byte("backlog")

	hub.register <- stuck
	require.Eventually(t, func() bool { return registered(hub, sid) }, time.Second, 10*time.Millisecond)

	// The buffer is full, so delivery drops the client instead of blocking.
	hub.SendToSession(sid, ReplyFrame{Type: FrameTypeMessage, Content: "overflow"})

	require.Eventually(t, func() bool { return !registered(hub, sid) }, time.Second, 10*time.Millisecond)

	// Send was closed exactly once, by the unregister handler.
	<-stuck.Send
	_, open := <-stuck.Send
	assert.False(t, open)

	// The read pump unregisters again on its way out. A client that is
	// already gone must be a no-op, not a double close.
	hub.unregister <- stuck

	// The hub goroutine survived, another session still gets served.
	other := &Client{Hub: hub, SessionID: uuid.New(), Send: make(chan []byte, 8)}
	hub.register <- other
	hub.SendToSession(other.SessionID, ReplyFrame{Type: FrameTypeMessage, Content: "still alive"})

	select {
	case <-other.Send:
	case <-time.After(time.Second):
		t.Fatal("hub stopped delivering after dropping a slow client")
	}
}

func TestBroadcastDropsOnlySlowClients(t *testing.T) {
	hub := newTestHub()

	healthy := &Client{Hub: hub, SessionID: uuid.New(), Send: make(chan []byte, 8)}
	stuck := &Client{Hub: hub, SessionID: uuid.New(), Send: make(chan []byte, 1)}
	stuck.Send <- []byte("backlog")

	hub.register <- healthy
	hub.register <- stuck
	require.Eventually(t, func() bool {
		return registered(hub, healthy.SessionID) && registered(hub, stuck.SessionID)
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(NoticeFrame{Type: FrameTypeNotice, Message: "maintenance"})

	require.Eventually(t, func() bool { return !registered(hub, stuck.SessionID) }, time.Second, 10*time.Millisecond)
	assert.True(t, registered(hub, healthy.SessionID))

	select {
	case data := <-healthy.Send:
		var notice NoticeFrame
		require.NoError(t, json.Unmarshal(data, &notice))
		assert.Equal(t, "maintenance", notice.Message)
	case <-time.After(time.Second):
		t.Fatal("healthy client did not receive the broadcast")
	}
}

func TestClusterPayloadSkipsOwnOrigin(t *testing.T) {
	hub := newTestHub()
	sid := uuid.New()

	client := &Client{Hub: hub, SessionID: sid, Send: make(chan []byte, 8)}
	hub.register <- client
	require.Eventually(t, func() bool { return registered(hub, sid) }, time.Second, 10*time.Millisecond)

	frame, _ := json.Marshal(ReplyFrame{Type: FrameTypeMessage, Content: "echo"})

	own, _ := json.Marshal(clusterPayload{
		Origin:          hub.instanceID,
		TargetSessionID: sid.String(),
		Message:         frame,
	})
	hub.handleClusterPayload(own)

	select {
	case <-client.Send:
		t.Fatal("frame published by this instance was delivered twice")
	case <-time.After(50 * time.Millisecond):
	}

	remote, _ := json.Marshal(clusterPayload{
		Origin:          uuid.NewString(),
		TargetSessionID: sid.String(),
		Message:         frame,
	})
	hub.handleClusterPayload(remote)

	select {
	case data := <-client.Send:
		var reply ReplyFrame
		require.NoError(t, json.Unmarshal(data, &reply))
		assert.Equal(t, "echo", reply.Content)
	case <-time.After(time.Second):
		t.Fatal("frame from another instance was not delivered")
	}
}
