package websocket

import "time"

const (
	FrameTypeMessage = "message"
	FrameTypeStats   = "stats"
	FrameTypeError   = "error"
	FrameTypeNotice  = "notice"
)

// ChatFrame is the inbound payload a browser or CLI sends over the
// socket. UseAgent is an older alias for UseRAG that some clients still
// send, either flag turns retrieval on.
type ChatFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Model    string `json:"model,omitempty"`
	UseRAG   bool   `json:"use_rag,omitempty"`
	UseAgent bool   `json:"use_agent,omitempty"`
}

func (f ChatFrame) WantsRAG() bool {
	return f.UseRAG || f.UseAgent
}

// ReplyFrame is the assistant answer pushed back on the same socket.
type ReplyFrame struct {
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// ErrorFrame reports a recoverable failure without closing the socket.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NoticeFrame carries an informational banner, e.g. that a document
// finished indexing.
type NoticeFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatsFrame mirrors the REST stats payload so connected clients get
// fresh numbers without polling.
type StatsFrame struct {
	Type          string `json:"type"`
	ActiveModels  int    `json:"active_models"`
	DocCount      int    `json:"doc_count"`
	Conversations int    `json:"conversations"`
}
