package chatclient

import "encoding/json"

// Envelope type discriminators shared with the server.
const (
	TypeMessage = "message"
	TypeStats   = "stats"
	TypeError   = "error"
)

// Outbound is the envelope sent over the transport for a user message.
// It is immutable once constructed.
type Outbound struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	UseRAG    bool   `json:"use_rag"`
	Timestamp string `json:"timestamp"`
}

// Inbound is the envelope received from the server, a union over Type.
type Inbound struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`

	// Stats variant fields. Absent fields decode to zero.
	ActiveModels  int `json:"active_models,omitempty"`
	DocCount      int `json:"doc_count,omitempty"`
	Conversations int `json:"conversations,omitempty"`
}

// Stats is the aggregate counter snapshot cached by the dispatcher.
type Stats struct {
	ActiveModels  int `json:"active_models"`
	DocCount      int `json:"doc_count"`
	Conversations int `json:"conversations"`
}

// DecodeInbound parses a raw text frame into an Inbound envelope.
// A frame that is not a structured envelope is treated as the degenerate
// message variant carrying the raw text. This is a compatibility policy,
// not an error: the server is allowed to send plain text.
func DecodeInbound(raw []byte) Inbound {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		return Inbound{Type: TypeMessage, Content: string(raw)}
	}
	return in
}

func (in Inbound) stats() Stats {
	return Stats{
		ActiveModels:  in.ActiveModels,
		DocCount:      in.DocCount,
		Conversations: in.Conversations,
	}
}
