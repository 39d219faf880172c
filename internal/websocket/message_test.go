package websocket

import (
	"encoding/json"
	"testing"
)

func TestChatFrameDecode(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantContent string
		wantModel   string
		wantRAG     bool
	}{
		{
			name:        "full frame",
			raw:         `{"type":"message","content":"hi","model":"llama3","use_rag":true}`,
			wantContent: "hi",
			wantModel:   "llama3",
			wantRAG:     true,
		},
		{
			name:        "legacy use_agent alias",
			raw:         `{"type":"message","content":"hi","use_agent":true}`,
			wantContent: "hi",
			wantRAG:     true,
		},
		{
			name:        "retrieval off by default",
			raw:         `{"type":"message","content":"hi"}`,
			wantContent: "hi",
			wantRAG:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame ChatFrame
			if err := json.Unmarshal([]byte(tt.raw), &frame); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if frame.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", frame.Content, tt.wantContent)
			}
			if frame.Model != tt.wantModel {
				t.Errorf("model = %q, want %q", frame.Model, tt.wantModel)
			}
			if frame.WantsRAG() != tt.wantRAG {
				t.Errorf("WantsRAG() = %v, want %v", frame.WantsRAG(), tt.wantRAG)
			}
		})
	}
}

func TestReplyFrameRoundTrip(t *testing.T) {
	raw := `{"type":"message","content":"answer","conversation_id":"abc","timestamp":"2025-06-01T10:00:00Z"}`
	var frame ReplyFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != FrameTypeMessage || frame.ConversationID != "abc" {
		t.Errorf("unexpected frame: %+v", frame)
	}
}
