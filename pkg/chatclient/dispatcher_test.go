package chatclient

import (
	"errors"
	"testing"
	"time"
)

type recordedNotice struct {
	text string
	ttl  time.Duration
}

type fakeSink struct {
	user      []string
	assistant []string
	stats     []Stats
	notices   []recordedNotice
}

func (s *fakeSink) RenderUser(content string, ts time.Time)      { s.user = append(s.user, content) }
func (s *fakeSink) RenderAssistant(content string, ts time.Time) { s.assistant = append(s.assistant, content) }
func (s *fakeSink) StatsUpdated(st Stats)                        { s.stats = append(s.stats, st) }
func (s *fakeSink) Notify(text string, ttl time.Duration) {
	s.notices = append(s.notices, recordedNotice{text: text, ttl: ttl})
}

type fakeSender struct {
	sent []Outbound
	err  error
}

func (s *fakeSender) Send(env Outbound) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

func TestComposeAndSend(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantContent string
		wantSends   int
		wantErr     error
	}{
		{name: "plain text", input: "hello there", wantContent: "hello there", wantSends: 1},
		{name: "surrounding whitespace trimmed", input: "  question?  \n", wantContent: "question?", wantSends: 1},
		{name: "empty", input: "", wantSends: 0, wantErr: ErrEmptyMessage},
		{name: "whitespace only", input: "   ", wantSends: 0, wantErr: ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			sink := &fakeSink{}
			d := NewDispatcher(sender, sink, nil)
			d.Model = "llama3"
			d.UseRAG = true

			err := d.ComposeAndSend(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(sender.sent) != tt.wantSends {
				t.Fatalf("sends = %d, want %d", len(sender.sent), tt.wantSends)
			}

			if tt.wantSends == 0 {
				if len(sink.notices) != 1 {
					t.Errorf("notices = %d, want 1 local validation error", len(sink.notices))
				}
				if len(sink.user) != 0 {
					t.Errorf("user renders = %d, want 0", len(sink.user))
				}
				return
			}

			env := sender.sent[0]
			if env.Type != TypeMessage {
				t.Errorf("type = %q, want %q", env.Type, TypeMessage)
			}
			if env.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", env.Content, tt.wantContent)
			}
			if env.Model != "llama3" || !env.UseRAG {
				t.Errorf("options not carried: model=%q use_rag=%v", env.Model, env.UseRAG)
			}
			if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
				t.Errorf("timestamp %q is not RFC 3339: %v", env.Timestamp, err)
			}

			// Optimistic local echo: rendered exactly once, before any
			// server acknowledgment could exist.
			if len(sink.user) != 1 || sink.user[0] != tt.wantContent {
				t.Errorf("user echo = %v, want one entry %q", sink.user, tt.wantContent)
			}
		})
	}
}

func TestComposeAndSendEchoesEvenWhenSendFails(t *testing.T) {
	sender := &fakeSender{err: ErrNotConnected}
	sink := &fakeSink{}
	d := NewDispatcher(sender, sink, nil)

	err := d.ComposeAndSend("offline message")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if len(sink.user) != 1 {
		t.Errorf("user echo = %d renders, want 1 (echo precedes send)", len(sink.user))
	}
}

func TestDispatchVariants(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeSink{}
	d := NewDispatcher(sender, sink, nil)

	d.Dispatch(Inbound{Type: TypeMessage, Content: "assistant reply"})
	if len(sink.assistant) != 1 || sink.assistant[0] != "assistant reply" {
		t.Errorf("assistant renders = %v", sink.assistant)
	}

	d.Dispatch(Inbound{Type: TypeError, Message: "model unavailable"})
	if len(sink.notices) != 1 || sink.notices[0].text != "model unavailable" {
		t.Fatalf("notices = %v", sink.notices)
	}
	if sink.notices[0].ttl != NoticeTTL {
		t.Errorf("notice ttl = %s, want %s", sink.notices[0].ttl, NoticeTTL)
	}

	// Unknown variants are ignored for forward compatibility.
	d.Dispatch(Inbound{Type: "typing_indicator"})
	if len(sink.assistant) != 1 || len(sink.notices) != 1 || len(sink.stats) != 0 {
		t.Error("unknown variant produced a side effect")
	}
}

func TestStatsLastWriterWins(t *testing.T) {
	sender := &fakeSender{}
	sink := &fakeSink{}
	d := NewDispatcher(sender, sink, nil)

	d.Dispatch(Inbound{Type: TypeStats, ActiveModels: 2, DocCount: 10})
	if got := d.Stats(); got.ActiveModels != 2 || got.DocCount != 10 || got.Conversations != 0 {
		t.Fatalf("stats = %+v, want {2 10 0}", got)
	}

	// A later poll overwrites the snapshot wholesale, no merge.
	d.ApplyStats(Stats{ActiveModels: 3, DocCount: 4, Conversations: 7})
	if got := d.Stats(); got != (Stats{ActiveModels: 3, DocCount: 4, Conversations: 7}) {
		t.Fatalf("stats = %+v, want {3 4 7}", got)
	}
	if len(sink.stats) != 2 {
		t.Errorf("stats updates = %d, want 2", len(sink.stats))
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "structured message",
			raw:  `{"type":"message","content":"hi","conversation_id":"abc"}`,
			want: Inbound{Type: TypeMessage, Content: "hi", ConversationID: "abc"},
		},
		{
			name: "stats envelope",
			raw:  `{"type":"stats","active_models":2,"doc_count":10}`,
			want: Inbound{Type: TypeStats, ActiveModels: 2, DocCount: 10},
		},
		{
			name: "plain text falls back",
			raw:  "plain text not json",
			want: Inbound{Type: TypeMessage, Content: "plain text not json"},
		},
		{
			name: "json without type falls back",
			raw:  `{"foo":1}`,
			want: Inbound{Type: TypeMessage, Content: `{"foo":1}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeInbound([]byte(tt.raw))
			if got != tt.want {
				t.Errorf("DecodeInbound(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
