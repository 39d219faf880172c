package chatclient

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyMessage is returned by ComposeAndSend for empty or
// whitespace-only input. No network call is made.
var ErrEmptyMessage = errors.New("chatclient: message is empty")

// Sender is what the dispatcher needs from the transport.
type Sender interface {
	Send(env Outbound) error
}

// Sink receives the UI side effects of dispatching. Implementations must
// not block; they are called from the event loop goroutine.
type Sink interface {
	RenderUser(content string, ts time.Time)
	RenderAssistant(content string, ts time.Time)
	StatsUpdated(s Stats)
	Notify(text string, ttl time.Duration)
}

// Dispatcher translates user intent into outbound envelopes and routes
// inbound envelopes to sink effects. It is stateless per call except for
// the cached last-known stats snapshot, which is overwritten in place.
type Dispatcher struct {
	sender Sender
	sink   Sink
	logger *zap.Logger

	// Envelope options for outgoing messages.
	Model  string
	UseRAG bool

	now func() time.Time

	mu    sync.Mutex
	stats Stats
}

func NewDispatcher(sender Sender, sink Sink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender: sender,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// ComposeAndSend validates the text, optimistically renders the user's own
// message, and sends exactly one envelope. There is no reconciliation
// against a server echo; the protocol never confirms receipt of the user's
// own text.
func (d *Dispatcher) ComposeAndSend(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		d.sink.Notify("Message cannot be empty.", NoticeTTL)
		return ErrEmptyMessage
	}

	ts := d.now().UTC()
	d.sink.RenderUser(trimmed, ts)

	env := Outbound{
		Type:      TypeMessage,
		Content:   trimmed,
		Model:     d.Model,
		UseRAG:    d.UseRAG,
		Timestamp: ts.Format(time.RFC3339),
	}
	return d.sender.Send(env)
}

// Dispatch routes one inbound envelope. Unrecognized variants are logged
// and ignored so newer servers stay compatible with older clients.
func (d *Dispatcher) Dispatch(in Inbound) {
	switch in.Type {
	case TypeMessage:
		d.sink.RenderAssistant(in.Content, d.parseTimestamp(in.Timestamp))
	case TypeStats:
		d.ApplyStats(in.stats())
	case TypeError:
		d.sink.Notify(in.Message, NoticeTTL)
	default:
		d.logger.Info("ignoring unknown envelope variant", zap.String("type", in.Type))
	}
}

// ApplyStats overwrites the cached snapshot, last writer wins. Transport
// pushed stats and poller-fetched stats funnel through the same path.
func (d *Dispatcher) ApplyStats(s Stats) {
	d.mu.Lock()
	d.stats = s
	d.mu.Unlock()
	d.sink.StatsUpdated(s)
}

// Stats returns the last-known counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) parseTimestamp(s string) time.Time {
	if s == "" {
		return d.now().UTC()
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return d.now().UTC()
	}
	return ts
}
