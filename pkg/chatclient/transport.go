package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the connection state owned exclusively by the Transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned by Send when the transport is not in the
	// Connected state. The message is dropped, not queued; Send triggers a
	// connect attempt as a recovery side effect.
	ErrNotConnected = errors.New("chatclient: not connected")

	// ErrExhausted marks the terminal state after the reconnect budget is
	// spent. Only an explicit Connect call resumes from it.
	ErrExhausted = errors.New("chatclient: reconnect attempts exhausted")
)

// Conn is the subset of the websocket connection the transport uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the underlying duplex connection. Swappable in tests.
type Dialer interface {
	Dial(rawURL string) (Conn, error)
}

type gorillaDialer struct {
	handshakeTimeout time.Duration
}

func (d gorillaDialer) Dial(rawURL string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TimerFunc schedules fn after d and returns a cancel func. Swappable in
// tests so backoff delays can be asserted without real time.
type TimerFunc func(d time.Duration, fn func()) (cancel func())

func stdTimer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Options configures a Transport. Zero values fall back to defaults.
type Options struct {
	// BaseURL is the http(s) origin of the backend, e.g. "http://localhost:3000".
	// The websocket scheme mirrors it: https dials wss, http dials ws.
	BaseURL string
	// Path is the chat endpoint prefix; the session ID becomes the final
	// path segment. Default "/ws/chat".
	Path string

	MaxAttempts int           // default 5
	BaseDelay   time.Duration // default 1s

	Dialer Dialer
	Timer  TimerFunc
	Logger *zap.Logger
}

// Transport owns exactly one logical realtime connection for one
// client-generated session identifier. It reconnects with exponential
// backoff on abnormal closure and delivers everything it observes as
// tagged events on a single channel, in receive order.
type Transport struct {
	opts      Options
	sessionID string
	events    chan Event

	mu          sync.Mutex
	state       State
	conn        Conn
	attempts    int
	gen         uint64 // connection generation; stale callbacks are ignored
	cancelRetry func()
	exhausted   bool
}

// NewTransport builds a transport with a fresh session identifier.
// The identifier is a v4 UUID, generated once and reused across every
// reconnect for the transport's lifetime.
func NewTransport(opts Options) *Transport {
	if opts.Path == "" {
		opts.Path = "/ws/chat"
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = gorillaDialer{handshakeTimeout: 10 * time.Second}
	}
	if opts.Timer == nil {
		opts.Timer = stdTimer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Transport{
		opts:      opts,
		sessionID: uuid.NewString(),
		events:    make(chan Event, 64),
	}
}

// SessionID returns the conversation identifier for this transport.
func (t *Transport) SessionID() string { return t.sessionID }

// Events returns the channel of transport events. The channel is never
// closed; consumers stop reading after an EventFatal or after Disconnect.
func (t *Transport) Events() <-chan Event { return t.events }

// State returns a read-only projection of the connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect opens the connection if currently Disconnected. It is a no-op
// while Connecting or Connected. An explicit Connect also resumes from the
// exhausted terminal state, with a fresh attempt budget.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return
	}
	if t.exhausted {
		t.exhausted = false
		t.attempts = 0
	}
	t.state = StateConnecting
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	go t.dial(gen)
}

// Send serializes the envelope and writes it on the live connection.
// Outside the Connected state it fails with ErrNotConnected, surfaces a
// notice and triggers Connect; the envelope is dropped, never queued.
func (t *Transport) Send(env Outbound) error {
	t.mu.Lock()
	if t.state != StateConnected || t.conn == nil {
		state := t.state
		t.mu.Unlock()
		t.emit(noticeEvent("Not connected. Reconnecting..."))
		t.opts.Logger.Warn("send while not connected", zap.String("state", state.String()))
		t.Connect()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop observes the paired close and drives the state
		// transition; here we only surface the failure.
		t.emit(noticeEvent("Connection error while sending."))
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Disconnect performs a normal closure. It cancels any pending reconnect
// timer so a retry cannot fire after an intentional shutdown.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.cancelRetry != nil {
		t.cancelRetry()
		t.cancelRetry = nil
	}
	t.gen++ // invalidate in-flight dials and read loops
	conn := t.conn
	t.conn = nil
	wasIdle := t.state == StateDisconnected
	t.state = StateClosing
	t.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		type closeWriter interface {
			WriteControl(messageType int, data []byte, deadline time.Time) error
		}
		if cw, ok := conn.(closeWriter); ok {
			_ = cw.WriteControl(websocket.CloseMessage, msg, deadline)
		} else {
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
		}
		_ = conn.Close()
	}

	t.mu.Lock()
	t.state = StateDisconnected
	t.mu.Unlock()
	if !wasIdle {
		t.emit(Event{Kind: EventDisconnected, Code: websocket.CloseNormalClosure})
	}
}

func (t *Transport) dial(gen uint64) {
	rawURL, err := t.endpointURL()
	if err != nil {
		t.opts.Logger.Error("bad endpoint", zap.Error(err))
		t.handleClose(gen, websocket.CloseAbnormalClosure)
		return
	}

	conn, err := t.opts.Dialer.Dial(rawURL)
	if err != nil {
		t.opts.Logger.Warn("dial failed", zap.String("url", rawURL), zap.Error(err))
		t.handleClose(gen, websocket.CloseAbnormalClosure)
		return
	}

	t.mu.Lock()
	if t.gen != gen || t.state != StateConnecting {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.state = StateConnected
	t.attempts = 0
	t.mu.Unlock()

	t.emit(Event{Kind: EventConnected})
	go t.readLoop(conn, gen)
}

func (t *Transport) readLoop(conn Conn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			t.handleClose(gen, code)
			return
		}
		// Inbound frames are delivered in receive order; decode failures
		// fall back to the raw-text message variant.
		t.emit(Event{Kind: EventMessage, Inbound: DecodeInbound(raw)})
	}
}

// handleClose drives Disconnected and, on abnormal closure, the reconnect
// policy. Normal closure (1000) and closes from stale generations never
// schedule a retry.
func (t *Transport) handleClose(gen uint64, code int) {
	t.mu.Lock()
	if t.gen != gen || t.state == StateClosing {
		t.mu.Unlock()
		return
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.state = StateDisconnected
	if code == websocket.CloseNormalClosure {
		t.mu.Unlock()
		t.emit(Event{Kind: EventDisconnected, Code: code})
		return
	}

	t.attempts++
	if t.attempts > t.opts.MaxAttempts {
		t.exhausted = true
		t.mu.Unlock()
		t.emit(Event{Kind: EventDisconnected, Code: code})
		t.emit(Event{Kind: EventFatal, Text: "Connection lost. Reconnect attempts exhausted; restart to resume."})
		return
	}
	delay := t.opts.BaseDelay << (t.attempts - 1)
	attempt := t.attempts
	t.cancelRetry = t.opts.Timer(delay, func() { t.retry(gen) })
	t.mu.Unlock()

	t.emit(Event{Kind: EventDisconnected, Code: code})
	t.emit(noticeEvent(fmt.Sprintf("Connection lost. Retry %d/%d in %s.", attempt, t.opts.MaxAttempts, delay)))
}

func (t *Transport) retry(gen uint64) {
	t.mu.Lock()
	t.cancelRetry = nil
	if t.gen != gen || t.state != StateDisconnected {
		t.mu.Unlock()
		return
	}
	t.state = StateConnecting
	t.gen++
	next := t.gen
	t.mu.Unlock()

	go t.dial(next)
}

func (t *Transport) endpointURL() (string, error) {
	u, err := url.Parse(t.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + t.opts.Path + "/" + t.sessionID
	return u.String(), nil
}

// emit never blocks; if the consumer falls behind, the oldest semantics are
// preserved by dropping the new event and logging, mirroring the hub's
// full-buffer policy on the server side.
func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.opts.Logger.Warn("event buffer full, dropping event", zap.Int("kind", int(ev.Kind)))
	}
}
