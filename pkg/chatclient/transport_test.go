package chatclient

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type readResult struct {
	data []byte
	err  error
}

type fakeConn struct {
	reads  chan readResult
	writes chan []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan readResult, 16),
		writes: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		return websocket.TextMessage, r.data, r.err
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case c.writes <- data:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type dialResult struct {
	conn Conn
	err  error
}

type fakeDialer struct {
	mu     sync.Mutex
	script []dialResult
	calls  int
	dialed chan dialResult
}

func newFakeDialer(script ...dialResult) *fakeDialer {
	return &fakeDialer{script: script, dialed: make(chan dialResult, 16)}
}

func (d *fakeDialer) Dial(rawURL string) (Conn, error) {
	d.mu.Lock()
	idx := d.calls
	if idx >= len(d.script) {
		idx = len(d.script) - 1
	}
	d.calls++
	r := d.script[idx]
	d.mu.Unlock()
	d.dialed <- r
	return r.conn, r.err
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type scheduledTimer struct {
	delay    time.Duration
	fn       func()
	canceled *atomic.Bool
}

type fakeTimer struct {
	ch chan scheduledTimer
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan scheduledTimer, 16)}
}

func (ft *fakeTimer) Timer(d time.Duration, fn func()) func() {
	st := scheduledTimer{delay: d, fn: fn, canceled: &atomic.Bool{}}
	ft.ch <- st
	return func() { st.canceled.Store(true) }
}

func (ft *fakeTimer) next(t *testing.T) scheduledTimer {
	t.Helper()
	select {
	case st := <-ft.ch:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect timer scheduled")
		return scheduledTimer{}
	}
}

func (ft *fakeTimer) expectNone(t *testing.T) {
	t.Helper()
	select {
	case st := <-ft.ch:
		t.Fatalf("unexpected timer scheduled with delay %s", st.delay)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitEvent(t *testing.T, tr *Transport, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func newTestTransport(d Dialer, ft *fakeTimer) *Transport {
	return NewTransport(Options{
		BaseURL: "http://localhost:3000",
		Dialer:  d,
		Timer:   ft.Timer,
	})
}

func TestBackoffScheduleAndExhaustion(t *testing.T) {
	dialer := newFakeDialer(dialResult{err: errors.New("refused")})
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	tr.Connect()

	wantDelays := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	for i, want := range wantDelays {
		st := ft.next(t)
		if st.delay != want {
			t.Fatalf("attempt %d: delay = %s, want %s", i+1, st.delay, want)
		}
		st.fn()
	}

	ev := waitEvent(t, tr, EventFatal)
	if ev.Text == "" {
		t.Error("fatal event carries no message")
	}
	ft.expectNone(t)

	if got := dialer.callCount(); got != 6 {
		t.Errorf("dial calls = %d, want 6 (initial + 5 retries)", got)
	}
	if tr.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", tr.State())
	}
}

func TestAttemptCounterResetsOnOpen(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(
		dialResult{err: errors.New("refused")},
		dialResult{err: errors.New("refused")},
		dialResult{conn: conn},
	)
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	tr.Connect()
	if st := ft.next(t); st.delay != time.Second {
		t.Fatalf("first delay = %s, want 1s", st.delay)
	} else {
		st.fn()
	}
	if st := ft.next(t); st.delay != 2*time.Second {
		t.Fatalf("second delay = %s, want 2s", st.delay)
	} else {
		st.fn()
	}
	waitEvent(t, tr, EventConnected)

	// Abnormal close after a successful open: backoff starts over at base.
	conn.reads <- readResult{err: &websocket.CloseError{Code: websocket.CloseGoingAway}}
	if st := ft.next(t); st.delay != time.Second {
		t.Errorf("post-open delay = %s, want 1s (counter reset)", st.delay)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(dialResult{conn: conn})
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	err := tr.Send(Outbound{Type: TypeMessage, Content: "hello"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	waitEvent(t, tr, EventNotice)

	// Send triggered exactly one connect as a recovery side effect.
	waitEvent(t, tr, EventConnected)
	if got := dialer.callCount(); got != 1 {
		t.Errorf("dial calls = %d, want 1", got)
	}

	// The failed message was dropped, not queued for redelivery.
	select {
	case data := <-conn.writes:
		t.Errorf("unexpected write after reconnect: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNormalClosureSuppressesReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(dialResult{conn: conn})
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	tr.Connect()
	waitEvent(t, tr, EventConnected)

	conn.reads <- readResult{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
	ev := waitEvent(t, tr, EventDisconnected)
	if ev.Code != websocket.CloseNormalClosure {
		t.Errorf("close code = %d, want 1000", ev.Code)
	}
	ft.expectNone(t)
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	dialer := newFakeDialer(dialResult{err: errors.New("refused")})
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	tr.Connect()
	st := ft.next(t)
	dialsBefore := dialer.callCount()

	tr.Disconnect()
	if !st.canceled.Load() {
		t.Error("pending reconnect timer was not canceled")
	}

	// Even if the timer races the cancel and fires, the stale generation
	// guard must prevent a new dial.
	st.fn()
	time.Sleep(100 * time.Millisecond)
	if got := dialer.callCount(); got != dialsBefore {
		t.Errorf("dial calls after Disconnect = %d, want %d", got, dialsBefore)
	}
}

func TestConnectIsNoOpWhileActive(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(dialResult{conn: conn})
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	tr.Connect()
	tr.Connect()

	time.Sleep(100 * time.Millisecond)
	if got := dialer.callCount(); got != 1 {
		t.Errorf("dial calls = %d, want 1", got)
	}
}

func TestSessionIDStableAcrossReconnects(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(
		dialResult{err: errors.New("refused")},
		dialResult{conn: conn},
	)
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	id := tr.SessionID()
	if id == "" {
		t.Fatal("empty session id")
	}

	tr.Connect()
	st := ft.next(t)
	st.fn()
	waitEvent(t, tr, EventConnected)

	if tr.SessionID() != id {
		t.Errorf("session id changed across reconnect: %s != %s", tr.SessionID(), id)
	}
}

func TestInboundFallbackDecode(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(dialResult{conn: conn})
	ft := newFakeTimer()
	tr := newTestTransport(dialer, ft)

	tr.Connect()
	waitEvent(t, tr, EventConnected)

	conn.reads <- readResult{data: []byte("plain text not json")}
	ev := waitEvent(t, tr, EventMessage)
	if ev.Inbound.Type != TypeMessage {
		t.Errorf("type = %q, want %q", ev.Inbound.Type, TypeMessage)
	}
	if ev.Inbound.Content != "plain text not json" {
		t.Errorf("content = %q, want raw frame text", ev.Inbound.Content)
	}
}

func TestEndpointURLSchemeMirrorsBase(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:3000", "ws://localhost:3000/ws/chat/"},
		{"https://assistant.example.com", "wss://assistant.example.com/ws/chat/"},
	}
	for _, tt := range tests {
		tr := NewTransport(Options{BaseURL: tt.base, Dialer: newFakeDialer(dialResult{err: errors.New("x")}), Timer: newFakeTimer().Timer})
		got, err := tr.endpointURL()
		if err != nil {
			t.Fatalf("endpointURL(%q): %v", tt.base, err)
		}
		want := tt.want + tr.SessionID()
		if got != want {
			t.Errorf("endpointURL(%q) = %q, want %q", tt.base, got, want)
		}
	}
}
