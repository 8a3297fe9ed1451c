package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/message"
	"github.com/nerrad567/commlink/internal/notify"
	"github.com/nerrad567/commlink/internal/transport"
)

const waitTimeout = 5 * time.Second

// =============================================================================
// Helpers
// =============================================================================

// testServer is a WebSocket echo-less backend that records inbound frames.
type testServer struct {
	*httptest.Server
	received chan []byte
	conns    chan *gorillaws.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		received: make(chan []byte, 64),
		conns:    make(chan *gorillaws.Conn, 8),
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.received <- data
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// deadURL returns a ws URL nothing is listening on.
func deadURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()
	return url
}

func testConfig(url string) config.WebSocketConfig {
	return config.WebSocketConfig{
		URL:              url,
		HandshakeTimeout: 5,
		WriteTimeout:     5,
		Reconnect: config.WebSocketReconnectConfig{
			BaseDelay:   1000,
			MaxAttempts: 5,
		},
	}
}

// scheduled is one reconnect timer captured by fakeScheduler.
type scheduled struct {
	delay     time.Duration
	fn        func()
	cancelled atomic.Bool
}

// fakeScheduler captures timers instead of running them.
type fakeScheduler struct {
	ch chan *scheduled
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{ch: make(chan *scheduled, 16)}
}

func (s *fakeScheduler) schedule(d time.Duration, f func()) func() bool {
	sc := &scheduled{delay: d, fn: f}
	s.ch <- sc
	return func() bool {
		sc.cancelled.Store(true)
		return true
	}
}

func (s *fakeScheduler) next(t *testing.T) *scheduled {
	t.Helper()
	select {
	case sc := <-s.ch:
		return sc
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for reconnect to be scheduled")
		return nil
	}
}

func (s *fakeScheduler) expectNone(t *testing.T) {
	t.Helper()
	select {
	case sc := <-s.ch:
		t.Fatalf("unexpected reconnect scheduled after %v", sc.delay)
	case <-time.After(100 * time.Millisecond):
	}
}

// notifications records everything passed to the notifier.
type notifications struct {
	mu  sync.Mutex
	all []notify.Notification
	ch  chan notify.Notification
}

func newNotifications() *notifications {
	return &notifications{ch: make(chan notify.Notification, 64)}
}

func (n *notifications) Notify(x notify.Notification) {
	n.mu.Lock()
	n.all = append(n.all, x)
	n.mu.Unlock()
	n.ch <- x
}

func (n *notifications) persistent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, x := range n.all {
		if x.IsPersistent() {
			count++
		}
	}
	return count
}

func (n *notifications) waitPersistent(t *testing.T) notify.Notification {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case x := <-n.ch:
			if x.IsPersistent() {
				return x
			}
		case <-deadline:
			t.Fatal("timed out waiting for persistent notification")
			return notify.Notification{}
		}
	}
}

func watchStates(c *Client) chan transport.State {
	ch := make(chan transport.State, 64)
	c.OnConnectionChange(func(s transport.State) { ch <- s })
	return ch
}

func waitState(t *testing.T, ch chan transport.State, want transport.State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func receiveMessage(t *testing.T, ts *testServer) message.Message {
	t.Helper()
	select {
	case data := <-ts.received:
		var m message.Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("server received invalid JSON %q: %v", data, err)
		}
		return m
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for server to receive a frame")
		return message.Message{}
	}
}

// flakyConn fails writes while fail is set; reads keep working.
type flakyConn struct {
	net.Conn
	fail *atomic.Bool
}

func (f *flakyConn) Write(p []byte) (int, error) {
	if f.fail.Load() {
		return 0, errors.New("write failed")
	}
	return f.Conn.Write(p)
}

// flakyDialer dials real TCP connections wrapped in flakyConn.
func flakyDialer(fail *atomic.Bool) *gorillaws.Dialer {
	return &gorillaws.Dialer{
		HandshakeTimeout: waitTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &flakyConn{Conn: conn, fail: fail}, nil
		},
	}
}

func newTestClient(t *testing.T, url string, opts ...Option) (*Client, *fakeScheduler) {
	t.Helper()
	sched := newFakeScheduler()
	opts = append([]Option{WithScheduler(sched.schedule)}, opts...)
	c := New(testConfig(url), opts...)
	t.Cleanup(c.Disconnect)
	return c, sched
}

// =============================================================================
// Connection and messaging
// =============================================================================

func TestConnectSendReceive(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts.wsURL())
	states := watchStates(c)

	inbound := make(chan message.Message, 1)
	c.OnMessage(func(m message.Message) { inbound <- m })

	c.Connect()
	waitState(t, states, transport.Connected)

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after Connected event")
	}

	sent := message.NewControl(message.ComponentSlider, "s1", 75, time.UnixMilli(1000))
	c.Send(sent)

	got := receiveMessage(t, ts)
	if got.Type != message.TypeControl || got.ID != "s1" || got.Value != float64(75) || got.Timestamp != 1000 {
		t.Errorf("server received %+v", got)
	}

	serverConn := <-ts.conns
	if err := serverConn.WriteMessage(gorillaws.TextMessage,
		[]byte(`{"type":"update","component":"toggle","id":"t1","value":true,"timestamp":5}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case m := <-inbound:
		if m.ID != "t1" || m.Value != true {
			t.Errorf("client received %+v", m)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts.wsURL())

	var connecting atomic.Int32
	c.OnConnectionChange(func(s transport.State) {
		if s == transport.Connecting {
			connecting.Add(1)
		}
	})
	states := watchStates(c)

	c.Connect()
	c.Connect()
	waitState(t, states, transport.Connected)
	c.Connect()

	if n := connecting.Load(); n != 1 {
		t.Errorf("Connecting emitted %d times, want 1", n)
	}
}

func TestQueuedMessagesFlushedInOrder(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts.wsURL())
	states := watchStates(c)

	for _, id := range []string{"q1", "q2", "q3"} {
		c.Send(message.NewControl(message.ComponentButton, id, true, time.Now()))
	}
	if c.QueueLen() != 3 {
		t.Fatalf("QueueLen() = %d, want 3", c.QueueLen())
	}

	c.Connect()
	waitState(t, states, transport.Connected)
	c.Send(message.NewControl(message.ComponentButton, "live", true, time.Now()))

	for _, want := range []string{"q1", "q2", "q3", "live"} {
		if got := receiveMessage(t, ts); got.ID != want {
			t.Fatalf("received %q, want %q", got.ID, want)
		}
	}
	if c.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d after flush, want 0", c.QueueLen())
	}

	select {
	case extra := <-ts.received:
		t.Errorf("unexpected duplicate frame %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMalformedInboundDropped(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts.wsURL())
	states := watchStates(c)

	inbound := make(chan message.Message, 4)
	c.OnMessage(func(m message.Message) { inbound <- m })

	c.Connect()
	waitState(t, states, transport.Connected)

	serverConn := <-ts.conns
	serverConn.WriteMessage(gorillaws.TextMessage, []byte(`{broken`))
	serverConn.WriteMessage(gorillaws.TextMessage, []byte(`{"type":"status","component":"text","id":"ok","value":"x","timestamp":1}`))

	select {
	case m := <-inbound:
		if m.ID != "ok" {
			t.Errorf("first delivered message = %+v, want id ok", m)
		}
	case <-time.After(waitTimeout):
		t.Fatal("valid message after malformed one was not delivered")
	}

	if !c.IsConnected() {
		t.Error("malformed frame must not drop the connection")
	}
}

func TestListenerUnsubscribe(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts.wsURL())
	states := watchStates(c)

	var calls atomic.Int32
	sub := c.OnMessage(func(message.Message) { calls.Add(1) })
	sub.Unsubscribe()

	delivered := make(chan struct{}, 1)
	c.OnMessage(func(message.Message) { delivered <- struct{}{} })

	c.Connect()
	waitState(t, states, transport.Connected)
	(<-ts.conns).WriteMessage(gorillaws.TextMessage, []byte(`{"type":"update","component":"text","id":"x","value":"","timestamp":1}`))

	select {
	case <-delivered:
	case <-time.After(waitTimeout):
		t.Fatal("message not delivered")
	}
	if calls.Load() != 0 {
		t.Errorf("unsubscribed listener called %d times", calls.Load())
	}
}

// =============================================================================
// Reconnection
// =============================================================================

func TestBackoffSchedule(t *testing.T) {
	notes := newNotifications()
	c, sched := newTestClient(t, deadURL(t), WithNotifier(notes))

	c.Connect()

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range want {
		sc := sched.next(t)
		if sc.delay != d {
			t.Errorf("attempt %d delay = %v, want %v", i, sc.delay, d)
		}
		sc.fn()
	}

	n := notes.waitPersistent(t)
	if n.Severity != notify.SeverityError {
		t.Errorf("terminal notification severity = %q, want error", n.Severity)
	}

	sched.expectNone(t)
	if got := notes.persistent(); got != 1 {
		t.Errorf("persistent notifications = %d, want 1", got)
	}
	if c.State() != transport.Disconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

func TestConnectAfterExhaustionStartsFreshBudget(t *testing.T) {
	cfg := testConfig(deadURL(t))
	cfg.Reconnect.MaxAttempts = 1
	sched := newFakeScheduler()
	notes := newNotifications()
	c := New(cfg, WithScheduler(sched.schedule), WithNotifier(notes))
	t.Cleanup(c.Disconnect)

	c.Connect()
	sched.next(t).fn()
	notes.waitPersistent(t)

	c.Connect()
	if sc := sched.next(t); sc.delay != time.Second {
		t.Errorf("delay after explicit Connect = %v, want 1s", sc.delay)
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	c, sched := newTestClient(t, deadURL(t))
	states := watchStates(c)

	c.Connect()
	sc := sched.next(t)

	c.Disconnect()
	if !sc.cancelled.Load() {
		t.Error("pending retry was not cancelled by Disconnect")
	}

	// A timer that already fired must still be ignored.
	sc.fn()

	// Drain states emitted before Disconnect.
	drain := time.After(100 * time.Millisecond)
	for done := false; !done; {
		select {
		case s := <-states:
			_ = s
		case <-drain:
			done = true
		}
	}
	select {
	case s := <-states:
		t.Errorf("stale retry produced state %v", s)
	case <-time.After(100 * time.Millisecond):
	}
	sched.expectNone(t)
}

func TestReconnectAfterServerDrop(t *testing.T) {
	ts := newTestServer(t)
	notes := newNotifications()
	c, sched := newTestClient(t, ts.wsURL(), WithNotifier(notes))
	states := watchStates(c)

	c.Connect()
	waitState(t, states, transport.Connected)

	(<-ts.conns).Close()
	waitState(t, states, transport.Disconnected)

	sc := sched.next(t)
	if sc.delay != time.Second {
		t.Errorf("first retry delay = %v, want 1s", sc.delay)
	}

	// Messages sent in the gap are delivered after reconnecting.
	c.Send(message.NewControl(message.ComponentNumber, "gap", 1, time.Now()))

	sc.fn()
	waitState(t, states, transport.Connected)

	if got := receiveMessage(t, ts); got.ID != "gap" {
		t.Errorf("received %q after reconnect, want gap", got.ID)
	}

	// Successful connection resets the attempt counter.
	(<-ts.conns).Close()
	waitState(t, states, transport.Disconnected)
	if sc := sched.next(t); sc.delay != time.Second {
		t.Errorf("delay after successful reconnect = %v, want 1s", sc.delay)
	}
}

func TestWriteFailureReconnectsAndRequeues(t *testing.T) {
	ts := newTestServer(t)
	var failWrites atomic.Bool
	c, sched := newTestClient(t, ts.wsURL(), WithDialer(flakyDialer(&failWrites)))
	states := watchStates(c)

	c.Connect()
	waitState(t, states, transport.Connected)

	failWrites.Store(true)
	c.Send(message.NewControl(message.ComponentSlider, "first", 1, time.Now()))
	waitState(t, states, transport.Disconnected)
	sc := sched.next(t)

	c.Send(message.NewControl(message.ComponentSlider, "second", 2, time.Now()))
	if c.QueueLen() != 2 {
		t.Fatalf("QueueLen() = %d after failed write, want 2", c.QueueLen())
	}

	failWrites.Store(false)
	sc.fn()
	waitState(t, states, transport.Connected)

	for _, want := range []string{"first", "second"} {
		if got := receiveMessage(t, ts); got.ID != want {
			t.Fatalf("received %q, want %q", got.ID, want)
		}
	}
	if c.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d after reconnect, want 0", c.QueueLen())
	}
}

func TestManualDisconnectDoesNotReconnect(t *testing.T) {
	ts := newTestServer(t)
	c, sched := newTestClient(t, ts.wsURL())
	states := watchStates(c)

	c.Connect()
	waitState(t, states, transport.Connected)

	c.Disconnect()
	waitState(t, states, transport.Disconnected)

	sched.expectNone(t)
	if c.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
}

func TestDisconnectKeepsQueue(t *testing.T) {
	c, _ := newTestClient(t, deadURL(t))

	c.Send(message.NewControl(message.ComponentText, "a", "x", time.Now()))
	c.Disconnect()

	if c.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d after Disconnect, want 1", c.QueueLen())
	}
}

func TestMaxQueueDropsOldest(t *testing.T) {
	ts := newTestServer(t)
	cfg := testConfig(ts.wsURL())
	cfg.MaxQueue = 2
	sched := newFakeScheduler()
	c := New(cfg, WithScheduler(sched.schedule))
	t.Cleanup(c.Disconnect)
	states := watchStates(c)

	for _, id := range []string{"old", "mid", "new"} {
		c.Send(message.NewControl(message.ComponentText, id, "", time.Now()))
	}
	if c.QueueLen() != 2 {
		t.Fatalf("QueueLen() = %d, want 2", c.QueueLen())
	}

	c.Connect()
	waitState(t, states, transport.Connected)

	for _, want := range []string{"mid", "new"} {
		if got := receiveMessage(t, ts); got.ID != want {
			t.Errorf("received %q, want %q", got.ID, want)
		}
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
		{4, 16000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Backoff(time.Second, tt.attempt); got != tt.want {
			t.Errorf("Backoff(1s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
