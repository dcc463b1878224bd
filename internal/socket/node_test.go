package socket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recorder struct {
	connects   chan struct{}
	messages   chan Message
	closes     chan int
	errs       chan error
	reconnects chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		connects:   make(chan struct{}, 16),
		messages:   make(chan Message, 16),
		closes:     make(chan int, 16),
		errs:       make(chan error, 16),
		reconnects: make(chan struct{}, 16),
	}
}

func push[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (r *recorder) HandleNodeConnect(*Node) { push(r.connects, struct{}{}) }

func (r *recorder) HandleNodeMessage(_ *Node, msg Message) error {
	push(r.messages, msg)
	return nil
}

func (r *recorder) HandleNodeClose(_ *Node, code int, _ string) { push(r.closes, code) }

func (r *recorder) HandleNodeError(_ *Node, err error) { push(r.errs, err) }

func (r *recorder) HandleNodeReconnect(*Node) { push(r.reconnects, struct{}{}) }

type fakeNode struct {
	server  *httptest.Server
	conns   chan *websocket.Conn
	headers chan http.Header
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()

	f := &fakeNode{
		conns:   make(chan *websocket.Conn, 8),
		headers: make(chan http.Header, 8),
	}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		f.conns <- conn
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeNode) options(t *testing.T) Options {
	t.Helper()

	u, err := url.Parse(f.server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	return Options{
		Tag:               "test",
		Host:              u.Hostname(),
		Port:              port,
		Password:          "secret",
		ReconnectInterval: 20 * time.Millisecond,
	}
}

func (f *fakeNode) accept(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-f.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for node connection")
		return nil
	}
}

func readOp(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("bad payload %q: %v", data, err)
	}
	return payload
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestConnectSendsHeaders(t *testing.T) {
	fake := newFakeNode(t)
	opts := fake.options(t)
	opts.ResumeKey = "resume-me"

	n := New(opts, "bot-id", 2, newRecorder())
	t.Cleanup(n.Destroy)

	if err := n.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	h := waitFor(t, fake.headers, "handshake")
	want := map[string]string{
		"Authorization": "secret",
		"Num-Shards":    "2",
		"User-Id":       "bot-id",
		"Resume-Key":    "resume-me",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}

	conn := fake.accept(t)
	payload := readOp(t, conn)
	if payload["op"] != "configureResuming" || payload["key"] != "resume-me" || payload["timeout"] != float64(60) {
		t.Errorf("configureResuming payload = %v", payload)
	}
}

func TestBufferedCommandsFlushInOrder(t *testing.T) {
	fake := newFakeNode(t)
	rec := newRecorder()
	n := New(fake.options(t), "bot-id", 1, rec)
	t.Cleanup(n.Destroy)

	for _, op := range []string{"play", "pause", "volume"} {
		if err := n.Send(map[string]string{"op": op, "guildId": "g1"}); err != nil {
			t.Fatalf("Send(%s) error = %v", op, err)
		}
	}
	if n.Buffered() != 3 {
		t.Fatalf("Buffered() = %d, want 3", n.Buffered())
	}

	if err := n.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, rec.connects, "connect")

	conn := fake.accept(t)
	for _, want := range []string{"play", "pause", "volume"} {
		if got := readOp(t, conn)["op"]; got != want {
			t.Errorf("op = %v, want %s", got, want)
		}
	}

	if n.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush, want 0", n.Buffered())
	}
	if !n.Connected() {
		t.Error("Connected() = false after open")
	}
}

func TestReconnectDeliversBufferedOnce(t *testing.T) {
	fake := newFakeNode(t)
	rec := newRecorder()
	opts := fake.options(t)
	opts.ReconnectInterval = 100 * time.Millisecond
	n := New(opts, "bot-id", 1, rec)
	t.Cleanup(n.Destroy)

	if err := n.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := fake.accept(t)
	waitFor(t, rec.connects, "connect")

	// A server side normal close is not a teardown and must reconnect.
	first.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	first.Close()

	if code := waitFor(t, rec.closes, "close"); code != websocket.CloseNormalClosure {
		t.Errorf("close code = %d, want 1000", code)
	}
	if n.Connected() {
		t.Fatal("Connected() = true after close")
	}

	if err := n.Send(map[string]string{"op": "stop", "guildId": "g1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, rec.reconnects, "reconnect")
	second := fake.accept(t)
	waitFor(t, rec.connects, "second connect")

	if got := readOp(t, second)["op"]; got != "stop" {
		t.Errorf("op = %v, want stop", got)
	}

	second.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := second.ReadMessage(); err == nil {
		t.Errorf("unexpected extra message %s", data)
	}
}

func TestStatsUpdateLoad(t *testing.T) {
	fake := newFakeNode(t)
	rec := newRecorder()
	n := New(fake.options(t), "bot-id", 1, rec)
	t.Cleanup(n.Destroy)

	if n.Load() != 0 || n.Stats() != nil {
		t.Fatal("fresh node should report no stats")
	}

	if err := n.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fake.accept(t)

	stats := `{"op":"stats","players":3,"playingPlayers":1,"uptime":1000,
		"memory":{"free":1,"used":2,"allocated":3,"reservable":4},
		"cpu":{"cores":4,"systemLoad":0.5,"lavalinkLoad":0.1}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(stats)); err != nil {
		t.Fatalf("write stats: %v", err)
	}

	msg := waitFor(t, rec.messages, "stats message")
	if msg.Op != OpStats {
		t.Fatalf("op = %q, want stats", msg.Op)
	}
	if got := n.Load(); got != 12.5 {
		t.Errorf("Load() = %v, want 12.5", got)
	}
	if s := n.Stats(); s == nil || s.Players != 3 || s.FrameStats != nil {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDestroySuppressesReconnect(t *testing.T) {
	fake := newFakeNode(t)
	rec := newRecorder()
	n := New(fake.options(t), "bot-id", 1, rec)

	if err := n.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fake.accept(t)
	waitFor(t, rec.connects, "connect")

	n.Destroy()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure || closeErr.Text != "destroy" {
		t.Fatalf("server saw %v, want close 1000 destroy", err)
	}

	select {
	case <-fake.conns:
		t.Fatal("node reconnected after Destroy")
	case <-rec.closes:
		t.Fatal("close reported after Destroy")
	case <-time.After(150 * time.Millisecond):
	}

	if err := n.Send(map[string]string{"op": "stop"}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Send() after Destroy error = %v, want ErrDestroyed", err)
	}
	if err := n.Connect(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Connect() after Destroy error = %v, want ErrDestroyed", err)
	}
}

func TestConnectFailureSchedulesRetry(t *testing.T) {
	fake := newFakeNode(t)
	opts := fake.options(t)
	fake.server.Close()

	rec := newRecorder()
	n := New(opts, "bot-id", 1, rec)
	t.Cleanup(n.Destroy)

	if err := n.Connect(); err == nil {
		t.Fatal("Connect() to closed server succeeded")
	}
	waitFor(t, rec.errs, "connect error")
	waitFor(t, rec.reconnects, "retry")
}

func TestOptionsDefaultsAndKey(t *testing.T) {
	o := Options{}.withDefaults()
	if o.Host != DefaultHost || o.Port != DefaultPort || o.Password != DefaultPassword {
		t.Errorf("defaults = %+v", o)
	}
	if o.ReconnectInterval != 5*time.Second || o.ResumeTimeout != time.Minute {
		t.Errorf("timers = %v %v", o.ReconnectInterval, o.ResumeTimeout)
	}
	if got := o.Key(); got != DefaultHost {
		t.Errorf("Key() = %q, want host", got)
	}
	if got := (Options{Tag: "eu", Host: "h"}).Key(); got != "eu" {
		t.Errorf("Key() = %q, want tag", got)
	}

	secure := Options{Host: "node.example", Port: 443, Secure: true}
	if got := secure.socketURL(); got != "wss://node.example:443" {
		t.Errorf("socketURL() = %q", got)
	}
	if got := secure.restURL("/loadtracks"); got != "https://node.example:443/loadtracks" {
		t.Errorf("restURL() = %q", got)
	}
}
