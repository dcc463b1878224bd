package music

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/socket"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

// fakeLavalink is an in-process audio node: it upgrades websocket clients, records
// every command they send and answers load-tracks requests.
type fakeLavalink struct {
	server      *httptest.Server
	received    chan map[string]any
	identifiers chan string

	mu    sync.Mutex
	conn  *websocket.Conn
	ready chan struct{}
	once  sync.Once
}

func newFakeLavalink(t *testing.T) *fakeLavalink {
	t.Helper()

	f := &fakeLavalink{
		received:    make(chan map[string]any, 64),
		identifiers: make(chan string, 8),
		ready:       make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/loadtracks" {
			f.identifiers <- r.URL.Query().Get("identifier")
			w.Write([]byte(`{"loadType":"NO_MATCHES","playlistInfo":{},"tracks":[]}`))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		f.once.Do(func() { close(f.ready) })

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var payload map[string]any
			if json.Unmarshal(data, &payload) == nil {
				f.received <- payload
			}
		}
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeLavalink) options(t *testing.T, tag string) socket.Options {
	t.Helper()

	u, err := url.Parse(f.server.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	return socket.Options{
		Tag:               tag,
		Host:              u.Hostname(),
		Port:              port,
		Password:          "pw",
		ReconnectInterval: time.Minute,
	}
}

// push sends a node message to the connected client.
func (f *fakeLavalink) push(t *testing.T, payload string) {
	t.Helper()

	select {
	case <-f.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

// drop closes the client connection from the node side.
func (f *fakeLavalink) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *fakeLavalink) next(t *testing.T) map[string]any {
	t.Helper()

	select {
	case p := <-f.received:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a command")
		return nil
	}
}

func (f *fakeLavalink) expectNothing(t *testing.T) {
	t.Helper()

	select {
	case p := <-f.received:
		t.Fatalf("unexpected command %v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

type voiceRecorder struct {
	mu      sync.Mutex
	updates []voice.Update
}

func (r *voiceRecorder) send(u voice.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *voiceRecorder) all() []voice.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]voice.Update(nil), r.updates...)
}

type harness struct {
	manager *Manager
	voice   *voiceRecorder
	events  chan Event
	seen    []Event
}

func newHarness(t *testing.T, fakes ...*fakeLavalink) *harness {
	t.Helper()

	opts := Options{}
	for i, f := range fakes {
		opts.Nodes = append(opts.Nodes, f.options(t, "node"+strconv.Itoa(i)))
	}

	h := &harness{voice: &voiceRecorder{}, events: make(chan Event, 256)}

	m, err := New(h.voice.send, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.OnAny(func(ev Event) {
		select {
		case h.events <- ev:
		default:
		}
	})

	if err := m.Start("bot"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, n := range m.Nodes() {
		if !n.Connected() {
			t.Fatalf("node %s did not connect", n.Name())
		}
	}

	h.manager = m
	t.Cleanup(func() {
		for _, n := range m.Nodes() {
			m.DestroyNode(n.Name())
		}
	})
	return h
}

// waitEvent returns the next event of type want. Events passed over are kept for saw.
func (h *harness) waitEvent(t *testing.T, want EventType) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == want {
				return ev
			}
			h.seen = append(h.seen, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return Event{}
		}
	}
}

// saw reports whether an event of type want was passed over since the last reset.
func (h *harness) saw(want EventType) bool {
	for _, ev := range h.seen {
		if ev.Type == want {
			return true
		}
	}
	return false
}

func (h *harness) reset() {
	h.seen = nil
}

// pushAndWait sends a node message and waits until the manager has processed it.
func (h *harness) pushAndWait(t *testing.T, f *fakeLavalink, payload string) {
	t.Helper()
	f.push(t, payload)
	h.waitEvent(t, EventRaw)
}

func testTrack(id string) audio.Track {
	return audio.Track{Identifier: id, Title: id, Encoded: "enc-" + id, Duration: time.Minute}
}

func trackEnd(guildID, reason string) string {
	return `{"op":"event","type":"TrackEndEvent","guildId":"` + guildID + `","track":"x","reason":"` + reason + `"}`
}
