package music

import (
	"encoding/json"
	"sync"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/socket"
)

type EventType string

const (
	EventNodeConnect   EventType = "nodeConnect"
	EventNodeClose     EventType = "nodeClose"
	EventNodeError     EventType = "nodeError"
	EventNodeReconnect EventType = "nodeReconnect"
	EventRaw           EventType = "raw"
	EventTrackStart    EventType = "trackStart"
	EventTrackEnd      EventType = "trackEnd"
	EventQueueEnd      EventType = "queueEnd"
	EventTrackStuck    EventType = "trackStuck"
	EventTrackError    EventType = "trackError"
	EventSocketClosed  EventType = "socketClosed"
	EventError         EventType = "error"
)

// Event is a notification fanned out to listeners. Only the fields relevant to Type
// are set.
type Event struct {
	Type   EventType
	Node   *socket.Node
	Player *Player
	Track  *audio.Track
	Code   int
	Reason string
	Err    error
	Raw    json.RawMessage
}

type Listener func(Event)

type emitter struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
	any       []Listener
}

// On registers l for one event type.
func (e *emitter) On(t EventType, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventType][]Listener)
	}
	e.listeners[t] = append(e.listeners[t], l)
}

// OnAny registers l for every event type.
func (e *emitter) OnAny(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.any = append(e.any, l)
}

// emit calls listeners synchronously in registration order. Callers must not hold
// player or manager locks.
func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	typed := e.listeners[ev.Type]
	ls := make([]Listener, 0, len(typed)+len(e.any))
	ls = append(ls, typed...)
	ls = append(ls, e.any...)
	e.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}
