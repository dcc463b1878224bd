package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
)

var ErrOutOfRange = errors.New("queue position out of range")

// Item is a queued track with its 1-based position at the time it was added.
type Item struct {
	Track audio.Track
	Index int
}

// Queue is an ordered list of tracks. The head is the track currently playing and is
// only removed once the node reports that it ended.
type Queue struct {
	items []Item
	mu    sync.RWMutex
}

func New() *Queue {
	return &Queue{items: make([]Item, 0)}
}

func (q *Queue) Add(track audio.Track) Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := Item{Track: track, Index: len(q.items) + 1}
	q.items = append(q.items, item)
	return item
}

// AddAll appends tracks in order and returns how many were added.
func (q *Queue) AddAll(tracks []audio.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range tracks {
		q.items = append(q.items, Item{Track: t, Index: len(q.items) + 1})
	}
	return len(tracks)
}

// Shift removes and returns the head.
func (q *Queue) Shift() (audio.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return audio.Track{}, false
	}

	head := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return head.Track, true
}

func (q *Queue) First() (audio.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return audio.Track{}, false
	}
	return q.items[0].Track, true
}

// Remove deletes the item at the 0-based position.
func (q *Queue) Remove(position int) (audio.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if position < 0 || position >= len(q.items) {
		return audio.Track{}, fmt.Errorf("%w: %d", ErrOutOfRange, position)
	}

	item := q.items[position]
	q.items = append(q.items[:position], q.items[position+1:]...)
	return item.Track, nil
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Duration sums the length of every queued track. Streams count as zero.
func (q *Queue) Duration() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var total time.Duration
	for _, item := range q.items {
		if !item.Track.IsStream {
			total += item.Track.Duration
		}
	}
	return total
}

// Items returns a copy of the queue contents.
func (q *Queue) Items() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]Item, 0)
}
