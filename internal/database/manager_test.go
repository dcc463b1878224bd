package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
)

func openTestDB(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "gorilink.db"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestGuildSettings(t *testing.T) {
	m := openTestDB(t)

	if _, ok, err := m.GuildSettings("g1"); err != nil || ok {
		t.Fatalf("GuildSettings() on empty db = %v, %v", ok, err)
	}

	if err := m.SaveGuildSettings("g1", GuildSettings{Volume: 40, LoopMode: 2}); err != nil {
		t.Fatalf("SaveGuildSettings() error = %v", err)
	}
	if err := m.SaveGuildSettings("g1", GuildSettings{Volume: 70, LoopMode: 2}); err != nil {
		t.Fatalf("second SaveGuildSettings() error = %v", err)
	}

	s, ok, err := m.GuildSettings("g1")
	if err != nil || !ok {
		t.Fatalf("GuildSettings() = %v, %v", ok, err)
	}
	if s.Volume != 70 || s.LoopMode != 2 {
		t.Errorf("settings = %+v", s)
	}
}

func TestPopularTracks(t *testing.T) {
	m := openTestDB(t)

	a := audio.Track{URI: "https://x/a", Identifier: "a", Title: "A", Author: "Artist", Duration: 90 * time.Second, SourceName: "youtube"}
	b := audio.Track{Identifier: "b", Title: "B"}

	for _, tr := range []audio.Track{a, b, a, a} {
		if err := m.IncrementPlayCount(tr); err != nil {
			t.Fatalf("IncrementPlayCount(%s) error = %v", tr.Title, err)
		}
	}
	if err := m.IncrementPlayCount(audio.Track{Title: "nothing"}); err == nil {
		t.Error("expected an error for a track without uri or identifier")
	}

	top, err := m.GetPopularTracks(10)
	if err != nil {
		t.Fatalf("GetPopularTracks() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("tracks = %d, want 2", len(top))
	}
	if top[0].Track.Title != "A" || top[0].PlayCount != 3 || top[0].Track.Duration != 90*time.Second {
		t.Errorf("top track = %+v", top[0])
	}
	if top[1].Track.URI != "b" || top[1].PlayCount != 1 {
		t.Errorf("second track = %+v", top[1])
	}
}
