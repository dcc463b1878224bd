package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
)

const schema = `
CREATE TABLE IF NOT EXISTS guild_settings (
	guild_id TEXT PRIMARY KEY,
	volume INTEGER NOT NULL,
	loop_mode INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS songs (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT UNIQUE NOT NULL,
	identifier TEXT NOT NULL,
	source TEXT,
	artist TEXT,
	duration INTEGER,
	is_stream BOOLEAN DEFAULT 0,
	play_count INTEGER DEFAULT 0,
	last_played INTEGER
);
`

// GuildSettings are the per-guild player preferences restored on join.
type GuildSettings struct {
	Volume   int
	LoopMode int
}

type PlayedTrack struct {
	Track      audio.Track
	PlayCount  int
	LastPlayed time.Time
}

// Manager persists guild settings and play history in SQLite.
type Manager struct {
	dbPath string
	db     *sql.DB
	mu     sync.Mutex
}

func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Manager{
		dbPath: dbPath,
		db:     db,
	}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *Manager) Shutdown(ctx context.Context) error {
	return m.Close()
}

func (m *Manager) Name() string {
	return "Database"
}

// GuildSettings returns the stored settings for guildID. ok is false when the guild
// has never saved any.
func (m *Manager) GuildSettings(guildID string) (GuildSettings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s GuildSettings
	err := m.db.QueryRow(`SELECT volume, loop_mode FROM guild_settings WHERE guild_id = ?`, guildID).
		Scan(&s.Volume, &s.LoopMode)
	if errors.Is(err, sql.ErrNoRows) {
		return GuildSettings{}, false, nil
	}
	if err != nil {
		return GuildSettings{}, false, fmt.Errorf("error querying guild settings: %w", err)
	}
	return s, true, nil
}

func (m *Manager) SaveGuildSettings(guildID string, s GuildSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `INSERT INTO guild_settings (guild_id, volume, loop_mode) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET volume = excluded.volume, loop_mode = excluded.loop_mode`

	if _, err := m.db.Exec(query, guildID, s.Volume, s.LoopMode); err != nil {
		return fmt.Errorf("error saving guild settings: %w", err)
	}
	return nil
}

// IncrementPlayCount records one play of track, inserting it on first sight. Tracks
// without a URI are keyed by their identifier.
func (m *Manager) IncrementPlayCount(track audio.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	url := track.URI
	if url == "" {
		url = track.Identifier
	}
	if url == "" {
		return errors.New("track has neither uri nor identifier")
	}

	query := `INSERT INTO songs (title, url, identifier, source, artist, duration, is_stream, play_count, last_played)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(url) DO UPDATE SET play_count = play_count + 1, last_played = excluded.last_played`

	_, err := m.db.Exec(query, track.Title, url, track.Identifier, track.SourceName, track.Author,
		track.Duration.Milliseconds(), track.IsStream, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("error updating play count: %w", err)
	}
	return nil
}

func (m *Manager) GetPopularTracks(limit int) ([]PlayedTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `SELECT title, url, identifier, source, artist, duration, is_stream, play_count, last_played
		FROM songs ORDER BY play_count DESC, last_played DESC LIMIT ?`

	rows, err := m.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying popular tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]PlayedTrack, 0, limit)
	for rows.Next() {
		var (
			p          PlayedTrack
			source     sql.NullString
			artist     sql.NullString
			durationMS int64
			lastPlayed int64
		)
		err := rows.Scan(&p.Track.Title, &p.Track.URI, &p.Track.Identifier, &source, &artist,
			&durationMS, &p.Track.IsStream, &p.PlayCount, &lastPlayed)
		if err != nil {
			return nil, fmt.Errorf("error scanning track row: %w", err)
		}
		p.Track.SourceName = source.String
		p.Track.Author = artist.String
		p.Track.Duration = time.Duration(durationMS) * time.Millisecond
		p.LastPlayed = time.Unix(lastPlayed, 0)
		tracks = append(tracks, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}
	return tracks, nil
}
