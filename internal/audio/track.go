package audio

import (
	"fmt"
	"math"
	"time"
)

// TrackInfo is the metadata block the node returns for every loaded track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName,omitempty"`
}

// RawTrack is a track entry exactly as it appears in a load-tracks response.
type RawTrack struct {
	Track string    `json:"track"`
	Info  TrackInfo `json:"info"`
}

// Track is an immutable playable item. Encoded is the opaque token the node uses to
// re-locate the media and is what play commands carry.
type Track struct {
	URI        string
	Title      string
	Author     string
	Duration   time.Duration
	Identifier string
	IsStream   bool
	IsSeekable bool
	SourceName string
	Encoded    string
}

func NewTrack(raw RawTrack) Track {
	return Track{
		URI:        raw.Info.URI,
		Title:      raw.Info.Title,
		Author:     raw.Info.Author,
		Duration:   lengthDuration(raw.Info),
		Identifier: raw.Info.Identifier,
		IsStream:   raw.Info.IsStream,
		IsSeekable: raw.Info.IsSeekable,
		SourceName: raw.Info.SourceName,
		Encoded:    raw.Track,
	}
}

// lengthDuration converts the node's millisecond length. Streams report math.MaxInt64
// and get no duration; anything else past the range of time.Duration is clamped.
func lengthDuration(info TrackInfo) time.Duration {
	switch {
	case info.IsStream || info.Length <= 0:
		return 0
	case info.Length > int64(math.MaxInt64/time.Millisecond):
		return time.Duration(math.MaxInt64)
	default:
		return time.Duration(info.Length) * time.Millisecond
	}
}

// DurationString formats the duration as M:SS, or H:MM:SS past an hour. Streams report LIVE.
func (t Track) DurationString() string {
	if t.IsStream {
		return "LIVE"
	}

	total := int(t.Duration / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func (t Track) String() string {
	if t.Author == "" {
		return t.Title
	}
	return fmt.Sprintf("%s - %s", t.Author, t.Title)
}
