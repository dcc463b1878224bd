package music

import (
	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

// Outbound node commands. Every one carries op and guildId.

type guildCommand struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
}

type playCommand struct {
	Op        string `json:"op"`
	GuildID   string `json:"guildId"`
	Track     string `json:"track"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	NoReplace bool   `json:"noReplace,omitempty"`
}

type pauseCommand struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Pause   bool   `json:"pause"`
}

type volumeCommand struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

type seekCommand struct {
	Op       string `json:"op"`
	GuildID  string `json:"guildId"`
	Position int64  `json:"position"`
}

type equalizerCommand struct {
	Op      string       `json:"op"`
	GuildID string       `json:"guildId"`
	Bands   []audio.Band `json:"bands"`
}

type voiceUpdateCommand struct {
	Op        string       `json:"op"`
	GuildID   string       `json:"guildId"`
	SessionID string       `json:"sessionId"`
	Event     voice.Server `json:"event"`
}

// Inbound per-guild payloads.

type playerState struct {
	Time      int64        `json:"time"`
	Position  int64        `json:"position"`
	Connected bool         `json:"connected"`
	Volume    *int         `json:"volume,omitempty"`
	Equalizer []audio.Band `json:"equalizer,omitempty"`
}

type playerUpdate struct {
	State playerState `json:"state"`
}

type trackEvent struct {
	Type      string `json:"type"`
	Track     string `json:"track"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
	Threshold int64  `json:"thresholdMs"`
	Code      int    `json:"code"`
	ByRemote  bool   `json:"byRemote"`
}

const (
	eventTrackStart      = "TrackStartEvent"
	eventTrackEnd        = "TrackEndEvent"
	eventTrackStuck      = "TrackStuckEvent"
	eventTrackException  = "TrackExceptionEvent"
	eventWebSocketClosed = "WebSocketClosedEvent"
)
