package socket

import "encoding/json"

const (
	OpStats        = "stats"
	OpPlayerUpdate = "playerUpdate"
	OpEvent        = "event"
)

// Message is the envelope of every inbound node message. Raw keeps the full payload
// so handlers can decode op-specific fields.
type Message struct {
	Op      string          `json:"op"`
	GuildID string          `json:"guildId,omitempty"`
	Type    string          `json:"type,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

type configureResuming struct {
	Op      string `json:"op"`
	Key     string `json:"key"`
	Timeout int    `json:"timeout"`
}
