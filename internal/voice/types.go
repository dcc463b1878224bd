package voice

import "encoding/json"

// Gateway dispatch names the manager consumes.
const (
	EventVoiceServerUpdate = "VOICE_SERVER_UPDATE"
	EventVoiceStateUpdate  = "VOICE_STATE_UPDATE"
	EventGuildCreate       = "GUILD_CREATE"
)

// Packet is a raw gateway dispatch: the event name and its undecoded payload.
type Packet struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

// Server is a voice server assignment. It is forwarded to the audio node unchanged.
type Server struct {
	Token    string `json:"token"`
	GuildID  string `json:"guild_id"`
	Endpoint string `json:"endpoint"`
}

// State is one member's voice channel membership.
type State struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	SelfMute  bool   `json:"self_mute"`
	SelfDeaf  bool   `json:"self_deaf"`
}

// GuildSnapshot is the part of a full guild payload that carries voice states.
type GuildSnapshot struct {
	ID          string  `json:"id"`
	VoiceStates []State `json:"voice_states"`
}

// Session is what the audio node needs to join the voice transport.
type Session struct {
	SessionID string `json:"sessionId"`
	Event     Server `json:"event"`
}

// Update is the opcode 4 payload. A nil ChannelID leaves the channel.
type Update struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

func JoinUpdate(guildID, channelID string, selfMute, selfDeaf bool) Update {
	u := Update{GuildID: guildID, SelfMute: selfMute, SelfDeaf: selfDeaf}
	if channelID != "" {
		u.ChannelID = &channelID
	}
	return u
}

func LeaveUpdate(guildID string) Update {
	return Update{GuildID: guildID}
}

// Channel returns the target channel, or "" for a leave.
func (u Update) Channel() string {
	if u.ChannelID == nil {
		return ""
	}
	return *u.ChannelID
}

// Sender delivers an opcode 4 update to the gateway connection that owns the guild.
type Sender func(Update) error
