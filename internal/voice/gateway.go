package voice

import (
	"errors"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

var ErrNoGateway = errors.New("no gateway session")

// GatewaySender routes each update to the shard session that owns the guild.
func GatewaySender(shards []*discordgo.Session) Sender {
	return func(u Update) error {
		if len(shards) == 0 {
			return ErrNoGateway
		}
		s := shards[ShardFor(u.GuildID, len(shards))]
		return s.ChannelVoiceJoinManual(u.GuildID, u.Channel(), u.SelfMute, u.SelfDeaf)
	}
}

// ShardFor applies the gateway sharding formula (guild_id >> 22) % shards.
func ShardFor(guildID string, shards int) int {
	if shards <= 1 {
		return 0
	}
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0
	}
	return int((id >> 22) % uint64(shards))
}

func PacketFromEvent(e *discordgo.Event) Packet {
	return Packet{T: e.Type, D: e.RawData}
}
