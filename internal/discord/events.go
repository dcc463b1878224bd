package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/music"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

func (c *Client) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	logger.Info.Printf("Shard %d ready as %s (%d guilds)", s.ShardID, r.User.Username, len(r.Guilds))
	s.UpdateGameStatus(0, c.Router.prefix+"help")

	// Reconnects fire Ready again; nodes are created only once.
	c.startOnce.Do(func() {
		if err := c.Manager.Start(r.User.ID); err != nil {
			logger.Error.Printf("Failed to create audio nodes: %v", err)
		}
	})
}

// handleRaw forwards every gateway dispatch to the player manager, which picks out the
// voice and guild-create packets.
func (c *Client) handleRaw(s *discordgo.Session, e *discordgo.Event) {
	if e.Type == "" || len(e.RawData) == 0 {
		return
	}
	if err := c.Manager.PacketUpdate(voice.PacketFromEvent(e)); err != nil {
		logger.Warn.Printf("Failed to handle %s packet: %v", e.Type, err)
	}
}

func (c *Client) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	ctx := &Context{
		Session:   s,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		reply: func(content string) error {
			_, err := s.ChannelMessageSend(m.ChannelID, content)
			return err
		},
	}
	c.Router.Handle(ctx, m.Content)
}

func (c *Client) registerPlayerEvents() {
	c.Manager.On(music.EventTrackStart, func(ev music.Event) {
		if ev.Player == nil || ev.Track == nil {
			return
		}
		c.sendMessage(ev.Player.GuildID, ev.Player.TextChannel(),
			fmt.Sprintf("🎶 Now playing **%s** (%s)", ev.Track, ev.Track.DurationString()))

		if c.DB != nil {
			if err := c.DB.IncrementPlayCount(*ev.Track); err != nil {
				logger.Warn.Printf("Failed to record play: %v", err)
			}
		}
	})

	c.Manager.On(music.EventQueueEnd, func(ev music.Event) {
		if ev.Player == nil {
			return
		}
		c.sendMessage(ev.Player.GuildID, ev.Player.TextChannel(), "✅ Queue finished.")
	})

	c.Manager.On(music.EventTrackStuck, func(ev music.Event) {
		if ev.Player == nil {
			return
		}
		c.sendMessage(ev.Player.GuildID, ev.Player.TextChannel(), "⚠️ Track got stuck.")
	})

	c.Manager.On(music.EventTrackError, func(ev music.Event) {
		if ev.Player == nil {
			return
		}
		c.sendMessage(ev.Player.GuildID, ev.Player.TextChannel(),
			fmt.Sprintf("❌ Track failed: %s", ev.Reason))
	})

	c.Manager.On(music.EventNodeConnect, func(ev music.Event) {
		logger.Info.Printf("Audio node %s connected", ev.Node.Name())
	})
	c.Manager.On(music.EventNodeClose, func(ev music.Event) {
		logger.Warn.Printf("Audio node %s closed (%d %s)", ev.Node.Name(), ev.Code, ev.Reason)
	})
	c.Manager.On(music.EventNodeReconnect, func(ev music.Event) {
		logger.Info.Printf("Reconnecting to audio node %s", ev.Node.Name())
	})
	c.Manager.On(music.EventNodeError, func(ev music.Event) {
		logger.Error.Printf("Audio node %s error: %v", ev.Node.Name(), ev.Err)
	})
	c.Manager.On(music.EventError, func(ev music.Event) {
		logger.Error.Printf("Player error: %v", ev.Err)
	})
}
