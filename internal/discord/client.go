package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Gorillas-Team/Gorilink/internal/config"
	"github.com/Gorillas-Team/Gorilink/internal/database"
	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/music"
	"github.com/Gorillas-Team/Gorilink/internal/permissions"
	"github.com/Gorillas-Team/Gorilink/internal/radio"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

var ErrNotInVoice = errors.New("user is not in a voice channel")

// Client is the gateway side of the bot: one discordgo session per shard, the player
// manager fed from their raw dispatches, and the text command router.
type Client struct {
	Sessions    []*discordgo.Session
	Manager     *music.Manager
	Router      *CommandRouter
	Permissions *permissions.Manager
	Stations    *radio.Stations
	DB          *database.Manager

	startOnce sync.Once
}

func NewClient(cfg config.Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}

	shards := max(cfg.Shards, 1)

	client := &Client{Sessions: make([]*discordgo.Session, 0, shards)}

	for id := range shards {
		session, err := discordgo.New("Bot " + cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create Discord session: %w", err)
		}
		session.ShardID = id
		session.ShardCount = shards
		session.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent

		session.AddHandler(client.handleReady)
		session.AddHandler(client.handleRaw)
		session.AddHandler(client.handleMessageCreate)

		client.Sessions = append(client.Sessions, session)
	}

	manager, err := music.New(voice.GatewaySender(client.Sessions), music.Options{
		Nodes:         cfg.NodeOptions(),
		Shards:        shards,
		DefaultSource: cfg.DefaultSource,
	})
	if err != nil {
		return nil, err
	}
	client.Manager = manager
	client.registerPlayerEvents()

	client.Stations = radio.NewStations(cfg.Streams)

	if cfg.DBPath != "" {
		db, err := database.NewManager(cfg.DBPath)
		if err != nil {
			logger.Warn.Printf("Failed to open database: %v", err)
			logger.Warn.Println("Guild settings and play history will not be saved")
		} else {
			client.DB = db
		}
	}

	client.Permissions = permissions.NewManager(permissions.Config{
		DJRoleName:    cfg.DJRole,
		AdminRoleName: cfg.AdminRole,
	})

	client.Router = NewCommandRouter(cfg.Prefix)
	client.Router.SetAuthorizer(func(ctx *Context, level permissions.Level) (bool, error) {
		return client.Permissions.HasPermission(ctx.Session, ctx.GuildID, ctx.AuthorID, level)
	})
	registerMusicCommands(client.Router, client)

	return client, nil
}

func (c *Client) Connect() error {
	for _, s := range c.Sessions {
		if err := s.Open(); err != nil {
			return fmt.Errorf("failed to open shard %d: %w", s.ShardID, err)
		}
	}
	logger.Info.Printf("Connected to Discord with %d shard(s)", len(c.Sessions))
	return nil
}

// joinPlayer joins voiceChannel and, for a fresh player, restores the guild's saved
// volume and loop mode.
func (c *Client) joinPlayer(ctx *Context, voiceChannel string) (*music.Player, error) {
	_, existed := c.Manager.Player(ctx.GuildID)

	player, err := c.Manager.Join(ctx.GuildID, voiceChannel, ctx.ChannelID, music.JoinOptions{SelfDeaf: true})
	if err != nil || existed || c.DB == nil {
		return player, err
	}

	settings, ok, err := c.DB.GuildSettings(ctx.GuildID)
	if err != nil {
		logger.Warn.Printf("Failed to load settings for %s: %v", ctx.GuildID, err)
		return player, nil
	}
	if !ok {
		return player, nil
	}

	if settings.Volume != player.Volume() {
		if err := player.SetVolume(settings.Volume); err != nil && !errors.Is(err, music.ErrNodeDisconnected) {
			logger.Warn.Printf("Failed to restore volume for %s: %v", ctx.GuildID, err)
		}
	}
	if mode := music.LoopMode(settings.LoopMode); mode.Valid() {
		player.SetLoop(mode)
	}
	return player, nil
}

// saveSettings stores the player's current volume and loop mode.
func (c *Client) saveSettings(p *music.Player) {
	if c.DB == nil {
		return
	}
	err := c.DB.SaveGuildSettings(p.GuildID, database.GuildSettings{
		Volume:   p.Volume(),
		LoopMode: int(p.LoopMode()),
	})
	if err != nil {
		logger.Warn.Printf("Failed to save settings for %s: %v", p.GuildID, err)
	}
}

// sessionFor returns the shard session that owns guildID.
func (c *Client) sessionFor(guildID string) *discordgo.Session {
	return c.Sessions[voice.ShardFor(guildID, len(c.Sessions))]
}

func (c *Client) userVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", ErrNotInVoice
	}
	return vs.ChannelID, nil
}

func (c *Client) sendMessage(guildID, channelID, content string) {
	if channelID == "" {
		return
	}
	if _, err := c.sessionFor(guildID).ChannelMessageSend(channelID, content); err != nil {
		logger.Warn.Printf("Failed to send message to %s: %v", channelID, err)
	}
}

// Shutdown closes every shard. The player manager is a separate shutdown component
// registered after the client, so it leaves voice channels while the gateway is still up.
func (c *Client) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range c.Sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) Name() string {
	return "DiscordClient"
}
