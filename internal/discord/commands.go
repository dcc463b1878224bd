package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/database"
	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/music"
	"github.com/Gorillas-Team/Gorilink/internal/permissions"
	"github.com/Gorillas-Team/Gorilink/internal/queue"
	"github.com/Gorillas-Team/Gorilink/internal/radio"
)

const (
	fetchTimeout   = 15 * time.Second
	queuePageSize  = 10
	errNotInVoice  = "❌ You need to be in a voice channel."
	errNoPlayer    = "❌ Nothing is playing in this server."
	errNodeOffline = "⚠️ The audio node is reconnecting, the command will run when it is back."
)

// Context carries one parsed text command.
type Context struct {
	Session   *discordgo.Session
	GuildID   string
	ChannelID string
	AuthorID  string
	Args      []string

	reply func(content string) error
}

func (c *Context) Reply(content string) error {
	return c.reply(content)
}

type Command interface {
	Name() string
	Description() string
	Execute(ctx *Context) error
}

// Restricted is implemented by commands that need more than LevelUser.
type Restricted interface {
	Level() permissions.Level
}

// Authorizer reports whether the command author holds level.
type Authorizer func(ctx *Context, level permissions.Level) (bool, error)

type CommandRouter struct {
	prefix    string
	commands  map[string]Command
	authorize Authorizer
	mu        sync.RWMutex
}

func NewCommandRouter(prefix string) *CommandRouter {
	return &CommandRouter{
		prefix:   prefix,
		commands: make(map[string]Command),
	}
}

// SetAuthorizer installs the permission check. Without one every command is allowed.
func (r *CommandRouter) SetAuthorizer(a Authorizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorize = a
}

func (r *CommandRouter) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name()] = cmd
	logger.Debug.Printf("Registered command: %s", cmd.Name())
}

func (r *CommandRouter) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}

// ParseCommand splits "<prefix><name> args..." into a lowercase name and its arguments.
func ParseCommand(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Handle runs the command named in content. It reports whether a command matched.
func (r *CommandRouter) Handle(ctx *Context, content string) bool {
	name, args, ok := ParseCommand(r.prefix, content)
	if !ok {
		return false
	}

	r.mu.RLock()
	cmd, exists := r.commands[name]
	authorize := r.authorize
	r.mu.RUnlock()
	if !exists {
		return false
	}

	if restricted, ok := cmd.(Restricted); ok && authorize != nil {
		allowed, err := authorize(ctx, restricted.Level())
		if err != nil {
			logger.Warn.Printf("Permission check for %s failed: %v", name, err)
		}
		if !allowed {
			ctx.Reply(fmt.Sprintf("❌ You need %s permissions to use this command.", restricted.Level()))
			return true
		}
	}

	ctx.Args = args
	if err := cmd.Execute(ctx); err != nil {
		logger.Error.Printf("Command %s failed: %v", name, err)
	}
	return true
}

func registerMusicCommands(r *CommandRouter, c *Client) {
	r.Register(&PlayCommand{client: c})
	r.Register(&SkipCommand{client: c, manager: c.Manager})
	r.Register(&StopCommand{client: c, manager: c.Manager})
	r.Register(&PauseCommand{manager: c.Manager, pause: true})
	r.Register(&PauseCommand{manager: c.Manager, pause: false})
	r.Register(&VolumeCommand{client: c, manager: c.Manager})
	r.Register(&LoopCommand{client: c, manager: c.Manager})
	r.Register(&QueueCommand{manager: c.Manager})
	r.Register(&NowPlayingCommand{manager: c.Manager})
	r.Register(&LeaveCommand{manager: c.Manager})
	r.Register(&RadioCommand{client: c})
	r.Register(&TopCommand{client: c})
	r.Register(&HelpCommand{router: r})
}

// replyCommandError turns a buffered command into a notice and anything else into a failure.
func replyCommandError(ctx *Context, err error, failure string) error {
	if errors.Is(err, music.ErrNodeDisconnected) {
		return ctx.Reply(errNodeOffline)
	}
	ctx.Reply(failure)
	return err
}

type PlayCommand struct {
	client *Client
}

func (c *PlayCommand) Name() string        { return "play" }
func (c *PlayCommand) Description() string { return "Play a song from a URL or search query" }

func (c *PlayCommand) Execute(ctx *Context) error {
	if len(ctx.Args) == 0 {
		return ctx.Reply("❌ Usage: `play <url or search>`")
	}

	voiceChannel, err := c.client.userVoiceChannel(ctx.Session, ctx.GuildID, ctx.AuthorID)
	if err != nil {
		return ctx.Reply(errNotInVoice)
	}

	fetchCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	res, err := c.client.Manager.FetchTracks(fetchCtx, strings.Join(ctx.Args, " "), "")
	if err != nil {
		ctx.Reply("❌ Search failed, try again later.")
		return err
	}

	switch {
	case res.LoadType == audio.LoadFailed:
		msg := "❌ Could not load that track."
		if res.Exception != nil {
			msg = fmt.Sprintf("❌ Could not load that track: %s", res.Exception.Message)
		}
		return ctx.Reply(msg)
	case res.Empty():
		return ctx.Reply("❌ No results found.")
	}

	player, err := c.client.joinPlayer(ctx, voiceChannel)
	if err != nil {
		ctx.Reply("❌ Could not join your voice channel.")
		return err
	}

	var reply string
	if res.LoadType == audio.LoadPlaylistLoaded {
		n := player.Queue().AddAll(res.Tracks)
		reply = fmt.Sprintf("📃 Queued **%d** tracks from **%s**.", n, res.PlaylistInfo.Name)
	} else {
		track := res.Tracks[0]
		item := player.Queue().Add(track)
		reply = fmt.Sprintf("✅ Queued **%s** (%s) at position %d.", track, track.DurationString(), item.Index)
	}

	if !player.Playing() {
		if err := player.Play(nil); err != nil && !errors.Is(err, music.ErrNodeDisconnected) {
			ctx.Reply("❌ Failed to start playback.")
			return err
		}
	}

	return ctx.Reply(reply)
}

// RadioCommand tunes into a configured station, replacing whatever is playing.
type RadioCommand struct {
	client *Client
}

func (c *RadioCommand) Name() string             { return "radio" }
func (c *RadioCommand) Description() string      { return "List radio stations or play one by name" }
func (c *RadioCommand) Level() permissions.Level { return permissions.LevelDJ }

func (c *RadioCommand) Execute(ctx *Context) error {
	stations := c.client.Stations
	if stations == nil || len(stations.Names()) == 0 {
		return ctx.Reply("📻 No radio stations are configured.")
	}
	if len(ctx.Args) == 0 {
		return ctx.Reply("📻 Stations: " + strings.Join(stations.Names(), ", "))
	}

	station, err := stations.Get(strings.Join(ctx.Args, " "))
	if errors.Is(err, radio.ErrUnknownStation) {
		return ctx.Reply("❌ Unknown station. Stations: " + strings.Join(stations.Names(), ", "))
	}

	// A replaced track ends the session's playback state, so the station only starts
	// from silence.
	if p, ok := c.client.Manager.Player(ctx.GuildID); ok && p.Playing() {
		return ctx.Reply("❌ Music is playing, use `stop` first.")
	}

	voiceChannel, err := c.client.userVoiceChannel(ctx.Session, ctx.GuildID, ctx.AuthorID)
	if err != nil {
		return ctx.Reply(errNotInVoice)
	}

	fetchCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	res, err := c.client.Manager.FetchTracks(fetchCtx, station.URL, "")
	if err != nil {
		ctx.Reply("❌ Could not reach the station.")
		return err
	}
	track, ok := res.Selected()
	if !ok {
		return ctx.Reply("❌ The station is not streaming right now.")
	}

	player, err := c.client.joinPlayer(ctx, voiceChannel)
	if err != nil {
		ctx.Reply("❌ Could not join your voice channel.")
		return err
	}

	if err := player.Play(&track); err != nil {
		return replyCommandError(ctx, err, "❌ Failed to start the station.")
	}
	return ctx.Reply(fmt.Sprintf("📻 Tuned into **%s**.", station.Name))
}

type SkipCommand struct {
	client  *Client
	manager *music.Manager
}

func (c *SkipCommand) Name() string        { return "skip" }
func (c *SkipCommand) Description() string { return "Skip the current song" }

func (c *SkipCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok || !player.Playing() {
		return ctx.Reply(errNoPlayer)
	}
	loopCleared, err := player.Skip()
	if loopCleared {
		c.client.saveSettings(player)
	}
	if err != nil {
		return replyCommandError(ctx, err, "❌ Failed to skip.")
	}
	if loopCleared {
		return ctx.Reply("⏭️ Skipped. Looping the song is now off.")
	}
	return ctx.Reply("⏭️ Skipped.")
}

type StopCommand struct {
	client  *Client
	manager *music.Manager
}

func (c *StopCommand) Name() string             { return "stop" }
func (c *StopCommand) Description() string      { return "Stop playback and clear the queue" }
func (c *StopCommand) Level() permissions.Level { return permissions.LevelDJ }

func (c *StopCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok {
		return ctx.Reply(errNoPlayer)
	}
	err := player.StopAndClear()
	c.client.saveSettings(player)
	if err != nil {
		return replyCommandError(ctx, err, "❌ Failed to stop.")
	}
	return ctx.Reply("⏹️ Stopped and cleared the queue.")
}

// PauseCommand serves both pause and resume.
type PauseCommand struct {
	manager *music.Manager
	pause   bool
}

func (c *PauseCommand) Name() string {
	if c.pause {
		return "pause"
	}
	return "resume"
}

func (c *PauseCommand) Description() string {
	if c.pause {
		return "Pause the current song"
	}
	return "Resume the paused song"
}

func (c *PauseCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok || !player.Playing() {
		return ctx.Reply(errNoPlayer)
	}
	if player.Paused() == c.pause {
		if c.pause {
			return ctx.Reply("⏸️ Already paused.")
		}
		return ctx.Reply("▶️ Not paused.")
	}
	if err := player.Pause(c.pause); err != nil {
		return replyCommandError(ctx, err, "❌ Failed to update playback.")
	}
	if c.pause {
		return ctx.Reply("⏸️ Paused.")
	}
	return ctx.Reply("▶️ Resumed.")
}

type VolumeCommand struct {
	client  *Client
	manager *music.Manager
}

func (c *VolumeCommand) Name() string             { return "volume" }
func (c *VolumeCommand) Description() string      { return "Show or set the volume (0-1000)" }
func (c *VolumeCommand) Level() permissions.Level { return permissions.LevelDJ }

func (c *VolumeCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok {
		return ctx.Reply(errNoPlayer)
	}
	if len(ctx.Args) == 0 {
		return ctx.Reply(fmt.Sprintf("🔊 Volume is **%d**.", player.Volume()))
	}

	volume, err := strconv.Atoi(ctx.Args[0])
	if err != nil || volume < 0 || volume > 1000 {
		return ctx.Reply("❌ Volume must be a number between 0 and 1000.")
	}
	if err := player.SetVolume(volume); err != nil && !errors.Is(err, music.ErrNodeDisconnected) {
		return replyCommandError(ctx, err, "❌ Failed to set volume.")
	}
	c.client.saveSettings(player)
	return ctx.Reply(fmt.Sprintf("🔊 Volume set to **%d**.", volume))
}

type LoopCommand struct {
	client  *Client
	manager *music.Manager
}

func (c *LoopCommand) Name() string             { return "loop" }
func (c *LoopCommand) Description() string      { return "Set the loop mode: off, single or all" }
func (c *LoopCommand) Level() permissions.Level { return permissions.LevelDJ }

func (c *LoopCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok {
		return ctx.Reply(errNoPlayer)
	}
	if len(ctx.Args) == 0 {
		return ctx.Reply(fmt.Sprintf("🔁 Loop mode is **%s**.", player.LoopMode()))
	}

	mode, err := music.ParseLoopMode(ctx.Args[0])
	if err != nil {
		return ctx.Reply("❌ Loop mode must be `off`, `single` or `all`.")
	}
	if err := player.SetLoop(mode); err != nil {
		return err
	}
	c.client.saveSettings(player)
	return ctx.Reply(fmt.Sprintf("🔁 Loop mode set to **%s**.", mode))
}

type QueueCommand struct {
	manager *music.Manager
}

func (c *QueueCommand) Name() string        { return "queue" }
func (c *QueueCommand) Description() string { return "Show the current music queue" }

func (c *QueueCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok {
		return ctx.Reply("📭 Queue is empty.")
	}
	return ctx.Reply(formatQueue(player.Queue().Items(), player.Queue().Duration()))
}

// formatQueue renders the first page of the queue. The head is the song playing now.
func formatQueue(items []queue.Item, total time.Duration) string {
	if len(items) == 0 {
		return "📭 Queue is empty."
	}

	var b strings.Builder
	b.WriteString("🎵 **Music Queue**\n\n")
	fmt.Fprintf(&b, "🎧 **Now Playing:** %s (%s)\n", items[0].Track, items[0].Track.DurationString())

	upcoming := items[1:]
	if len(upcoming) > 0 {
		b.WriteString("\n📋 **Up Next:**\n")
	}
	for i, item := range upcoming {
		if i == queuePageSize {
			fmt.Fprintf(&b, "...and %d more\n", len(upcoming)-queuePageSize)
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", item.Index, item.Track, item.Track.DurationString())
	}

	fmt.Fprintf(&b, "\n⏱️ Total: %s", audio.Track{Duration: total}.DurationString())
	return b.String()
}

type NowPlayingCommand struct {
	manager *music.Manager
}

func (c *NowPlayingCommand) Name() string        { return "np" }
func (c *NowPlayingCommand) Description() string { return "Show the song playing now" }

func (c *NowPlayingCommand) Execute(ctx *Context) error {
	player, ok := c.manager.Player(ctx.GuildID)
	if !ok {
		return ctx.Reply(errNoPlayer)
	}
	track, ok := player.Track()
	if !ok {
		return ctx.Reply(errNoPlayer)
	}
	position := audio.Track{Duration: player.Position()}.DurationString()
	return ctx.Reply(fmt.Sprintf("🎧 **%s** [%s / %s]", track, position, track.DurationString()))
}

type LeaveCommand struct {
	manager *music.Manager
}

func (c *LeaveCommand) Name() string             { return "leave" }
func (c *LeaveCommand) Description() string      { return "Leave the voice channel" }
func (c *LeaveCommand) Level() permissions.Level { return permissions.LevelDJ }

func (c *LeaveCommand) Execute(ctx *Context) error {
	left, err := c.manager.Leave(ctx.GuildID)
	if err != nil {
		ctx.Reply("❌ Failed to leave cleanly.")
		return err
	}
	if !left {
		return ctx.Reply("❌ Not in a voice channel.")
	}
	return ctx.Reply("👋 Left the voice channel.")
}

type TopCommand struct {
	client *Client
}

func (c *TopCommand) Name() string        { return "top" }
func (c *TopCommand) Description() string { return "Show the most played songs" }

func (c *TopCommand) Execute(ctx *Context) error {
	if c.client.DB == nil {
		return ctx.Reply("❌ Play history is disabled.")
	}
	tracks, err := c.client.DB.GetPopularTracks(queuePageSize)
	if err != nil {
		ctx.Reply("❌ Failed to load play history.")
		return err
	}
	return ctx.Reply(formatTop(tracks))
}

func formatTop(tracks []database.PlayedTrack) string {
	if len(tracks) == 0 {
		return "📭 Nothing has been played yet."
	}

	var b strings.Builder
	b.WriteString("🏆 **Most Played**\n")
	for i, p := range tracks {
		fmt.Fprintf(&b, "%d. %s (%d plays)\n", i+1, p.Track, p.PlayCount)
	}
	return b.String()
}

type HelpCommand struct {
	router *CommandRouter
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List the available commands" }

func (c *HelpCommand) Execute(ctx *Context) error {
	var b strings.Builder
	b.WriteString("🎶 **Commands**\n")
	for _, cmd := range c.router.Commands() {
		fmt.Fprintf(&b, "`%s%s` %s\n", c.router.prefix, cmd.Name(), cmd.Description())
	}
	return ctx.Reply(b.String())
}
