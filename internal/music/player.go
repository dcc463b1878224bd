package music

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/queue"
	"github.com/Gorillas-Team/Gorilink/internal/socket"
	"github.com/Gorillas-Team/Gorilink/internal/telemetry"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

const DefaultVolume = 100

// Close codes after which the voice session has to be requested again.
var rejoinCodes = map[int]bool{
	4006: true, // session no longer valid
	4009: true, // session timeout
	4015: true, // voice server crashed
}

// End reasons that report a drained queue.
var drainReasons = map[string]bool{
	"REPLACED": true,
	"FINISHED": true,
	"STOPPED":  true,
}

type JoinOptions struct {
	SelfMute bool
	SelfDeaf bool
}

// PlayOptions are forwarded with the play command. Zero values are omitted.
type PlayOptions struct {
	StartTime time.Duration
	EndTime   time.Duration
	NoReplace bool
}

// Player is the playback state of one guild. It is bound to a single node for its
// whole life.
type Player struct {
	GuildID string

	manager *Manager
	node    *socket.Node
	queue   *queue.Queue

	mu           sync.Mutex
	voiceChannel string
	textChannel  string
	opts         JoinOptions
	track        *audio.Track
	fromQueue    bool
	playing      bool
	paused       bool
	volume       int
	equalizer    []audio.Band
	loop         LoopMode
	voiceState   *voice.Session
	timestamp    time.Time
	position     time.Duration
	positionAt   time.Time
	detached     bool
}

func newPlayer(m *Manager, node *socket.Node, guildID, voiceChannel, textChannel string, opts JoinOptions) *Player {
	return &Player{
		GuildID:      guildID,
		manager:      m,
		node:         node,
		queue:        queue.New(),
		voiceChannel: voiceChannel,
		textChannel:  textChannel,
		opts:         opts,
		volume:       DefaultVolume,
		equalizer:    make([]audio.Band, 0),
	}
}

func (p *Player) Node() *socket.Node {
	return p.node
}

func (p *Player) Queue() *queue.Queue {
	return p.queue
}

func (p *Player) VoiceChannel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannel
}

func (p *Player) TextChannel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannel
}

// Track returns the current track, if any.
func (p *Player) Track() (audio.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.track == nil {
		return audio.Track{}, false
	}
	return *p.track, true
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) Equalizer() []audio.Band {
	p.mu.Lock()
	defer p.mu.Unlock()

	bands := make([]audio.Band, len(p.equalizer))
	copy(bands, p.equalizer)
	return bands
}

func (p *Player) LoopMode() LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// Timestamp is when the current track was last sent to the node. Zero when idle.
func (p *Player) Timestamp() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timestamp
}

// Position estimates the playback position from the last player update.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.paused || p.positionAt.IsZero() {
		return p.position
	}
	return p.position + time.Since(p.positionAt)
}

// VoiceSession returns the last session handed to the node.
func (p *Player) VoiceSession() (voice.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.voiceState == nil {
		return voice.Session{}, false
	}
	return *p.voiceState, true
}

func (p *Player) voiceSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.voiceState == nil {
		return ""
	}
	return p.voiceState.SessionID
}

// Play starts track, or the queue head when track is nil.
func (p *Player) Play(track *audio.Track) error {
	return p.PlayWith(track, PlayOptions{})
}

func (p *Player) PlayWith(track *audio.Track, opts PlayOptions) error {
	if track != nil {
		return p.start(*track, false, opts)
	}

	head, ok := p.queue.First()
	if !ok {
		return ErrNothingToPlay
	}
	return p.start(head, true, opts)
}

func (p *Player) start(track audio.Track, fromQueue bool, opts PlayOptions) error {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.track = &track
	p.fromQueue = fromQueue
	p.playing = true
	p.timestamp = time.Now()
	p.position = 0
	p.positionAt = time.Time{}
	p.mu.Unlock()

	logger.Debug.Printf("Guild %s playing %s", p.GuildID, track)

	return p.sendAck(playCommand{
		Op:        "play",
		GuildID:   p.GuildID,
		Track:     track.Encoded,
		StartTime: opts.StartTime.Milliseconds(),
		EndTime:   opts.EndTime.Milliseconds(),
		NoReplace: opts.NoReplace,
	})
}

func (p *Player) Stop() error {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.playing = false
	p.timestamp = time.Time{}
	p.mu.Unlock()

	return p.sendAck(guildCommand{Op: "stop", GuildID: p.GuildID})
}

// Skip stops the current track so its track end advances the queue. A single-track loop
// would replay it instead, so Skip turns looping off first and reports whether it did.
func (p *Player) Skip() (bool, error) {
	p.mu.Lock()
	loopCleared := p.loop == LoopSingle
	if loopCleared {
		p.loop = LoopOff
	}
	p.mu.Unlock()

	return loopCleared, p.Stop()
}

// StopAndClear turns looping off, empties the queue and stops, so the track end drains the player.
func (p *Player) StopAndClear() error {
	p.mu.Lock()
	p.loop = LoopOff
	p.mu.Unlock()

	p.queue.Clear()
	return p.Stop()
}

// Pause pauses or resumes without touching the playing flag.
func (p *Player) Pause(pause bool) error {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.paused = pause
	p.mu.Unlock()

	return p.sendAck(pauseCommand{Op: "pause", GuildID: p.GuildID, Pause: pause})
}

func (p *Player) SetVolume(volume int) error {
	if volume < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, volume)
	}

	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.volume = volume
	p.mu.Unlock()

	return p.send(volumeCommand{Op: "volume", GuildID: p.GuildID, Volume: volume})
}

// Seek asks the node to jump. The local position follows on the next player update.
func (p *Player) Seek(position time.Duration) error {
	if p.isDetached() {
		return ErrPlayerDestroyed
	}
	return p.send(seekCommand{Op: "seek", GuildID: p.GuildID, Position: position.Milliseconds()})
}

func (p *Player) SetEqualizer(bands []audio.Band) error {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.equalizer = append(make([]audio.Band, 0, len(bands)), bands...)
	p.mu.Unlock()

	return p.send(equalizerCommand{Op: "equalizer", GuildID: p.GuildID, Bands: bands})
}

func (p *Player) SetLoop(mode LoopMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLoopMode, int(mode))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = mode
	return nil
}

// Connect hands the voice session to the node so it can join the voice transport.
func (p *Player) Connect(session voice.Session) error {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.voiceState = &session
	p.mu.Unlock()

	telemetry.IncVoiceUpdate(p.node.Name())

	return p.send(voiceUpdateCommand{
		Op:        "voiceUpdate",
		GuildID:   p.GuildID,
		SessionID: session.SessionID,
		Event:     session.Event,
	})
}

// Destroy leaves the voice channel and drops the player from its manager.
func (p *Player) Destroy() (bool, error) {
	return p.manager.Leave(p.GuildID)
}

func (p *Player) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
	p.playing = false
}

func (p *Player) isDetached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detached
}

func (p *Player) send(cmd any) error {
	return p.node.Send(cmd)
}

// sendAck is send for commands whose caller needs to know the node did not get them
// yet. The command is still buffered for delivery.
func (p *Player) sendAck(cmd any) error {
	connected := p.node.Connected()
	if err := p.node.Send(cmd); err != nil {
		return err
	}
	if !connected {
		return ErrNodeDisconnected
	}
	return nil
}

func (p *Player) handleMessage(msg socket.Message) error {
	if p.isDetached() {
		return nil
	}

	switch msg.Op {
	case socket.OpPlayerUpdate:
		return p.handlePlayerUpdate(msg.Raw)
	case socket.OpEvent:
		return p.handleEvent(msg.Raw)
	}
	return nil
}

func (p *Player) handlePlayerUpdate(raw json.RawMessage) error {
	var update playerUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return fmt.Errorf("failed to decode player update for guild %s: %w", p.GuildID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.position = time.Duration(update.State.Position) * time.Millisecond
	if update.State.Time > 0 {
		p.positionAt = time.UnixMilli(update.State.Time)
	} else {
		p.positionAt = time.Now()
	}
	if update.State.Volume != nil {
		p.volume = *update.State.Volume
	}
	if update.State.Equalizer != nil {
		p.equalizer = update.State.Equalizer
	}
	return nil
}

func (p *Player) handleEvent(raw json.RawMessage) error {
	var ev trackEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("failed to decode event for guild %s: %w", p.GuildID, err)
	}

	telemetry.IncTrackEvent(ev.Type)

	switch ev.Type {
	case eventTrackStart:
		p.manager.emit(Event{Type: EventTrackStart, Player: p, Track: p.currentTrack(), Raw: raw})
	case eventTrackEnd:
		p.handleTrackEnd(ev, raw)
	case eventTrackStuck:
		p.queue.Shift()
		p.manager.emit(Event{Type: EventTrackStuck, Player: p, Track: p.currentTrack(), Reason: ev.Reason, Raw: raw})
	case eventTrackException:
		p.queue.Shift()
		p.manager.emit(Event{Type: EventTrackError, Player: p, Track: p.currentTrack(), Reason: ev.Error, Raw: raw})
	case eventWebSocketClosed:
		p.handleSocketClosed(ev, raw)
	default:
		return fmt.Errorf("%w %q for guild %s", ErrUnknownEvent, ev.Type, p.GuildID)
	}
	return nil
}

func (p *Player) handleTrackEnd(ev trackEvent, raw json.RawMessage) {
	p.mu.Lock()
	current := p.track
	loop := p.loop
	fromQueue := p.fromQueue
	p.mu.Unlock()

	switch {
	case current != nil && loop == LoopSingle:
		p.manager.emit(Event{Type: EventTrackEnd, Player: p, Track: current, Reason: ev.Reason, Raw: raw})
		p.replay(*current, fromQueue)

	case current != nil && loop == LoopAll:
		p.manager.emit(Event{Type: EventTrackEnd, Player: p, Track: current, Reason: ev.Reason, Raw: raw})
		if fromQueue {
			if head, ok := p.queue.Shift(); ok {
				p.queue.Add(head)
			}
		} else {
			p.queue.Add(*current)
		}
		if !p.playNext() {
			p.drain(ev, raw)
		}

	case p.queue.Len() <= 1:
		p.queue.Shift()
		p.drain(ev, raw)

	default:
		p.queue.Shift()
		p.manager.emit(Event{Type: EventTrackEnd, Player: p, Track: current, Reason: ev.Reason, Raw: raw})
		if !p.playNext() {
			p.drain(ev, raw)
		}
	}
}

// drain leaves the player idle once nothing is left to play.
func (p *Player) drain(ev trackEvent, raw json.RawMessage) {
	p.mu.Lock()
	p.playing = false
	p.track = nil
	p.timestamp = time.Time{}
	p.mu.Unlock()

	if drainReasons[ev.Reason] {
		p.manager.emit(Event{Type: EventQueueEnd, Player: p, Reason: ev.Reason, Raw: raw})
	}
}

func (p *Player) replay(track audio.Track, fromQueue bool) {
	if err := p.start(track, fromQueue, PlayOptions{}); err != nil {
		logger.Warn.Printf("Guild %s: replay failed: %v", p.GuildID, err)
	}
}

// playNext starts the queue head and reports whether there was one.
func (p *Player) playNext() bool {
	head, ok := p.queue.First()
	if !ok {
		return false
	}
	if err := p.start(head, true, PlayOptions{}); err != nil {
		logger.Warn.Printf("Guild %s: advancing queue failed: %v", p.GuildID, err)
	}
	return true
}

func (p *Player) handleSocketClosed(ev trackEvent, raw json.RawMessage) {
	if rejoinCodes[ev.Code] {
		p.mu.Lock()
		update := voice.JoinUpdate(p.GuildID, p.voiceChannel, p.opts.SelfMute, p.opts.SelfDeaf)
		p.mu.Unlock()

		logger.Warn.Printf("Guild %s voice socket closed with %d, rejoining", p.GuildID, ev.Code)
		if err := p.manager.sendVoice(update); err != nil {
			logger.Error.Printf("Guild %s: rejoin failed: %v", p.GuildID, err)
		}
	}

	p.manager.emit(Event{Type: EventSocketClosed, Player: p, Code: ev.Code, Reason: ev.Reason, Raw: raw})
}

func (p *Player) currentTrack() *audio.Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.track == nil {
		return nil
	}
	t := *p.track
	return &t
}
