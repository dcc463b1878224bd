package music

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/socket"
	"github.com/Gorillas-Team/Gorilink/internal/telemetry"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

var (
	ErrNoClient         = errors.New("a voice sender is required")
	ErrNoNodes          = errors.New("no nodes available")
	ErrNodeExists       = errors.New("node already registered")
	ErrNotStarted       = errors.New("manager not started")
	ErrNothingToPlay    = errors.New("no track given and queue is empty")
	ErrInvalidLoopMode  = errors.New("invalid loop mode")
	ErrInvalidVolume    = errors.New("invalid volume")
	ErrNodeDisconnected = errors.New("node is not connected, command buffered")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrPlayerDestroyed  = errors.New("player destroyed")
)

const DefaultSource = "yt"

var absoluteURL = regexp.MustCompile(`^https?://`)

type Options struct {
	Nodes  []socket.Options
	Shards int
	// DefaultSource prefixes plain search queries, "yt" when empty.
	DefaultSource string
}

// Manager owns every node connection and guild player and pairs the gateway's voice
// events into node voice sessions.
type Manager struct {
	emitter

	sendVoiceUpdate voice.Sender
	opts            Options
	voice           *voice.Table

	mu      sync.RWMutex
	userID  string
	nodes   map[string]*socket.Node
	order   []string
	players map[string]*Player
}

func New(sender voice.Sender, opts Options) (*Manager, error) {
	if sender == nil {
		return nil, ErrNoClient
	}
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = DefaultSource
	}

	return &Manager{
		sendVoiceUpdate: sender,
		opts:            opts,
		voice:           voice.NewTable(),
		nodes:           make(map[string]*socket.Node),
		order:           make([]string, 0),
		players:         make(map[string]*Player),
	}, nil
}

// Start records our own user id and creates every configured node.
func (m *Manager) Start(userID string) error {
	m.mu.Lock()
	m.userID = userID
	m.mu.Unlock()

	var errs []error
	for _, opts := range m.opts.Nodes {
		if _, err := m.CreateNode(opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// CreateNode registers a node under its tag or host and connects it. A failed dial is
// not an error here: the node keeps retrying and reports through nodeError events.
func (m *Manager) CreateNode(opts socket.Options) (*socket.Node, error) {
	m.mu.Lock()
	if m.userID == "" {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	key := opts.Key()
	if _, ok := m.nodes[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, key)
	}
	node := socket.New(opts, m.userID, m.opts.Shards, m)
	m.nodes[key] = node
	m.order = append(m.order, key)
	m.mu.Unlock()

	if err := node.Connect(); err != nil {
		logger.Warn.Printf("Node %s not reachable yet: %v", key, err)
	}
	return node, nil
}

// DestroyNode closes the node for good and removes it from the registry.
func (m *Manager) DestroyNode(name string) bool {
	m.mu.Lock()
	node, ok := m.nodes[name]
	if ok {
		delete(m.nodes, name)
		m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == name })
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	node.Destroy()
	return true
}

func (m *Manager) Node(name string) (*socket.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	return n, ok
}

// Nodes returns every registered node in creation order.
func (m *Manager) Nodes() []*socket.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodesLocked()
}

func (m *Manager) nodesLocked() []*socket.Node {
	out := make([]*socket.Node, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.nodes[key])
	}
	return out
}

// IdealNodes returns the connected nodes ordered by load, lowest first. Equal loads
// keep creation order. The sort runs on every call since stats change continuously.
func (m *Manager) IdealNodes() []*socket.Node {
	m.mu.RLock()
	all := m.nodesLocked()
	m.mu.RUnlock()

	connected := slices.DeleteFunc(all, func(n *socket.Node) bool { return !n.Connected() })
	slices.SortStableFunc(connected, func(a, b *socket.Node) int {
		return cmp.Compare(a.Load(), b.Load())
	})
	return connected
}

func (m *Manager) IdealNode() (*socket.Node, error) {
	nodes := m.IdealNodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}
	return nodes[0], nil
}

func (m *Manager) Player(guildID string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[guildID]
	return p, ok
}

func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// Join returns the guild's player, creating it on the least loaded node and asking
// the gateway to move us into voiceChannel when none exists.
func (m *Manager) Join(guildID, voiceChannel, textChannel string, opts JoinOptions) (*Player, error) {
	m.mu.Lock()
	if p, ok := m.players[guildID]; ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	node, err := m.IdealNode()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if p, ok := m.players[guildID]; ok {
		m.mu.Unlock()
		return p, nil
	}
	p := newPlayer(m, node, guildID, voiceChannel, textChannel, opts)
	m.players[guildID] = p
	count := len(m.players)
	m.mu.Unlock()

	telemetry.SetPlayers(count)

	if err := m.sendVoice(voice.JoinUpdate(guildID, voiceChannel, opts.SelfMute, opts.SelfDeaf)); err != nil {
		m.mu.Lock()
		if m.players[guildID] == p {
			delete(m.players, guildID)
		}
		count = len(m.players)
		m.mu.Unlock()
		p.detach()
		telemetry.SetPlayers(count)
		return nil, fmt.Errorf("failed to join voice channel %s: %w", voiceChannel, err)
	}

	logger.Info.Printf("Joined guild %s channel %s on node %s", guildID, voiceChannel, node.Name())
	return p, nil
}

// Leave disconnects from voice and tears the guild's player down. It reports false,
// without sending anything, when the guild has no player.
func (m *Manager) Leave(guildID string) (bool, error) {
	m.mu.Lock()
	p, ok := m.players[guildID]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.players, guildID)
	count := len(m.players)
	m.mu.Unlock()

	leaveErr := m.sendVoice(voice.LeaveUpdate(guildID))
	p.detach()
	destroyErr := p.node.Send(guildCommand{Op: "destroy", GuildID: guildID})

	telemetry.SetPlayers(count)
	logger.Info.Printf("Left guild %s", guildID)

	return true, errors.Join(leaveErr, destroyErr)
}

func (m *Manager) sendVoice(u voice.Update) error {
	return m.sendVoiceUpdate(u)
}

// VoiceServerUpdate caches the server half and attempts a rendezvous.
func (m *Manager) VoiceServerUpdate(s voice.Server) bool {
	m.voice.PutServer(s)
	return m.attemptConnection(s.GuildID)
}

// VoiceStateUpdate caches our own voice state and attempts a rendezvous. Other users
// are ignored. A state without a channel means we left, so both halves are dropped.
func (m *Manager) VoiceStateUpdate(s voice.State) bool {
	if s.UserID != m.UserID() {
		return false
	}

	if s.ChannelID == "" {
		m.voice.Purge(s.GuildID)
		return false
	}

	m.voice.PutState(s)
	return m.attemptConnection(s.GuildID)
}

func (m *Manager) attemptConnection(guildID string) bool {
	p, ok := m.Player(guildID)
	if !ok {
		return false
	}

	server, state := m.voice.Lookup(guildID)
	session, ok := voice.Resolve(server, state, p.voiceSessionID())
	if !ok {
		return false
	}

	if err := p.Connect(session); err != nil {
		logger.Error.Printf("Voice update for guild %s failed: %v", guildID, err)
		return false
	}
	return true
}

// PacketUpdate feeds a raw gateway dispatch into the rendezvous. Unrelated packets
// are ignored.
func (m *Manager) PacketUpdate(pkt voice.Packet) error {
	switch pkt.T {
	case voice.EventVoiceServerUpdate:
		var s voice.Server
		if err := json.Unmarshal(pkt.D, &s); err != nil {
			return fmt.Errorf("failed to decode %s: %w", pkt.T, err)
		}
		m.VoiceServerUpdate(s)

	case voice.EventVoiceStateUpdate:
		var s voice.State
		if err := json.Unmarshal(pkt.D, &s); err != nil {
			return fmt.Errorf("failed to decode %s: %w", pkt.T, err)
		}
		m.VoiceStateUpdate(s)

	case voice.EventGuildCreate:
		var g voice.GuildSnapshot
		if err := json.Unmarshal(pkt.D, &g); err != nil {
			return fmt.Errorf("failed to decode %s: %w", pkt.T, err)
		}
		for _, s := range g.VoiceStates {
			s.GuildID = g.ID
			m.VoiceStateUpdate(s)
		}
	}
	return nil
}

// FetchTracks resolves query on the least loaded node. Anything that is not an
// http(s) URL becomes a "<source>search:" query; source defaults to the manager's.
func (m *Manager) FetchTracks(ctx context.Context, query, source string) (*audio.SearchResponse, error) {
	node, err := m.IdealNode()
	if err != nil {
		return nil, err
	}
	return node.LoadTracks(ctx, m.identifier(query, source))
}

func (m *Manager) identifier(query, source string) string {
	if absoluteURL.MatchString(query) {
		return query
	}
	if source == "" {
		source = m.opts.DefaultSource
	}
	return source + "search:" + query
}

// Shutdown leaves every guild and destroys every node.
func (m *Manager) Shutdown(ctx context.Context) error {
	logger.Info.Println("Shutting down player manager...")

	var errs []error
	for _, p := range m.Players() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := m.Leave(p.GuildID); err != nil {
			errs = append(errs, err)
		}
	}

	for _, n := range m.Nodes() {
		m.DestroyNode(n.Name())
	}

	return errors.Join(errs...)
}

func (m *Manager) Name() string {
	return "PlayerManager"
}

func (m *Manager) HandleNodeConnect(n *socket.Node) {
	m.emit(Event{Type: EventNodeConnect, Node: n})
}

// HandleNodeMessage routes per-guild messages to the guild's player on that node and
// surfaces every message as a raw event.
func (m *Manager) HandleNodeMessage(n *socket.Node, msg socket.Message) error {
	var err error
	if msg.GuildID != "" && msg.Op != socket.OpStats {
		if p, ok := m.Player(msg.GuildID); ok && p.node == n {
			err = p.handleMessage(msg)
		}
	}

	m.emit(Event{Type: EventRaw, Node: n, Raw: msg.Raw})

	if err != nil {
		m.emit(Event{Type: EventError, Node: n, Err: err})
	}
	return err
}

func (m *Manager) HandleNodeClose(n *socket.Node, code int, reason string) {
	m.emit(Event{Type: EventNodeClose, Node: n, Code: code, Reason: reason})
}

func (m *Manager) HandleNodeError(n *socket.Node, err error) {
	m.emit(Event{Type: EventNodeError, Node: n, Err: err})
}

func (m *Manager) HandleNodeReconnect(n *socket.Node) {
	m.emit(Event{Type: EventNodeReconnect, Node: n})
}
