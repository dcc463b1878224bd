package voice

import "sync"

// Table caches the latest voice server and our own voice state per guild until both
// halves are available.
type Table struct {
	mu      sync.Mutex
	servers map[string]Server
	states  map[string]State
}

func NewTable() *Table {
	return &Table{
		servers: make(map[string]Server),
		states:  make(map[string]State),
	}
}

func (t *Table) PutServer(s Server) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers[s.GuildID] = s
}

func (t *Table) PutState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[s.GuildID] = s
}

// Purge forgets both halves for the guild.
func (t *Table) Purge(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.servers, guildID)
	delete(t.states, guildID)
}

// Lookup returns copies of whatever is cached for the guild.
func (t *Table) Lookup(guildID string) (*Server, *State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var server *Server
	var state *State
	if s, ok := t.servers[guildID]; ok {
		server = &s
	}
	if s, ok := t.states[guildID]; ok {
		state = &s
	}
	return server, state
}

// Resolve pairs a server assignment with a session id. The cached state's session id
// wins; prevSessionID covers a server update that arrives after the state was purged or
// consumed. Without a server or any session id there is nothing to connect with.
func Resolve(server *Server, state *State, prevSessionID string) (Session, bool) {
	if server == nil {
		return Session{}, false
	}

	sessionID := prevSessionID
	if state != nil && state.SessionID != "" {
		sessionID = state.SessionID
	}
	if sessionID == "" {
		return Session{}, false
	}

	return Session{SessionID: sessionID, Event: *server}, true
}
