package socket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/telemetry"
)

var ErrDestroyed = errors.New("node destroyed")

// destroyReason marks a close frame we sent ourselves while tearing the node down.
const destroyReason = "destroy"

const writeTimeout = 10 * time.Second

// Handler receives node lifecycle notifications and inbound messages. Calls are made
// without any node lock held.
type Handler interface {
	HandleNodeConnect(n *Node)
	HandleNodeMessage(n *Node, msg Message) error
	HandleNodeClose(n *Node, code int, reason string)
	HandleNodeError(n *Node, err error)
	HandleNodeReconnect(n *Node)
}

// Node is one persistent websocket connection to an audio node. Commands sent while
// the socket is down are buffered and flushed in order once it reconnects.
type Node struct {
	opts    Options
	userID  string
	shards  int
	handler Handler

	dialer  *websocket.Dialer
	http    *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	dialing   bool
	destroyed bool
	buffer    [][]byte
	stats     *Stats
	retry     *time.Timer
}

func New(opts Options, userID string, shards int, handler Handler) *Node {
	opts = opts.withDefaults()
	if shards < 1 {
		shards = 1
	}

	n := &Node{
		opts:    opts,
		userID:  userID,
		shards:  shards,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		http:   &http.Client{Timeout: opts.RESTTimeout},
		buffer: make([][]byte, 0),
	}

	if opts.RESTRate > 0 {
		burst := int(opts.RESTRate)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(opts.RESTRate), burst)
	}

	return n
}

func (n *Node) Name() string {
	return n.opts.Key()
}

func (n *Node) Options() Options {
	return n.opts
}

func (n *Node) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

// Stats returns a copy of the last stats report, or nil before the first one.
func (n *Node) Stats() *Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stats == nil {
		return nil
	}
	s := *n.stats
	return &s
}

func (n *Node) Load() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats.Load()
}

// Buffered reports how many commands are waiting for the socket to open.
func (n *Node) Buffered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.buffer)
}

func (n *Node) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", n.opts.Password)
	h.Set("Num-Shards", strconv.Itoa(n.shards))
	h.Set("User-Id", n.userID)
	h.Set("Client-Name", "Gorilink")
	if n.opts.ResumeKey != "" {
		h.Set("Resume-Key", n.opts.ResumeKey)
	}
	return h
}

// Connect dials the node. On failure a reconnect is scheduled and the error returned.
func (n *Node) Connect() error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return ErrDestroyed
	}
	if n.connected || n.dialing {
		n.mu.Unlock()
		return nil
	}
	n.dialing = true
	n.mu.Unlock()

	logger.Info.Printf("Connecting to node %s at %s", n.Name(), n.opts.socketURL())

	conn, resp, err := n.dialer.Dial(n.opts.socketURL(), n.headers())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	n.mu.Lock()
	n.dialing = false
	n.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("failed to connect to node %s: %w", n.Name(), err)
		logger.Error.Println(err)
		n.handler.HandleNodeError(n, err)
		n.scheduleReconnect()
		return err
	}

	n.open(conn)
	return nil
}

func (n *Node) open(conn *websocket.Conn) {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		conn.Close()
		return
	}

	if n.retry != nil {
		n.retry.Stop()
		n.retry = nil
	}
	n.conn = conn

	flushed := 0
	for len(n.buffer) > 0 {
		if err := n.writeLocked(n.buffer[0]); err != nil {
			logger.Warn.Printf("Failed to flush buffered command to node %s: %v", n.Name(), err)
			conn.Close()
			break
		}
		n.buffer[0] = nil
		n.buffer = n.buffer[1:]
		flushed++
	}

	if n.opts.ResumeKey != "" {
		data, _ := json.Marshal(configureResuming{
			Op:      "configureResuming",
			Key:     n.opts.ResumeKey,
			Timeout: int(n.opts.ResumeTimeout / time.Second),
		})
		if err := n.writeLocked(data); err != nil {
			logger.Warn.Printf("Failed to configure resuming on node %s: %v", n.Name(), err)
		}
	}

	n.connected = true
	remaining := len(n.buffer)
	n.mu.Unlock()

	telemetry.SetNodeConnected(n.Name(), true)
	telemetry.SetNodeBuffered(n.Name(), remaining)
	logger.Info.Printf("Connected to node %s (flushed %d buffered commands)", n.Name(), flushed)

	n.handler.HandleNodeConnect(n)

	go n.readLoop(conn)
}

func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.handleReadError(conn, err)
			return
		}
		n.handleMessage(data)
	}
}

func (n *Node) handleReadError(conn *websocket.Conn, err error) {
	n.mu.Lock()
	if n.conn != conn {
		// Destroyed, or a newer connection replaced this one.
		n.mu.Unlock()
		return
	}
	n.conn = nil
	n.connected = false
	n.mu.Unlock()

	conn.Close()
	telemetry.SetNodeConnected(n.Name(), false)

	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	} else {
		n.handler.HandleNodeError(n, fmt.Errorf("node %s read failed: %w", n.Name(), err))
	}

	logger.Warn.Printf("Node %s closed (%d %s), reconnecting in %s", n.Name(), code, reason, n.opts.ReconnectInterval)
	n.handler.HandleNodeClose(n, code, reason)
	n.scheduleReconnect()
}

func (n *Node) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		err = fmt.Errorf("failed to decode message from node %s: %w", n.Name(), err)
		logger.Error.Println(err)
		n.handler.HandleNodeError(n, err)
		return
	}
	msg.Raw = data

	telemetry.IncNodeMessage(n.Name(), msg.Op)

	if msg.Op == OpStats {
		var stats Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			logger.Error.Printf("Failed to decode stats from node %s: %v", n.Name(), err)
		} else {
			n.mu.Lock()
			n.stats = &stats
			n.mu.Unlock()
			telemetry.SetNodeLoad(n.Name(), stats.Load())
		}
	}

	if err := n.handler.HandleNodeMessage(n, msg); err != nil {
		logger.Error.Printf("Node %s message handling failed: %v", n.Name(), err)
		n.handler.HandleNodeError(n, err)
	}
}

func (n *Node) scheduleReconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed || n.retry != nil {
		return
	}
	n.retry = time.AfterFunc(n.opts.ReconnectInterval, n.reconnect)
}

func (n *Node) reconnect() {
	n.mu.Lock()
	n.retry = nil
	destroyed := n.destroyed
	n.mu.Unlock()

	if destroyed {
		return
	}

	telemetry.IncNodeReconnect(n.Name())
	n.handler.HandleNodeReconnect(n)
	_ = n.Connect()
}

// Send encodes v and writes it, or buffers it while the socket is down. The only
// errors are encoding failures and sending on a destroyed node.
func (n *Node) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrDestroyed
	}

	if !n.connected || n.conn == nil {
		n.buffer = append(n.buffer, data)
		telemetry.SetNodeBuffered(n.Name(), len(n.buffer))
		return nil
	}

	if err := n.writeLocked(data); err != nil {
		logger.Warn.Printf("Write to node %s failed, buffering: %v", n.Name(), err)
		n.buffer = append(n.buffer, data)
		n.connected = false
		// Closing makes the read loop fail and drive the reconnect.
		n.conn.Close()
		telemetry.SetNodeBuffered(n.Name(), len(n.buffer))
	}

	return nil
}

func (n *Node) writeLocked(data []byte) error {
	n.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return n.conn.WriteMessage(websocket.TextMessage, data)
}

// Destroy closes the socket for good. Buffered commands are dropped and no
// reconnect happens afterwards.
func (n *Node) Destroy() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	if n.retry != nil {
		n.retry.Stop()
		n.retry = nil
	}
	conn := n.conn
	n.conn = nil
	n.connected = false
	n.buffer = nil
	n.mu.Unlock()

	telemetry.SetNodeConnected(n.Name(), false)
	telemetry.SetNodeBuffered(n.Name(), 0)

	if conn == nil {
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, destroyReason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		logger.Debug.Printf("Close frame to node %s failed: %v", n.Name(), err)
	}
	conn.Close()

	logger.Info.Printf("Node %s destroyed", n.Name())
}
