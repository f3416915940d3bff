package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roundkeeper/go/internal/leaderboard"
	"github.com/mcdev12/roundkeeper/go/internal/lifecycle"
	"github.com/rs/zerolog/log"
)

// LeaderboardLoader returns the current leaderboard document.
type LeaderboardLoader interface {
	Load() ([]byte, error)
}

// ConnectionManager keeps the pool of live leaderboard subscribers and fans
// out snapshots and phase changes to them.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	network  string
	current  LeaderboardLoader
	clock    clockwork.Clock

	broadcastCh chan []byte
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// leaderboard is public
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. current supplies the
// document sent to a client as soon as it connects.
func NewConnectionManager(config ConnectionConfig, network string, current LeaderboardLoader, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		network:     network,
		current:     current,
		clock:       clock,
		broadcastCh: make(chan []byte, 256),
	}
}

// Start processes broadcasts until ctx is done, then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case data := <-cm.broadcastCh:
			cm.handleBroadcast(data)
		}
	}
}

// ServeHTTP upgrades the request and subscribes the client.
func (cm *ConnectionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// on failure the upgrader has already replied
	_ = cm.UpgradeConnection(w, r)
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and queues the
// current leaderboard as its first message.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 16),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	if initial, err := cm.currentMessage(); err != nil {
		log.Error().Err(err).Str("connection_id", connection.ID).Msg("failed to load current leaderboard")
	} else {
		connection.Send <- initial
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) currentMessage() ([]byte, error) {
	if cm.current == nil {
		return cm.encode(MessageTypeLeaderboard, cm.clock.Now(), json.RawMessage("[]"))
	}
	doc, err := cm.current.Load()
	if err != nil {
		return nil, err
	}
	return cm.encode(MessageTypeLeaderboard, cm.clock.Now(), json.RawMessage(doc))
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Dur("connected_for", cm.clock.Since(conn.ConnectedAt)).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// ConnectionCount returns the number of live subscribers.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// LeaderboardUpdated broadcasts a fresh snapshot.
func (cm *ConnectionManager) LeaderboardUpdated(ctx context.Context, snap leaderboard.Snapshot) error {
	doc, err := leaderboard.Encode(snap.Entries)
	if err != nil {
		return err
	}
	data, err := cm.encode(MessageTypeLeaderboard, snap.TakenAt, json.RawMessage(doc))
	if err != nil {
		return err
	}
	return cm.broadcast(data)
}

// PhaseChanged broadcasts a round phase change.
func (cm *ConnectionManager) PhaseChanged(ctx context.Context, t lifecycle.Transition) error {
	data, err := cm.encode(MessageTypePhase, t.At, PhasePayload{
		From:      t.From.String(),
		To:        t.To.String(),
		At:        t.At,
		Trigger:   t.Trigger,
		GameStart: t.Window.Start,
		GameEnd:   t.Window.End,
	})
	if err != nil {
		return err
	}
	return cm.broadcast(data)
}

func (cm *ConnectionManager) encode(msgType MessageType, at time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Network:   cm.network,
		Timestamp: at.UTC(),
		Data:      raw,
	})
}

func (cm *ConnectionManager) broadcast(data []byte) error {
	select {
	case cm.broadcastCh <- data:
		return nil
	default:
		log.Warn().Msg("broadcast channel full, dropping message")
		return fmt.Errorf("broadcast channel full")
	}
}

func (cm *ConnectionManager) handleBroadcast(data []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		if !cm.trySend(conn, data) {
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// trySend queues data unless the buffer is full or the connection is gone.
func (cm *ConnectionManager) trySend(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.connections[conn] {
		return true
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed. Clients
// never send commands.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
