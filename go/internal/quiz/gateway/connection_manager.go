package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/client"
	"github.com/mcdev12/quizsync/go/internal/quiz/projection"
)

// ConnectionManager tracks WebSocket connections. Each connection hosts its
// own SessionClient; the manager only groups them by session for stats and
// shutdown, since every client renders from its own store subscription.
type ConnectionManager struct {
	// Connections organized by session code; "" holds those not yet in one
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clients  client.Config
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager
	Client    *client.SessionClient

	ctx    context.Context
	cancel context.CancelFunc

	sendMu sync.Mutex
	closed bool

	// Connection metadata
	ConnectedAt time.Time

	// Written by both pumps.
	pingMu   sync.Mutex
	lastPing time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  10 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, clients client.Config) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		clients: clients,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and gives it a
// session client for identity.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity client.Identity) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		Client:      client.New(cm.clients, identity),
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
	}
	connection.touch()

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", identity.PlayerID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

// moveConnection files conn under the session it created or joined.
func (cm *ConnectionManager) moveConnection(conn *Connection, sessionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, ok := cm.sessionConnections[conn.SessionID]; ok {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.sessionConnections, conn.SessionID)
		}
	}
	conn.SessionID = sessionID
	if cm.sessionConnections[sessionID] == nil {
		cm.sessionConnections[sessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[sessionID][conn] = true
}

// unregisterConnection removes a connection and releases its session client
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	sessionID := conn.SessionID
	connections, exists := cm.sessionConnections[sessionID]
	if exists {
		if _, exists = connections[conn]; exists {
			delete(connections, conn)
			if len(connections) == 0 {
				delete(cm.sessionConnections, sessionID)
			}
		}
	}
	cm.mu.Unlock()

	if !exists {
		return
	}

	conn.cancel()
	conn.closeSend()
	conn.Client.Close()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.Client.Identity().PlayerID).
		Str("session_id", sessionID).
		Msg("connection unregistered")
}

// CloseAll disconnects every client, used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.sessionConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// ConnectionStats is what /ws/stats reports.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{SessionConnections: make(map[string]int)}
	for sessionID, connections := range cm.sessionConnections {
		stats.TotalConnections += len(connections)
		if sessionID == "" {
			continue
		}
		stats.ActiveSessions++
		stats.SessionConnections[sessionID] = len(connections)
	}
	return stats
}

// LastPing reports when the connection last sent a ping or received a pong.
func (c *Connection) LastPing() time.Time {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.lastPing
}

func (c *Connection) touch() {
	c.pingMu.Lock()
	c.lastPing = time.Now()
	c.pingMu.Unlock()
}

// enqueue hands a message to the write pump. A client too slow to keep up
// is disconnected.
func (c *Connection) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal message")
		return
	}

	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.Send <- data:
		c.sendMu.Unlock()
	default:
		c.sendMu.Unlock()
		log.Warn().
			Str("connection_id", c.ID).
			Msg("connection send buffer full, closing connection")
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// RenderGameMaster implements client.Renderer.
func (c *Connection) RenderGameMaster(view projection.GMView) {
	c.enqueueView(string(client.RoleGameMaster), view)
}

// RenderPlayer implements client.Renderer.
func (c *Connection) RenderPlayer(view projection.PlayerView) {
	c.enqueueView(string(client.RolePlayer), view)
}

func (c *Connection) enqueueView(role string, view any) {
	data, err := json.Marshal(view)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal view")
		return
	}
	c.enqueue(Message{Type: MessageView, Role: role, Data: data})
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
			c.touch()
		}
	}
}

// readPump reads commands until the socket closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs one command against the connection's session
// client. Commands from one connection run in order.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.enqueue(Message{Type: MessageError, Error: "malformed command"})
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.CommandTimeout)
	defer cancel()

	data, err := c.execute(ctx, cmd)
	if err != nil {
		c.reportError(cmd, err)
		return
	}
	c.enqueue(Message{Type: MessageAck, Command: cmd.Type, RequestID: cmd.RequestID, Data: data})
}

func (c *Connection) execute(ctx context.Context, cmd Command) (json.RawMessage, error) {
	cl := c.Client
	switch cmd.Type {
	case CommandCreate:
		if cmd.Settings == nil {
			return nil, fmt.Errorf("%w: settings are required", quiz.ErrInvalidSettings)
		}
		code, err := cl.CreateSession(ctx, *cmd.Settings)
		if err != nil {
			return nil, err
		}
		c.Manager.moveConnection(c, code)
		if err := cl.Watch(c.ctx, c); err != nil {
			return nil, err
		}
		return json.Marshal(CreatedPayload{Code: code})

	case CommandJoin:
		if err := cl.JoinSession(ctx, cmd.Code); err != nil {
			return nil, err
		}
		c.Manager.moveConnection(c, cl.SessionID())
		return nil, cl.Watch(c.ctx, c)

	case CommandStart:
		return nil, cl.Start(ctx)
	case CommandAdvance:
		return nil, cl.Advance(ctx)
	case CommandEnd:
		return nil, cl.End(ctx)

	case CommandAnswer:
		res, err := cl.SubmitAnswer(ctx, cmd.Option)
		if err != nil {
			return nil, err
		}
		return json.Marshal(AnswerPayload{Correct: res.Correct, Awarded: res.Awarded, Score: res.Score})

	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Type)
	}
}

// reportError tells the user about failures they can act on. Normal races
// such as a late or duplicate answer are only logged.
func (c *Connection) reportError(cmd Command, err error) {
	logEvt := log.Warn()
	if quiz.IsSilent(err) {
		logEvt = log.Debug()
	}
	logEvt.
		Err(err).
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Str("command", string(cmd.Type)).
		Msg("command rejected")

	if quiz.IsSilent(err) {
		return
	}
	c.enqueue(Message{
		Type:      MessageError,
		Command:   cmd.Type,
		RequestID: cmd.RequestID,
		Error:     userMessage(err),
	})
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, quiz.ErrSessionNotFound):
		return "Game not found. Check the code and try again."
	case errors.Is(err, quiz.ErrNotJoinable):
		return "This game has already started."
	case errors.Is(err, quiz.ErrSupplyFailure):
		return "No questions are available for that category."
	case errors.Is(err, quiz.ErrInvalidSettings):
		return "Those game settings are not valid."
	case errors.Is(err, quiz.ErrInvalidTransition):
		return "That is not possible right now."
	case errors.Is(err, client.ErrOwnSession):
		return "You are hosting this game. Share the code with your players instead."
	case errors.Is(err, client.ErrAlreadyInSession):
		return "You are already in a game."
	default:
		return "Something went wrong. Please try again."
	}
}
