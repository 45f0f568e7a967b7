package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"zing-server/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client is one live websocket session. Identity fields are stamped once
// by the auth resolver; later messages cannot override them.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	SessionID string
	Send      chan []byte

	mu       sync.Mutex
	playerID string
	name     string
	role     string
	roomID   string
	state    SessionState

	closeMu sync.Mutex
	closed  bool

	onDisconnect func(*Client)
}

// NewClient creates a new client session.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		SessionID: sessionID,
		Send:      make(chan []byte, 256),
		state:     StateUnauthenticated,
	}
}

// Stamp fixes the session identity after authentication.
func (c *Client) Stamp(playerID, name, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.name = name
	c.role = role
	if c.state == StateUnauthenticated {
		c.state = StateLobby
	}
}

// PlayerID returns the stamped identity, empty before auth.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Name returns the stamped display name.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Role returns the stamped role request (player or spectator).
func (c *Client) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// RoomID returns the room this session is attached to, if any.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// SetRoomID attaches or detaches the session from a room.
func (c *Client) SetRoomID(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	if roomID != "" {
		c.state = StateInRoom
	} else if c.state == StateInRoom {
		c.state = StateLobby
	}
}

// State returns the session lifecycle state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState moves the session lifecycle state.
func (c *Client) SetState(state SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// SetOnDisconnect installs the callback invoked when the read pump exits.
func (c *Client) SetOnDisconnect(callback func(*Client)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = callback
}

func (c *Client) disconnectCallback() func(*Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onDisconnect
}

// Close closes the client connection.
func (c *Client) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// IsClosed returns whether the client is closed.
func (c *Client) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// MessageHandler is a function that handles incoming messages.
type MessageHandler func(client *Client, msg *Message)

// ReadPump pumps messages from the websocket connection to the handler.
func (c *Client) ReadPump(handler MessageHandler) {
	defer func() {
		if callback := c.disconnectCallback(); callback != nil {
			callback(c)
		}
		c.Hub.Unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Get().Debug("websocket read error",
					zap.String("session_id", c.SessionID),
					zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Get().Warn("dropping malformed message",
				zap.String("session_id", c.SessionID),
				zap.Error(err))
			continue
		}

		handler(c, &msg)
	}
}

// WritePump pumps queued messages to the websocket connection and keeps
// the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Get().Debug("websocket write error",
					zap.String("session_id", c.SessionID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message for delivery. Delivery is best effort:
// when the session's buffer is full the message is dropped.
func (c *Client) SendMessage(msg *Message) error {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.SendRaw(bytes)
}

// SendRaw queues pre-marshaled bytes.
func (c *Client) SendRaw(bytes []byte) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closeMu.Unlock()

	select {
	case c.Send <- bytes:
		return nil
	default:
		return ErrChannelFull
	}
}

// HubError is a sentinel error type for the ws package.
type HubError string

func (e HubError) Error() string { return string(e) }

const (
	ErrChannelFull HubError = "send channel full"
)
