package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// Live-edit message types.
const (
	MessageCommand  = "command"
	MessageAck      = "ack"
	MessageConflict = "conflict"
	MessageError    = "error"
	MessageJoin     = "join"
	MessageLeave    = "leave"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 64
)

// Message is a frame on the live-edit socket.
type Message struct {
	Type            string          `json:"type"`
	SessionID       string          `json:"sessionId,omitempty"`
	User            string          `json:"user,omitempty"`
	Version         int64           `json:"version,omitempty"`
	ExpectedVersion int64           `json:"expectedVersion,omitempty"`
	Command         json.RawMessage `json:"command,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Hub fans live-edit messages out to the sockets editing each design.
type Hub struct {
	mu      sync.RWMutex
	designs map[designid.ID]map[*Client]struct{}
	closed  bool
	logger  hclog.Logger
}

// NewHub returns an empty Hub.
func NewHub(logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		designs: make(map[designid.ID]map[*Client]struct{}),
		logger:  logger.Named("hub"),
	}
}

// Client is one socket attached to a session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	send    chan Message
	once    sync.Once
}

// Session returns the session the client was joined with.
func (c *Client) Session() *Session { return c.session }

// Join attaches conn to the design of s and announces it to the other
// editors.
func (h *Hub) Join(s *Session, conn *websocket.Conn) *Client {
	c := &Client{
		hub:     h,
		conn:    conn,
		session: s,
		send:    make(chan Message, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		// The write pump sends a close frame and drops the socket.
		c.once.Do(func() { close(c.send) })
		return c
	}
	clients, ok := h.designs[s.DesignID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.designs[s.DesignID] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("client joined", "design_id", s.DesignID, "session_id", s.ID, "user", s.User)
	h.Broadcast(s.DesignID, s.ID, Message{Type: MessageJoin, SessionID: s.ID, User: s.User})
	return c
}

// Leave detaches c. It is safe to call more than once.
func (h *Hub) Leave(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		if clients, ok := h.designs[c.session.DesignID]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.designs, c.session.DesignID)
			}
		}
		h.mu.Unlock()
		close(c.send)

		h.logger.Debug("client left", "design_id", c.session.DesignID, "session_id", c.session.ID)
		h.Broadcast(c.session.DesignID, c.session.ID, Message{
			Type:      MessageLeave,
			SessionID: c.session.ID,
			User:      c.session.User,
		})
	})
}

// Close detaches every client, which makes each write pump send a close
// frame and drop its socket. Clients joining afterwards are closed at once.
// It returns the number of clients closed.
func (h *Hub) Close() int {
	h.mu.Lock()
	h.closed = true
	var clients []*Client
	for _, byDesign := range h.designs {
		for c := range byDesign {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Leave(c)
	}
	if len(clients) > 0 {
		h.logger.Info("closed editing sockets", "clients", len(clients))
	}
	return len(clients)
}

// Broadcast queues msg for every client on designID except the session
// named by from. Slow clients whose buffer is full miss the message.
func (h *Hub) Broadcast(designID designid.ID, from string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.designs[designID] {
		if c.session.ID == from {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping message for slow client",
				"design_id", designID,
				"session_id", c.session.ID,
				"type", msg.Type,
			)
		}
	}
}

// Clients returns the number of sockets attached to designID.
func (h *Hub) Clients(designID designid.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.designs[designID])
}

// Reply queues msg for c alone.
func (c *Client) Reply(msg Message) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.designs[c.session.DesignID][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("dropping reply for slow client", "session_id", c.session.ID)
	}
}

// WritePump writes queued messages and keepalive pings until the client
// leaves or ctx is done.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("error writing message", "session_id", c.session.ID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadLoop decodes incoming messages and passes them to handle until the
// socket closes. The client leaves the hub when ReadLoop returns.
func (c *Client) ReadLoop(handle func(Message)) {
	defer c.hub.Leave(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected socket close", "session_id", c.session.ID, "error", err)
			}
			return
		}
		handle(msg)
	}
}
