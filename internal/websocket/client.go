package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/pkg/protocol"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	joinTimeout = 10 * time.Second
)

// Options bound a connection's resources.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
}

// Client is one editor connection. It is the collab.Subscriber of its
// session: the session queues messages through Deliver and writePump sends
// them one per frame, in order.
type Client struct {
	hub      *Hub
	registry *collab.Registry
	conn     *websocket.Conn
	logger   logger.ILogger
	opts     Options

	id   string
	user collab.User // fixed at upgrade; the join adds the display name to a copy

	// documentID is only touched by readPump.
	documentID string

	mu     sync.Mutex
	send   chan protocol.Message
	closed bool
}

var _ collab.Subscriber = (*Client)(nil)

func (c *Client) ClientID() string { return c.id }

// Deliver queues msg without blocking. It reports false when the buffer is
// full or the connection is closing.
func (c *Client) Deliver(msg protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump decodes client messages and hands them to the session. It owns
// the session membership: leaving happens here, before the send channel is
// closed, so a session never delivers to a closed client.
func (c *Client) readPump() {
	defer func() {
		if c.documentID != "" {
			if err := c.registry.Leave(c.documentID, c.id); err != nil {
				c.logger.Warn("Client", "Leave failed", map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
		}
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("Client", "Connection closed unexpectedly", map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.fail(err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) fail(err error) {
	c.logger.Debug("Client", "Message refused", map[string]interface{}{"client_id": c.id, "error": err.Error()})
	c.Deliver(protocol.Error{Message: err.Error()})
}

func (c *Client) handle(msg protocol.Message) {
	if join, ok := msg.(protocol.Join); ok {
		c.join(join)
		return
	}
	if c.documentID == "" {
		c.fail(errors.New("join a document first"))
		return
	}
	session, ok := c.registry.Get(c.documentID)
	if !ok {
		c.fail(errors.New("session is closed"))
		return
	}

	switch m := msg.(type) {
	case protocol.Submit:
		// the session replies through Deliver; the error is for logging only
		if _, err := session.Submit(c.id, m.BaseVersion, m.Steps); err != nil {
			c.logger.Debug("Client", "Submission rejected", map[string]interface{}{
				"client_id": c.id, "document_id": c.documentID, "base_version": m.BaseVersion, "error": err.Error(),
			})
		}
	case protocol.Selection:
		if err := session.UpdateSelection(c.id, m.From, m.To); err != nil {
			c.fail(err)
		}
	default:
		c.fail(errors.New("unexpected message type " + string(msg.MessageType())))
	}
}

func (c *Client) join(m protocol.Join) {
	if c.documentID != "" {
		c.fail(errors.New("already joined " + c.documentID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	user := c.user
	user.DisplayName = m.DisplayName
	if _, err := c.registry.Join(ctx, m.DocumentID, c, user, m.KnownVersion); err != nil {
		c.logger.Error("Client", "Join failed", map[string]interface{}{
			"client_id": c.id, "document_id": m.DocumentID, "error": err.Error(),
		})
		c.fail(err)
		return
	}
	c.documentID = m.DocumentID
}

// writePump writes queued messages, one JSON message per frame, and keeps
// the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := protocol.Encode(msg)
			if err != nil {
				c.logger.Error("Client", "Encode failed", map[string]interface{}{"client_id": c.id, "error": err.Error()})
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
