package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/protocol"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Config describes one editor connection.
type Config struct {
	URL         string
	Header      http.Header // e.g. Authorization: Bearer <jwt>
	DocumentID  string
	DisplayName string

	SelectionDebounce time.Duration
	QueueOptions      []Option
}

// Client connects a Queue and a PresenceSet to the server over a websocket.
// Reconnect keeps the queue, so pending edits survive a dropped connection.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	Queue    *Queue
	Presence *PresenceSet
	selector *SelectionDebouncer

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	readErr error
	// OnError receives errors the read loop could not hand back to a caller.
	OnError func(error)
}

// Dial connects and sends the join. The init arrives asynchronously; use
// Queue.Wait to block on it.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		Presence: NewPresenceSet(),
	}
	c.Queue = NewQueue(c, cfg.QueueOptions...)
	c.selector = NewSelectionDebouncer(cfg.SelectionDebounce, func(sel protocol.Selection) {
		if err := c.Send(sel); err != nil {
			c.report(err)
		}
	})
	if err := c.connect(ctx, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context, knownVersion *int) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return &ChannelFailure{Err: err}
	}
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.readErr = nil
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return c.Send(protocol.Join{DocumentID: c.cfg.DocumentID, DisplayName: c.cfg.DisplayName, KnownVersion: knownVersion})
}

// Send writes one message. Implements Sender for the queue.
func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return &ChannelFailure{Err: errors.New("not connected")}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &ChannelFailure{Err: err}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	var failure error
	defer func() {
		c.Presence.Clear()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.readErr = failure
		}
		c.mu.Unlock()
		conn.Close()
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			failure = &ChannelFailure{Err: err}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.report(fmt.Errorf("decode server message: %w", err))
			continue
		}
		switch m := msg.(type) {
		case protocol.Presence, protocol.UserLeft:
			c.Presence.Handle(m)
			continue
		case protocol.Error:
			c.report(fmt.Errorf("server: %s", m.Message))
			continue
		case protocol.Init:
			c.Presence.Handle(m)
		}
		if err := c.Queue.Handle(msg); err != nil {
			c.report(err)
		}
	}
}

func (c *Client) report(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Edit applies steps locally and submits them.
func (c *Client) Edit(steps ...document.Step) error {
	return c.Queue.Edit(steps...)
}

// Select reports the local selection, debounced. Nil bounds clear it.
func (c *Client) Select(from, to *int) {
	c.selector.Update(from, to)
}

// Done is closed when the current connection drops.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the *ChannelFailure that ended the last connection.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Reconnect dials again and joins with the last known version so the server
// can send only the missed steps. Pending edits are resubmitted after init.
func (c *Client) Reconnect(ctx context.Context) error {
	c.closeConn()
	version, ready := c.Queue.PrepareRejoin()
	var known *int
	if ready {
		known = &version
	}
	return c.connect(ctx, known)
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	<-done
}

// Close ends the connection.
func (c *Client) Close() error {
	c.selector.Stop()
	c.closeConn()
	return nil
}
