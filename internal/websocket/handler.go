package websocket

import (
	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/pkg/protocol"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs one editor connection until it closes. The first message
// must be a join.
func ServeWs(hub *Hub, registry *collab.Registry, conn *websocket.Conn, userID string, opts Options, log logger.ILogger) {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	client := &Client{
		hub:      hub,
		registry: registry,
		conn:     conn,
		logger:   log,
		opts:     opts,
		id:       uuid.NewString(),
		user:     collab.User{ID: userID},
		send:     make(chan protocol.Message, opts.SendBuffer),
	}
	if !hub.add(client) {
		return
	}

	go client.writePump()
	client.readPump()
}
