package handler

import (
	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/internal/pkg/serverutils"
	internalWS "itinerary-collab-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// CollabHandler upgrades authenticated requests to the collaboration
// websocket.
type CollabHandler struct {
	hub      *internalWS.Hub
	registry *collab.Registry
	secret   string
	opts     internalWS.Options
	logger   logger.ILogger
}

func NewCollabHandler(hub *internalWS.Hub, registry *collab.Registry, secret string, opts internalWS.Options, log logger.ILogger) *CollabHandler {
	return &CollabHandler{
		hub:      hub,
		registry: registry,
		secret:   secret,
		opts:     opts,
		logger:   log,
	}
}

func (h *CollabHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/collab", h.ServeWs)
}

// ServeWs authenticates the handshake, then runs the connection. The
// document is chosen by the first (join) message.
func (h *CollabHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing token (Query 'token' or Header 'Authorization')"))
	}
	userID, err := serverutils.ParseUserID(tokenStr, h.secret)
	if err != nil {
		h.logger.Warn("CollabHandler", "Invalid token in websocket handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid token"))
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("CollabHandler", "Websocket session started", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, h.registry, conn, userID, h.opts, h.logger)
		h.logger.Info("CollabHandler", "Websocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}
