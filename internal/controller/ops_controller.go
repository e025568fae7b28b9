package controller

import (
	"errors"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/dto"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/internal/pkg/serverutils"
	internalWS "itinerary-collab-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
)

type IOpsController interface {
	RegisterRoutes(r fiber.Router)
	Stats(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
	GetLogDetail(ctx *fiber.Ctx) error
}

type opsController struct {
	hub      *internalWS.Hub
	registry *collab.Registry
	logs     logger.ILogger
	auth     fiber.Handler
}

// NewOpsController serves runtime state; logs are read back from the
// collaboration log file.
func NewOpsController(hub *internalWS.Hub, registry *collab.Registry, logs logger.ILogger, auth fiber.Handler) IOpsController {
	return &opsController{hub: hub, registry: registry, logs: logs, auth: auth}
}

func (c *opsController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ops")
	h.Use(c.auth)
	h.Get("/stats", c.Stats)
	h.Get("/logs", c.GetLogs)
	h.Get("/logs/:id", c.GetLogDetail)
}

func (c *opsController) Stats(ctx *fiber.Ctx) error {
	users, conns := c.hub.Stats()
	return ctx.JSON(serverutils.SuccessResponse("Stats", dto.OpsStatsResponse{
		Users:           users,
		Connections:     conns,
		ActiveDocuments: c.registry.Active(),
	}))
}

func (c *opsController) GetLogs(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	offset := ctx.QueryInt("offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	logs, err := c.logs.GetLogs(ctx.Query("level", ""), limit, offset)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", dto.LogListResponse{Logs: logs, Limit: limit, Offset: offset}))
}

func (c *opsController) GetLogDetail(ctx *fiber.Ctx) error {
	entry, err := c.logs.GetLogById(ctx.Params("id"))
	if err != nil {
		if errors.Is(err, logger.ErrLogNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, err.Error()))
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Log detail", entry))
}
