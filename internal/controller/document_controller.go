package controller

import (
	"context"
	"errors"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/dto"
	"itinerary-collab-be/internal/pkg/serverutils"
	"itinerary-collab-be/internal/service"
	"itinerary-collab-be/pkg/compiler"

	"github.com/gofiber/fiber/v2"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	Compile(ctx *fiber.Ctx) error
	Generate(ctx *fiber.Ctx) error
}

type documentController struct {
	documentService   service.IDocumentService
	generationService service.IGenerationService
	auth              fiber.Handler
}

func NewDocumentController(documentService service.IDocumentService, generationService service.IGenerationService, auth fiber.Handler) IDocumentController {
	return &documentController{
		documentService:   documentService,
		generationService: generationService,
		auth:              auth,
	}
}

func (c *documentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/documents")
	h.Use(c.auth)
	h.Get("/:id", c.Show)
	h.Post("/:id/compile", c.Compile)
	h.Post("/:id/generate", c.Generate)
}

func (c *documentController) Show(ctx *fiber.Ctx) error {
	res, err := c.documentService.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Document", res))
}

func (c *documentController) Compile(ctx *fiber.Ctx) error {
	var req dto.CompileRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.documentService.Compile(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Compiled", res))
}

func (c *documentController) Generate(ctx *fiber.Ctx) error {
	var req dto.GenerateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	id := ctx.Params("id")
	var (
		res *service.GenerateResult
		err error
	)
	if req.Stream {
		res, err = c.generationService.StreamBlocks(ctx.UserContext(), id, req.Prompt, nil)
	} else {
		res, err = c.generationService.Generate(ctx.UserContext(), id, req.Prompt)
	}
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Generated", dto.GenerateResponse{
		Mode:    string(res.Mode),
		Steps:   res.Steps,
		Version: res.Version,
	}))
}

// writeError maps domain failures to status codes.
func writeError(ctx *fiber.Ctx, err error) error {
	var (
		compileFailure *compiler.CompileFailure
		conflict       *collab.VersionConflict
	)
	switch {
	case errors.As(err, &compileFailure):
		body := dto.CompileErrorResponse{Kind: string(compileFailure.Kind), Message: err.Error()}
		if compileFailure.StepIndex >= 0 {
			index := compileFailure.StepIndex
			body.StepIndex = &index
		}
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(serverutils.BaseResponse[dto.CompileErrorResponse]{
			Code: 422, Message: "compile failed", Data: body,
		})
	case errors.As(err, &conflict):
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.ErrorResponse(409, err.Error()))
	case errors.Is(err, service.ErrNoContent):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(serverutils.ErrorResponse(422, err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return ctx.Status(fiber.StatusGatewayTimeout).JSON(serverutils.ErrorResponse(504, err.Error()))
	}
	return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
}
