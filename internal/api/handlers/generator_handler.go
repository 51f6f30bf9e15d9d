package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/transfer"
)

type GeneratorHandler struct {
	s service.GeneratorService
}

func NewGeneratorHandler(s service.GeneratorService) *GeneratorHandler {
	return &GeneratorHandler{s: s}
}

func (h *GeneratorHandler) GenerateAll(c *fiber.Ctx) error {
	var req transfer.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	content, err := h.s.Generate(c.Context(), &req)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(content)
}
