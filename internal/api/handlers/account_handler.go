package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/transfer"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(s service.AccountService) *AccountHandler {
	return &AccountHandler{s: s}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context(), models.Provider(c.Query("provider")))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) AddAccount(c *fiber.Ctx) error {
	var req transfer.AccountCreation
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	account, err := h.s.Add(c.Context(), &req)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	if err := h.s.Remove(c.Context(), c.Query("id")); err != nil {
		return ErrorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *AccountHandler) SetDefaultAccount(c *fiber.Ctx) error {
	if err := h.s.SetDefault(c.Context(), c.Query("id")); err != nil {
		return ErrorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
