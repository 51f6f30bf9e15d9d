package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/autopost/pkg/apperror"
)

const OperatorLocal = "operator"

func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals(OperatorLocal).(string)
	return operator
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case apperror.IsValidation(err):
		return fiber.StatusBadRequest
	case apperror.IsNotFound(err):
		return fiber.StatusNotFound
	case apperror.IsConflict(err):
		return fiber.StatusConflict
	case errors.Is(err, apperror.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperror.ErrUnavailable):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// ErrorResponse writes err as {"error", "code"}. Internal errors are logged
// and replaced with a generic message.
func ErrorResponse(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{
			"error": "Something went wrong",
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message(err),
		"code":  apperror.GetCode(err),
	})
}

// message returns the message of the first coded error in the chain.
func message(err error) string {
	var e *apperror.Error
	for cur := err; errors.As(cur, &e); cur = e.Err {
		if e.Code != "" {
			return e.Message
		}
	}
	return err.Error()
}
