package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

// CreatePost stores a post. With the "now" intent it answers with the post
// in its final status, posted or failed.
func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var req transfer.PostCreation
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	post, err := h.s.Create(c.Context(), &req)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	if id := c.Query("id"); id != "" {
		post, err := h.s.Get(c.Context(), id)
		if err != nil {
			return ErrorResponse(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	filter := models.PostFilter{
		Status:    models.Status(c.Query("status")),
		Provider:  models.Provider(c.Query("provider")),
		AccountID: c.Query("account_id"),
		Limit:     uint64(max(c.QueryInt("limit", 50), 0)),
		Offset:    uint64(max(c.QueryInt("offset", 0), 0)),
	}

	posts, err := h.s.List(c.Context(), filter)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) EditPost(c *fiber.Ctx) error {
	var req transfer.PostEdit
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	post, err := h.s.Edit(c.Context(), c.Params("id"), &req)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	post, err := h.s.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "scheduledAt is required",
		})
	}

	post, err := h.s.Schedule(c.Context(), c.Params("id"), req.ScheduledAt)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RetryPost(c *fiber.Ctx) error {
	post, err := h.s.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ClonePost(c *fiber.Ctx) error {
	var req transfer.CloneRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to parse json",
			})
		}
	}

	post, err := h.s.Clone(c.Context(), c.Params("id"), models.Provider(req.Provider))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Remove(c.Context(), c.Query("id")); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
