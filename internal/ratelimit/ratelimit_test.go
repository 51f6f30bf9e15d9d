package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestInMemoryLimiter(t *testing.T) {
	l := NewInMemoryLimiter(1, time.Hour, 2)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 was not allowed")
	}
	if l.Allow("a") {
		t.Error("third request within the hour was allowed")
	}
	if !l.Allow("b") {
		t.Error("other key was limited")
	}
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Post("/generate", Middleware(NewInMemoryLimiter(1, time.Hour, 1)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i, want := range []int{fiber.StatusOK, fiber.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest("POST", "/generate", nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != want {
			t.Errorf("request %d: status = %d, want %d", i, resp.StatusCode, want)
		}
	}
}
