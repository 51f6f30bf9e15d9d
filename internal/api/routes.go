// Package api wires the HTTP surface: operator routes under /api behind the
// token middleware, plus health and metrics.
package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/api/handlers"
	"github.com/maheshrc27/autopost/internal/api/middleware"
	"github.com/maheshrc27/autopost/internal/metrics"
	"github.com/maheshrc27/autopost/internal/ratelimit"
	"github.com/maheshrc27/autopost/internal/service"
)

type Services struct {
	Posts     service.PostService
	Accounts  service.AccountService
	Generator service.GeneratorService
	DB        handlers.Pinger
}

func NewApp(cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code == fiber.StatusInternalServerError {
				slog.Error("unhandled error", "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	if !cfg.IsProduction() || cfg.LogLevel == "debug" {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: cfg.FrontendURL != "",
		MaxAge:           3600,
	}))
	app.Use(metrics.Middleware())

	return app
}

func SetupRoutes(app *fiber.App, cfg config.Config, s Services) {
	health := handlers.NewHealthHandler(s.DB)
	app.Get("/healthz", health.Healthz)
	app.Get("/metrics", metrics.Handler())

	authMiddleware := middleware.NewAuthMiddleware(cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	generator := handlers.NewGeneratorHandler(s.Generator)
	limiter := ratelimit.NewInMemoryLimiter(cfg.Generator.RatePerMinute, time.Minute, 3)
	api.Post("/ai/generate-all", ratelimit.Middleware(limiter), generator.GenerateAll)

	post := handlers.NewPostHandler(s.Posts)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Put("/posts/:id", post.EditPost)
	api.Post("/posts/:id/publish", post.PublishPost)
	api.Post("/posts/:id/schedule", post.SchedulePost)
	api.Post("/posts/:id/retry", post.RetryPost)
	api.Post("/posts/:id/clone", post.ClonePost)
	api.Post("/posts/remove", post.RemovePost)

	account := handlers.NewAccountHandler(s.Accounts)
	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/add", account.AddAccount)
	api.Post("/accounts/remove", account.RemoveAccount)
	api.Post("/accounts/default", account.SetDefaultAccount)
}
