package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/api"
	"github.com/maheshrc27/autopost/internal/database"
	job "github.com/maheshrc27/autopost/internal/jobs"
	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/internal/queue"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logg := logger.New(logger.Opts{Env: cfg.Env, Level: cfg.LogLevel, SentryDSN: cfg.SentryDSN})
	defer logger.Flush()

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := database.Migrate(db, cfg.DatabaseDriver, logg); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	clock := clockwork.NewRealClock()

	postRepo := repository.NewPostRepository(db, cfg.DatabaseDriver, clock)
	accountRepo := repository.NewAccountRepository(db, cfg.DatabaseDriver, clock)

	lm := lifecycle.NewManager(postRepo, clock, logg)
	accountService := service.NewAccountService(*cfg, accountRepo, clock)
	generatorService := service.NewGeneratorService(*cfg)

	var uploader publisher.MediaUploader
	if cfg.R2.Enabled() {
		r2Service, err := service.NewR2Service(ctx, *cfg)
		if err != nil {
			log.Fatalf("Failed to set up media storage: %v", err)
		}
		uploader = r2Service
	} else {
		slog.Warn("R2 is not configured, inline images cannot be published to instagram")
	}

	xPublisher := publisher.NewXPublisher(publisher.XConfig{
		APIURL:    cfg.Providers.XAPIURL,
		UploadURL: cfg.Providers.XUploadURL,
	}, logg)
	instagramPublisher := publisher.NewInstagramPublisher(publisher.InstagramConfig{
		GraphURL: cfg.Providers.InstagramGraphURL,
		Uploader: uploader,
		Clock:    clock,
	}, logg)
	registry := publisher.NewRegistry(xPublisher, instagramPublisher)

	dispatcher := queue.NewDispatcher(lm, registry, accountService, queue.Config{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		SubmitTimeout:  cfg.Dispatch.SubmitTimeout,
		BackoffInitial: cfg.Dispatch.BackoffInitial,
		BackoffMax:     cfg.Dispatch.BackoffMax,
	}, clock, logg)
	postService := service.NewPostService(postRepo, lm, dispatcher, clock)

	app := api.NewApp(*cfg)
	api.SetupRoutes(app, *cfg, api.Services{
		Posts:     postService,
		Accounts:  accountService,
		Generator: generatorService,
		DB:        db,
	})

	// cron jobs
	sweepJob := job.NewSweepJob(postRepo, lm, dispatcher, job.SweepConfig{
		BatchSize:   uint64(cfg.Jobs.SweepBatchSize),
		MaxInFlight: cfg.Dispatch.MaxInFlight,
	}, clock, logg)
	staleJob := job.NewStaleDispatchJob(postRepo, lm, cfg.Jobs.StaleDispatchAfter, uint64(cfg.Jobs.SweepBatchSize), clock, logg)
	refreshTokenJob := job.NewTokenRefreshJob(accountService, cfg.Jobs.TokenRefreshWindow, clock, instagramPublisher)

	var asynqServer *asynq.Server
	if cfg.Dispatch.Mode == config.DispatchModeAsynq {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client := asynq.NewClient(redisConn)
		defer client.Close()
		sweepJob.WithEnqueuer(client)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: int(cfg.Dispatch.MaxInFlight),
			Logger:      newAsynqLogger(logg),
		})
		worker := queue.NewWorker(postRepo, dispatcher, logg)

		go func() {
			slog.Info("Starting the Asynq server...")
			if err := asynqServer.Run(worker.NewServeMux()); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	c := cron.New()
	mustSchedule(c, cfg.Jobs.SweepInterval.String(), sweepJob.Run)
	mustSchedule(c, (cfg.Jobs.StaleDispatchAfter / 3).String(), staleJob.Run)
	mustSchedule(c, cfg.Jobs.TokenRefreshInterval.String(), refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("Server is running", "addr", cfg.HTTPAddr, "dispatch_mode", cfg.Dispatch.Mode)

	gracefulShutdown(app, c, asynqServer)
}

func mustSchedule(c *cron.Cron, every string, fn func()) {
	if err := c.AddFunc("@every "+every, fn); err != nil {
		log.Fatalf("Invalid job interval %q: %v", every, err)
	}
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

// gracefulShutdown stops taking requests and new sweeps, then lets running
// work finish. The deferred database close runs after it returns.
func gracefulShutdown(app *fiber.App, c *cron.Cron, asynqServer *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("Shutting down server...")

	c.Stop()
	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if err := app.Shutdown(); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}

	slog.Info("Server shutdown complete.")
}
