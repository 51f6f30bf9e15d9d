package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/database"
	job "github.com/maheshrc27/autopost/internal/jobs"
	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/internal/queue"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/pkg/logger"
)

// ctlApp is the subset of the server the commands need, built against the
// same database.
type ctlApp struct {
	cfg      *config.Config
	db       *sql.DB
	log      *slog.Logger
	posts    service.PostService
	accounts service.AccountService
	sweep    *job.SweepJob
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.LoadConfig()
}

func withApp(ctx context.Context, verbose bool, fn func(ctx context.Context, a *ctlApp) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.Discard()
	if verbose {
		log = logger.New(logger.Opts{Env: cfg.Env, Level: cfg.LogLevel})
	}

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	postRepo := repository.NewPostRepository(db, cfg.DatabaseDriver, clock)
	accountRepo := repository.NewAccountRepository(db, cfg.DatabaseDriver, clock)
	lm := lifecycle.NewManager(postRepo, clock, log)
	accounts := service.NewAccountService(*cfg, accountRepo, clock)

	var uploader publisher.MediaUploader
	if cfg.R2.Enabled() {
		r2, err := service.NewR2Service(ctx, *cfg)
		if err != nil {
			return err
		}
		uploader = r2
	}

	registry := publisher.NewRegistry(
		publisher.NewXPublisher(publisher.XConfig{APIURL: cfg.Providers.XAPIURL, UploadURL: cfg.Providers.XUploadURL}, log),
		publisher.NewInstagramPublisher(publisher.InstagramConfig{GraphURL: cfg.Providers.InstagramGraphURL, Uploader: uploader, Clock: clock}, log),
	)
	dispatcher := queue.NewDispatcher(lm, registry, accounts, queue.Config{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		SubmitTimeout:  cfg.Dispatch.SubmitTimeout,
		BackoffInitial: cfg.Dispatch.BackoffInitial,
		BackoffMax:     cfg.Dispatch.BackoffMax,
	}, clock, log)

	return fn(ctx, &ctlApp{
		cfg:      cfg,
		db:       db,
		log:      log,
		posts:    service.NewPostService(postRepo, lm, dispatcher, clock),
		accounts: accounts,
		sweep: job.NewSweepJob(postRepo, lm, dispatcher, job.SweepConfig{
			BatchSize:   uint64(cfg.Jobs.SweepBatchSize),
			MaxInFlight: cfg.Dispatch.MaxInFlight,
		}, clock, log),
	})
}

func quietLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
