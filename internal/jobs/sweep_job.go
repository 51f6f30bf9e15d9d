package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/metrics"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/queue"
	"github.com/maheshrc27/autopost/internal/repository"
)

type SweepConfig struct {
	BatchSize   uint64
	MaxInFlight int64
}

type SweepReport struct {
	ID       string `json:"id"`
	Due      int    `json:"due"`
	Claimed  int    `json:"claimed"`
	Skipped  int    `json:"skipped"`
	Enqueued int    `json:"enqueued"`
	Posted   int    `json:"posted"`
	Failed   int    `json:"failed"`
	Errors   int    `json:"errors"`
}

// SweepJob finds due scheduled posts, claims them and dispatches each one in
// its own goroutine. The in-flight semaphore is shared by every sweep of
// the job, so overlapping sweeps stay within the same bound.
type SweepJob struct {
	posts      repository.PostRepository
	lifecycle  *lifecycle.Manager
	dispatcher *queue.Dispatcher
	enqueuer   queue.Enqueuer
	sem        *semaphore.Weighted
	batchSize  uint64
	clock      clockwork.Clock
	log        *slog.Logger
}

func NewSweepJob(
	posts repository.PostRepository,
	lm *lifecycle.Manager,
	dispatcher *queue.Dispatcher,
	cfg SweepConfig,
	clock clockwork.Clock,
	log *slog.Logger) *SweepJob {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &SweepJob{
		posts:      posts,
		lifecycle:  lm,
		dispatcher: dispatcher,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		batchSize:  cfg.BatchSize,
		clock:      clock,
		log:        log.With("component", "sweep"),
	}
}

// WithEnqueuer makes the sweep hand claimed posts to asynq workers instead
// of dispatching them in process.
func (j *SweepJob) WithEnqueuer(e queue.Enqueuer) *SweepJob {
	j.enqueuer = e
	return j
}

// Run is the cron entry point.
func (j *SweepJob) Run() {
	if _, err := j.Sweep(context.Background()); err != nil {
		slog.Info(err.Error())
	}
}

// Sweep runs one discovery and dispatch cycle and waits for the dispatches it
// started. A store error stops claiming; posts not yet claimed are left for
// the next sweep.
func (j *SweepJob) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{ID: uuid.NewString()}
	log := j.log.With("sweep_id", report.ID)

	due, err := j.posts.ListDue(ctx, j.clock.Now(), j.batchSize)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		log.Error("list due posts", "error", err)
		return nil, err
	}
	report.Due = len(due)
	if len(due) == 0 {
		metrics.SweepsTotal.WithLabelValues("empty").Inc()
		return report, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		storeErr error
	)

	for _, post := range due {
		if err := j.sem.Acquire(ctx, 1); err != nil {
			storeErr = err
			break
		}

		claimed, err := j.lifecycle.Claim(ctx, post.ID)
		if err != nil {
			j.sem.Release(1)
			if errors.Is(err, lifecycle.ErrConcurrentUpdate) || errors.Is(err, repository.ErrNotFound) {
				metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
				report.Skipped++
				continue
			}
			metrics.ClaimsTotal.WithLabelValues("error").Inc()
			log.Error("claim post", "post_id", post.ID, "error", err)
			report.Errors++
			storeErr = err
			break
		}
		metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
		report.Claimed++

		if j.enqueuer != nil {
			err := queue.EnqueuePost(ctx, j.enqueuer, claimed)
			if err == nil {
				j.sem.Release(1)
				report.Enqueued++
				continue
			}
			log.Warn("enqueue failed, dispatching in process", "post_id", claimed.ID, "error", err)
		}

		wg.Add(1)
		go func(p *models.Post) {
			defer wg.Done()
			defer j.sem.Release(1)

			final, err := j.dispatcher.Dispatch(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors++
			case final.Status == models.PostStatusPosted:
				report.Posted++
			default:
				report.Failed++
			}
		}(claimed)
	}

	wg.Wait()

	if storeErr != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return report, storeErr
	}

	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	log.Info("sweep finished",
		"due", report.Due,
		"claimed", report.Claimed,
		"skipped", report.Skipped,
		"enqueued", report.Enqueued,
		"posted", report.Posted,
		"failed", report.Failed,
	)
	return report, nil
}
