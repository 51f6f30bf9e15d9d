package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/metrics"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
)

// StaleDispatchJob fails posts that have sat in queued longer than a
// dispatch can take, which only happens when a process died mid-dispatch.
// The operator can then retry them.
type StaleDispatchJob struct {
	posts     repository.PostRepository
	lifecycle *lifecycle.Manager
	after     time.Duration
	batchSize uint64
	clock     clockwork.Clock
	log       *slog.Logger
}

func NewStaleDispatchJob(
	posts repository.PostRepository,
	lm *lifecycle.Manager,
	after time.Duration,
	batchSize uint64,
	clock clockwork.Clock,
	log *slog.Logger) *StaleDispatchJob {
	return &StaleDispatchJob{
		posts:     posts,
		lifecycle: lm,
		after:     after,
		batchSize: batchSize,
		clock:     clock,
		log:       log.With("component", "stale_dispatch"),
	}
}

func (j *StaleDispatchJob) Run() {
	if _, err := j.Reap(context.Background()); err != nil {
		slog.Info(err.Error())
	}
}

// Reap returns the number of posts moved to failed.
func (j *StaleDispatchJob) Reap(ctx context.Context) (int, error) {
	cutoff := j.clock.Now().Add(-j.after)
	stale, err := j.posts.ListStale(ctx, models.PostStatusQueued, cutoff, j.batchSize)
	if err != nil {
		j.log.Error("list stale posts", "error", err)
		return 0, err
	}

	reaped := 0
	for _, post := range stale {
		reason := fmt.Sprintf("dispatch interrupted: post was queued since %s with no result", post.UpdatedAt.Format(time.RFC3339))
		_, err := j.lifecycle.Fail(ctx, post.ID, reason, post.Attempts)
		if err != nil {
			if errors.Is(err, lifecycle.ErrConcurrentUpdate) {
				// the dispatch finished after all
				continue
			}
			j.log.Error("fail stale post", "post_id", post.ID, "error", err)
			return reaped, err
		}
		reaped++
		metrics.StaleReapedTotal.Inc()
		j.log.Warn("stale dispatch failed", "post_id", post.ID, "queued_since", post.UpdatedAt)
	}
	return reaped, nil
}
