package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/metrics"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/pkg/apperror"
)

type Config struct {
	MaxAttempts    int
	SubmitTimeout  time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		SubmitTimeout:  30 * time.Second,
		BackoffInitial: 2 * time.Second,
		BackoffMax:     15 * time.Second,
	}
}

// Dispatcher publishes queued posts and records the outcome. The sweep and
// the post-now path share it, so both see the same retry policy and errors.
type Dispatcher struct {
	lifecycle  *lifecycle.Manager
	publishers *publisher.Registry
	resolver   publisher.CredentialResolver
	cfg        Config
	clock      clockwork.Clock
	log        *slog.Logger
}

func NewDispatcher(
	lm *lifecycle.Manager,
	publishers *publisher.Registry,
	resolver publisher.CredentialResolver,
	cfg Config,
	clock clockwork.Clock,
	log *slog.Logger) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{
		lifecycle:  lm,
		publishers: publishers,
		resolver:   resolver,
		cfg:        cfg,
		clock:      clock,
		log:        log.With("component", "dispatcher"),
	}
}

// Dispatch submits a queued post and moves it to posted or failed. Publish
// failures end up on the post; the returned error is only ever a store error.
func (d *Dispatcher) Dispatch(ctx context.Context, post *models.Post) (*models.Post, error) {
	if post.Status != models.PostStatusQueued {
		return nil, &lifecycle.TransitionError{From: post.Status, To: models.PostStatusPosted}
	}

	metrics.DispatchInFlight.Inc()
	defer metrics.DispatchInFlight.Dec()

	start := d.clock.Now()
	log := d.log.With("post_id", post.ID, "provider", post.Provider)

	result, attempts, submitErr := d.submit(ctx, post, log)

	// the outcome must be recorded even if the caller gave up meanwhile
	writeCtx := context.WithoutCancel(ctx)

	var (
		final *models.Post
		err   error
	)
	if submitErr == nil {
		final, err = d.lifecycle.Complete(writeCtx, post.ID, result.ProviderPostID, attempts)
	} else {
		final, err = d.lifecycle.Fail(writeCtx, post.ID, FailureReason(submitErr, attempts), attempts)
	}
	if err != nil {
		log.Error("record dispatch outcome", "error", err)
		return nil, err
	}

	metrics.DispatchOutcomesTotal.WithLabelValues(string(post.Provider), string(final.Status)).Inc()
	metrics.DispatchDuration.WithLabelValues(string(post.Provider)).Observe(d.clock.Since(start).Seconds())

	if final.Status == models.PostStatusPosted {
		log.Info("post published", "provider_post_id", final.ProviderPostID, "attempts", attempts)
	} else {
		log.Warn("post failed", "reason", final.FailureReason, "attempts", attempts)
	}
	return final, nil
}

func (d *Dispatcher) submit(ctx context.Context, post *models.Post, log *slog.Logger) (*publisher.Result, int, error) {
	pub, err := d.publishers.Get(post.Provider)
	if err != nil {
		return nil, 0, err
	}

	var (
		attempts int
		result   *publisher.Result
		lastErr  error
	)
	operation := func() error {
		attempts++
		res, err := d.attempt(ctx, pub, post)
		kind := publisher.Classify(err)
		metrics.DispatchAttemptsTotal.WithLabelValues(string(post.Provider), kindLabel(kind)).Inc()
		if err == nil {
			result = res
			return nil
		}

		lastErr = err
		if kind != publisher.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		log.Warn("submit failed, retrying",
			"attempt", attempts,
			"error", err,
			"next_attempt_in", next.Round(time.Millisecond).String(),
		)
	}

	if err := backoff.RetryNotify(operation, d.backoff(ctx), notify); err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			// the context ended while waiting to retry
			err = fmt.Errorf("%w (dispatch interrupted: %v)", lastErr, err)
		}
		return nil, attempts, err
	}
	return result, attempts, nil
}

func (d *Dispatcher) attempt(ctx context.Context, pub publisher.Publisher, post *models.Post) (*publisher.Result, error) {
	creds, err := d.resolver.Resolve(ctx, post.Provider, post.AccountID)
	if err != nil {
		return nil, classifyResolveError(post.Provider, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	res, err := pub.Submit(attemptCtx, publisher.Submission{
		PostID:      post.ID,
		Content:     post.Content,
		Hashtags:    post.Hashtags,
		Image:       post.Image,
		Credentials: creds,
	})
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !publisher.IsTimeout(err) {
			return nil, publisher.Transient(post.Provider, "submit timed out", publisher.ErrTimeout)
		}
		return nil, err
	}
	if res == nil || res.ProviderPostID == "" {
		return nil, publisher.Permanent(post.Provider, "publisher returned no post id", nil)
	}
	return res, nil
}

func (d *Dispatcher) backoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BackoffInitial
	bo.MaxInterval = d.cfg.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.cfg.MaxAttempts-1)), ctx)
}

// classifyResolveError maps account registry failures: a missing or broken
// account is a credential error, anything else (store down) is transient.
func classifyResolveError(provider models.Provider, err error) error {
	var pe *publisher.Error
	if errors.As(err, &pe) {
		return err
	}
	if apperror.IsNotFound(err) || apperror.IsValidation(err) {
		return publisher.CredentialError(provider, "resolve account", err)
	}
	return publisher.Transient(provider, "resolve account", err)
}

// FailureReason renders the human-readable cause stored on a failed post.
func FailureReason(err error, attempts int) string {
	switch kind := publisher.Classify(err); {
	case publisher.IsTimeout(err):
		return fmt.Sprintf("timeout after %d attempt(s): %v", attempts, err)
	case kind == publisher.KindTransient:
		return fmt.Sprintf("transient error after %d attempt(s): %v", attempts, err)
	case kind == publisher.KindCredential:
		return fmt.Sprintf("credential error: %v", err)
	default:
		return fmt.Sprintf("permanent error: %v", err)
	}
}

func kindLabel(k publisher.Kind) string {
	if k == "" {
		return "success"
	}
	return string(k)
}
