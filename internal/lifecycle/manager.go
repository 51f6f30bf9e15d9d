package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
)

type Manager struct {
	posts repository.PostRepository
	clock clockwork.Clock
	log   *slog.Logger
}

func NewManager(posts repository.PostRepository, clock clockwork.Clock, log *slog.Logger) *Manager {
	return &Manager{
		posts: posts,
		clock: clock,
		log:   log.With("component", "lifecycle"),
	}
}

// ValidateContent checks the fields every post needs regardless of status.
func ValidateContent(content string, provider models.Provider) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if !provider.Valid() {
		return ErrUnknownProvider
	}
	return nil
}

func (m *Manager) validateSchedule(at *time.Time) error {
	if at == nil {
		return ErrMissingSchedule
	}
	if !at.After(m.clock.Now()) {
		return ErrScheduleInPast
	}
	return nil
}

// Create stores a new post in post.Status, which must be one of the creation
// targets. Validation happens before the store is touched.
func (m *Manager) Create(ctx context.Context, post *models.Post) error {
	if err := checkTransition(statusNew, post.Status); err != nil {
		return err
	}
	if err := ValidateContent(post.Content, post.Provider); err != nil {
		return err
	}
	if post.Status == models.PostStatusScheduled {
		if err := m.validateSchedule(post.ScheduledAt); err != nil {
			return err
		}
	}

	post.ProviderPostID = ""
	post.FailureReason = ""
	post.CreatedAt = m.clock.Now()

	if err := m.posts.Create(ctx, post); err != nil {
		return err
	}
	m.log.Info("post created", "post_id", post.ID, "status", post.Status, "provider", post.Provider)
	return nil
}

// Transition moves a post from → to. extra carries the fields that change
// together with the status; its Status and IfStatus are overwritten.
func (m *Manager) Transition(ctx context.Context, id string, from, to models.Status, extra models.PostUpdate) (*models.Post, error) {
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}

	u := extra
	u.IfStatus = from
	u.Status = &to

	// providerPostId is only meaningful on posted, failureReason only on failed
	if to != models.PostStatusPosted {
		empty := ""
		u.ProviderPostID = &empty
	}
	if to != models.PostStatusFailed {
		empty := ""
		u.FailureReason = &empty
	}

	post, err := m.posts.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	m.log.Debug("post transitioned", "post_id", id, "from", from, "to", to)
	return post, nil
}

// Queue moves a draft or failed post to queued for immediate dispatch.
func (m *Manager) Queue(ctx context.Context, post *models.Post) (*models.Post, error) {
	if err := ValidateContent(post.Content, post.Provider); err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusScheduled {
		// only the scheduler takes scheduled posts to queued
		return nil, &TransitionError{From: post.Status, To: models.PostStatusQueued}
	}
	return m.Transition(ctx, post.ID, post.Status, models.PostStatusQueued, models.PostUpdate{ClearSchedule: true})
}

// Schedule moves a draft or failed post to scheduled at the given time.
func (m *Manager) Schedule(ctx context.Context, post *models.Post, at time.Time) (*models.Post, error) {
	if err := checkTransition(post.Status, models.PostStatusScheduled); err != nil {
		return nil, err
	}
	if err := m.validateSchedule(&at); err != nil {
		return nil, err
	}
	return m.Transition(ctx, post.ID, post.Status, models.PostStatusScheduled, models.PostUpdate{ScheduledAt: &at})
}

// Claim takes a due scheduled post to queued. ErrConcurrentUpdate means
// another sweep claimed it first.
func (m *Manager) Claim(ctx context.Context, id string) (*models.Post, error) {
	zero := 0
	return m.Transition(ctx, id, models.PostStatusScheduled, models.PostStatusQueued, models.PostUpdate{Attempts: &zero})
}

// Complete records a successful publish.
func (m *Manager) Complete(ctx context.Context, id, providerPostID string, attempts int) (*models.Post, error) {
	if providerPostID == "" {
		return nil, errors.New("provider post id is required to mark a post as posted")
	}

	now := m.clock.Now()
	return m.Transition(ctx, id, models.PostStatusQueued, models.PostStatusPosted, models.PostUpdate{
		ProviderPostID: &providerPostID,
		PostedAt:       &now,
		Attempts:       &attempts,
	})
}

// Fail records a failed publish. An empty reason is replaced so that a
// failed post always says why.
func (m *Manager) Fail(ctx context.Context, id, reason string, attempts int) (*models.Post, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown error"
	}
	return m.Transition(ctx, id, models.PostStatusQueued, models.PostStatusFailed, models.PostUpdate{
		FailureReason: &reason,
		Attempts:      &attempts,
	})
}

// Edit applies a content update to a post still in status from. Status is
// not touched.
func (m *Manager) Edit(ctx context.Context, id string, from models.Status, u models.PostUpdate) (*models.Post, error) {
	u.IfStatus = from
	u.Status = nil

	post, err := m.posts.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}
	return post, nil
}
