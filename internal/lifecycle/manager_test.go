package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/database"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/testutil"
	"github.com/maheshrc27/autopost/pkg/apperror"
	"github.com/maheshrc27/autopost/pkg/logger"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]models.Status]bool{
		{"", models.PostStatusDraft}:                             true,
		{"", models.PostStatusQueued}:                            true,
		{"", models.PostStatusScheduled}:                         true,
		{models.PostStatusDraft, models.PostStatusQueued}:        true,
		{models.PostStatusDraft, models.PostStatusScheduled}:     true,
		{models.PostStatusScheduled, models.PostStatusQueued}:    true,
		{models.PostStatusQueued, models.PostStatusPosted}:       true,
		{models.PostStatusQueued, models.PostStatusFailed}:       true,
		{models.PostStatusFailed, models.PostStatusQueued}:       true,
		{models.PostStatusFailed, models.PostStatusScheduled}:    true,
	}

	from := append([]models.Status{""}, models.AllStatuses...)
	for _, f := range from {
		for _, to := range models.AllStatuses {
			want := allowed[[2]models.Status{f, to}]
			if got := CanTransition(f, to); got != want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", f, to, got, want)
			}
		}
	}
}

func TestTransitionError(t *testing.T) {
	err := checkTransition(models.PostStatusPosted, models.PostStatusDraft)

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransitionError", err)
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("TransitionError does not match ErrInvalidTransition")
	}
	if !apperror.IsConflict(err) {
		t.Error("TransitionError is not a conflict")
	}
	if apperror.GetCode(err) != "invalid_transition" {
		t.Errorf("code = %q", apperror.GetCode(err))
	}
}

func newManager(t *testing.T) (*Manager, repository.PostRepository, *clockwork.FakeClock) {
	t.Helper()
	clock := testutil.FakeClock()
	repo := repository.NewPostRepository(testutil.OpenSQLite(t), database.DriverSQLite, clock)
	return NewManager(repo, clock, logger.Discard()), repo, clock
}

func TestManager_CreateValidation(t *testing.T) {
	m, repo, clock := newManager(t)
	ctx := context.Background()
	past := clock.Now().Add(-time.Minute)
	future := clock.Now().Add(time.Hour)

	tests := []struct {
		name string
		post models.Post
		want error
	}{
		{"empty content", models.Post{Content: "  ", Provider: models.ProviderX, Status: models.PostStatusDraft}, ErrEmptyContent},
		{"unknown provider", models.Post{Content: "hi", Provider: "myspace", Status: models.PostStatusDraft}, ErrUnknownProvider},
		{"schedule in past", models.Post{Content: "hi", Provider: models.ProviderX, Status: models.PostStatusScheduled, ScheduledAt: &past}, ErrScheduleInPast},
		{"schedule missing", models.Post{Content: "hi", Provider: models.ProviderX, Status: models.PostStatusScheduled}, ErrMissingSchedule},
		{"created posted", models.Post{Content: "hi", Provider: models.ProviderX, Status: models.PostStatusPosted}, ErrInvalidTransition},
		{"created failed", models.Post{Content: "hi", Provider: models.ProviderX, Status: models.PostStatusFailed, ScheduledAt: &future}, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.post
			p.ID = "p-" + tt.name
			if err := m.Create(ctx, &p); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if _, err := repo.GetByID(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
				t.Errorf("rejected post was persisted (err = %v)", err)
			}
		})
	}
}

func TestManager_HappyPath(t *testing.T) {
	m, _, clock := newManager(t)
	ctx := context.Background()

	at := clock.Now().Add(time.Hour)
	post := &models.Post{ID: "p1", Content: "Hello", Provider: models.ProviderInstagram, Status: models.PostStatusScheduled, ScheduledAt: &at}
	if err := m.Create(ctx, post); err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(2 * time.Hour)
	claimed, err := m.Claim(ctx, "p1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != models.PostStatusQueued {
		t.Fatalf("status = %s, want queued", claimed.Status)
	}

	if _, err := m.Claim(ctx, "p1"); !errors.Is(err, ErrConcurrentUpdate) {
		t.Errorf("second Claim err = %v, want ErrConcurrentUpdate", err)
	}

	posted, err := m.Complete(ctx, "p1", "ig_42", 1)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if posted.Status != models.PostStatusPosted || posted.ProviderPostID != "ig_42" {
		t.Errorf("posted = %s/%q", posted.Status, posted.ProviderPostID)
	}
	if posted.FailureReason != "" {
		t.Errorf("failure reason = %q on posted post", posted.FailureReason)
	}
	if posted.PostedAt == nil || !posted.PostedAt.Equal(clock.Now()) {
		t.Errorf("posted_at = %v", posted.PostedAt)
	}

	if _, err := m.Fail(ctx, "p1", "late", 1); !errors.Is(err, ErrConcurrentUpdate) {
		t.Errorf("Fail after posted err = %v, want ErrConcurrentUpdate", err)
	}
}

func TestManager_FailRetryReschedule(t *testing.T) {
	m, _, clock := newManager(t)
	ctx := context.Background()

	post := &models.Post{ID: "p1", Content: "Hello", Provider: models.ProviderX, Status: models.PostStatusQueued}
	if err := m.Create(ctx, post); err != nil {
		t.Fatal(err)
	}

	failed, err := m.Fail(ctx, "p1", "", 3)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != models.PostStatusFailed || failed.FailureReason == "" {
		t.Errorf("failed = %s/%q", failed.Status, failed.FailureReason)
	}
	if failed.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", failed.Attempts)
	}

	at := clock.Now().Add(30 * time.Minute)
	rescheduled, err := m.Schedule(ctx, failed, at)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if rescheduled.Status != models.PostStatusScheduled || rescheduled.FailureReason != "" {
		t.Errorf("rescheduled = %s/%q", rescheduled.Status, rescheduled.FailureReason)
	}

	if _, err := m.Queue(ctx, rescheduled); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Queue scheduled err = %v, want ErrInvalidTransition", err)
	}

	if _, err := m.Schedule(ctx, rescheduled, at); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Schedule scheduled err = %v, want ErrInvalidTransition", err)
	}
}

func TestManager_QueueDraft(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	draft := &models.Post{ID: "d1", Content: "Hello", Provider: models.ProviderX, Status: models.PostStatusDraft}
	if err := m.Create(ctx, draft); err != nil {
		t.Fatal(err)
	}

	queued, err := m.Queue(ctx, draft)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if queued.Status != models.PostStatusQueued {
		t.Errorf("status = %s, want queued", queued.Status)
	}

	// the in-memory draft is stale now; the conditional write must notice
	if _, err := m.Queue(ctx, draft); !errors.Is(err, ErrConcurrentUpdate) {
		t.Errorf("stale Queue err = %v, want ErrConcurrentUpdate", err)
	}
}

func TestManager_CompleteNeedsProviderID(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, &models.Post{ID: "p1", Content: "x", Provider: models.ProviderX, Status: models.PostStatusQueued}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Complete(ctx, "p1", "", 1); err == nil {
		t.Error("Complete without provider id succeeded")
	}
}
