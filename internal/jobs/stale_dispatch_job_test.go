package job

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/pkg/logger"
)

func TestStaleDispatch_Reap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stuck := &models.Post{ID: "stuck", Content: "Hello", Provider: models.ProviderInstagram, Status: models.PostStatusQueued}
	if err := f.lifecycle.Create(ctx, stuck); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(20 * time.Minute)

	fresh := &models.Post{ID: "fresh", Content: "Hello", Provider: models.ProviderInstagram, Status: models.PostStatusQueued}
	if err := f.lifecycle.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	job := NewStaleDispatchJob(f.posts, f.lifecycle, 15*time.Minute, 50, f.clock, logger.Discard())
	n, err := job.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d posts, want 1", n)
	}

	post, _ := f.posts.GetByID(ctx, "stuck")
	if post.Status != models.PostStatusFailed || !strings.HasPrefix(post.FailureReason, "dispatch interrupted") {
		t.Errorf("stuck = %s/%q", post.Status, post.FailureReason)
	}
	if f.status(t, "fresh") != models.PostStatusQueued {
		t.Errorf("fresh post was reaped")
	}

	// a reaped post can be retried
	if _, err := f.lifecycle.Queue(ctx, post); err != nil {
		t.Errorf("retry after reap: %v", err)
	}
}
