package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/mock/gomock"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/database"
	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	mock_publisher "github.com/maheshrc27/autopost/internal/publisher/mocks"
	"github.com/maheshrc27/autopost/internal/queue"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/testutil"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/logger"
)

type fixture struct {
	clock    *clockwork.FakeClock
	posts    repository.PostRepository
	accounts AccountService
	xPub     *mock_publisher.MockPublisher
	igPub    *mock_publisher.MockPublisher
	svc      PostService
}

func testConfig() config.Config {
	return config.Config{SecretKey: testutil.SecretKey}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	clock := testutil.FakeClock()
	db := testutil.OpenSQLite(t)

	posts := repository.NewPostRepository(db, database.DriverSQLite, clock)
	accounts := NewAccountService(testConfig(), repository.NewAccountRepository(db, database.DriverSQLite, clock), clock)
	lm := lifecycle.NewManager(posts, clock, logger.Discard())

	xPub := mock_publisher.NewMockPublisher(ctrl)
	xPub.EXPECT().Provider().Return(models.ProviderX).AnyTimes()
	igPub := mock_publisher.NewMockPublisher(ctrl)
	igPub.EXPECT().Provider().Return(models.ProviderInstagram).AnyTimes()

	dispatcher := queue.NewDispatcher(lm, publisher.NewRegistry(xPub, igPub), accounts, queue.Config{
		MaxAttempts:    3,
		SubmitTimeout:  time.Second,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}, clock, logger.Discard())

	return &fixture{
		clock:    clock,
		posts:    posts,
		accounts: accounts,
		xPub:     xPub,
		igPub:    igPub,
		svc:      NewPostService(posts, lm, dispatcher, clock),
	}
}

func (f *fixture) addXAccount(t *testing.T, name string) *models.AccountSummary {
	t.Helper()
	acc, err := f.accounts.Add(context.Background(), &transfer.AccountCreation{
		Provider: "x",
		Name:     name,
		X:        &models.XCredentials{APIKey: "k", APISecret: "s", AccessToken: "t-" + name, AccessSecret: "ts"},
	})
	if err != nil {
		t.Fatalf("add x account: %v", err)
	}
	return acc
}

func (f *fixture) addInstagramAccount(t *testing.T, name string) *models.AccountSummary {
	t.Helper()
	acc, err := f.accounts.Add(context.Background(), &transfer.AccountCreation{
		Provider: "instagram",
		Name:     name,
		Instagram: &models.InstagramCredentials{
			BusinessAccountID: "1789",
			AppID:             "app",
			AppSecret:         "secret",
			AccessToken:       "ig-" + name,
			ExpiresAt:         testutil.FixedTime().Add(48 * time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("add instagram account: %v", err)
	}
	return acc
}

func (f *fixture) countPosts(t *testing.T) int {
	t.Helper()
	posts, err := f.posts.List(context.Background(), models.PostFilter{})
	if err != nil {
		t.Fatal(err)
	}
	return len(posts)
}

func ptr[T any](v T) *T {
	return &v
}

// pngBytes is enough of a PNG for type sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
