package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/metrics"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
)

// AccountRefresher is the part of the account registry the refresh job needs.
type AccountRefresher interface {
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error)
	RefreshAccount(ctx context.Context, acc *models.Account, refresher publisher.TokenRefresher) error
}

type TokenRefreshJob struct {
	accounts   AccountRefresher
	refreshers map[models.Provider]publisher.TokenRefresher
	window     time.Duration
	clock      clockwork.Clock
}

func NewTokenRefreshJob(
	accounts AccountRefresher,
	window time.Duration,
	clock clockwork.Clock,
	refreshers ...publisher.TokenRefresher) *TokenRefreshJob {
	byProvider := make(map[models.Provider]publisher.TokenRefresher, len(refreshers))
	for _, r := range refreshers {
		byProvider[r.Provider()] = r
	}
	return &TokenRefreshJob{
		accounts:   accounts,
		refreshers: byProvider,
		window:     window,
		clock:      clock,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	c.Refresh(context.Background())
}

// Refresh renews every token expiring within the window and returns how many
// accounts were refreshed.
func (c *TokenRefreshJob) Refresh(ctx context.Context) int {
	accounts, err := c.accounts.ListExpiring(ctx, c.clock.Now().Add(c.window))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
	)

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		refresher, ok := c.refreshers[acc.Provider]
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.Account) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.accounts.RefreshAccount(ctx, acc, refresher); err != nil {
				metrics.TokenRefreshesTotal.WithLabelValues(string(acc.Provider), "error").Inc()
				slog.Info("unable to refresh token", "account_id", acc.ID, "provider", acc.Provider, "error", err)
				return
			}

			metrics.TokenRefreshesTotal.WithLabelValues(string(acc.Provider), "ok").Inc()
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(acc)
	}

	wg.Wait()
	return refreshed
}
