package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/autopost/internal/database"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/testutil"
)

func TestAccountRepository_DefaultPerProvider(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(testutil.OpenSQLite(t), database.DriverSQLite, testutil.FakeClock())

	accounts := []*models.Account{
		{ID: "x1", Provider: models.ProviderX, Name: "brand", EncryptedCredentials: "c1", IsDefault: true},
		{ID: "x2", Provider: models.ProviderX, Name: "personal", EncryptedCredentials: "c2"},
		{ID: "ig1", Provider: models.ProviderInstagram, Name: "brand", EncryptedCredentials: "c3", IsDefault: true},
	}
	for _, acc := range accounts {
		if err := repo.Create(ctx, acc); err != nil {
			t.Fatalf("Create %s: %v", acc.ID, err)
		}
	}

	def, err := repo.GetDefault(ctx, models.ProviderX)
	if err != nil {
		t.Fatalf("GetDefault: %v", err)
	}
	if def.ID != "x1" {
		t.Errorf("default = %s, want x1", def.ID)
	}

	if err := repo.SetDefault(ctx, "x2"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	def, err = repo.GetDefault(ctx, models.ProviderX)
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != "x2" {
		t.Errorf("default = %s, want x2", def.ID)
	}

	ig, err := repo.GetDefault(ctx, models.ProviderInstagram)
	if err != nil || ig.ID != "ig1" {
		t.Errorf("instagram default = %v, %v; want ig1", ig, err)
	}

	if err := repo.SetDefault(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDefault missing err = %v, want ErrNotFound", err)
	}
}

func TestAccountRepository_SecondDefaultRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(testutil.OpenSQLite(t), database.DriverSQLite, testutil.FakeClock())

	if err := repo.Create(ctx, &models.Account{ID: "x1", Provider: models.ProviderX, Name: "a", EncryptedCredentials: "c", IsDefault: true}); err != nil {
		t.Fatal(err)
	}
	err := repo.Create(ctx, &models.Account{ID: "x2", Provider: models.ProviderX, Name: "b", EncryptedCredentials: "c", IsDefault: true})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestAccountRepository_ListAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(testutil.OpenSQLite(t), database.DriverSQLite, testutil.FakeClock())

	for _, acc := range []*models.Account{
		{ID: "x1", Provider: models.ProviderX, Name: "a", EncryptedCredentials: "c"},
		{ID: "ig1", Provider: models.ProviderInstagram, Name: "b", EncryptedCredentials: "c"},
	} {
		if err := repo.Create(ctx, acc); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.ListByProvider(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d accounts, want 2", len(all))
	}

	xs, err := repo.ListByProvider(ctx, models.ProviderX)
	if err != nil {
		t.Fatal(err)
	}
	if len(xs) != 1 || xs[0].ID != "x1" {
		t.Errorf("x accounts = %v", xs)
	}

	if err := repo.Remove(ctx, "x1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := repo.GetByID(ctx, "x1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after remove err = %v", err)
	}
}

func TestAccountRepository_SetCredentialsIsConditional(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FakeClock()
	repo := NewAccountRepository(testutil.OpenSQLite(t), database.DriverSQLite, clock)

	soon := clock.Now().Add(24 * time.Hour)
	later := clock.Now().Add(60 * 24 * time.Hour)
	acc := &models.Account{ID: "ig1", Provider: models.ProviderInstagram, Name: "a", EncryptedCredentials: "v1", TokenExpiresAt: &soon}
	if err := repo.Create(ctx, acc); err != nil {
		t.Fatal(err)
	}

	expiring, err := repo.ListExpiring(ctx, clock.Now().Add(7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(expiring) != 1 {
		t.Fatalf("expiring = %d, want 1", len(expiring))
	}

	if err := repo.SetCredentials(ctx, "ig1", "v1", "v2", &later); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if err := repo.SetCredentials(ctx, "ig1", "v1", "v3", &later); !errors.Is(err, ErrStatusConflict) {
		t.Errorf("stale SetCredentials err = %v, want ErrStatusConflict", err)
	}

	got, err := repo.GetByID(ctx, "ig1")
	if err != nil {
		t.Fatal(err)
	}
	if got.EncryptedCredentials != "v2" {
		t.Errorf("credentials = %s, want v2", got.EncryptedCredentials)
	}
	if got.TokenExpiresAt == nil || !got.TokenExpiresAt.Equal(later) {
		t.Errorf("token_expires_at = %v, want %v", got.TokenExpiresAt, later)
	}

	expiring, err = repo.ListExpiring(ctx, clock.Now().Add(7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(expiring) != 0 {
		t.Errorf("expiring after refresh = %d, want 0", len(expiring))
	}
}
