package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/apperror"
	"github.com/maheshrc27/autopost/pkg/utils"
)

var (
	ErrAccountNotFound    = apperror.New(apperror.ErrNotFound, "account_not_found", "account not found")
	ErrNoDefaultAccount   = apperror.New(apperror.ErrNotFound, "no_default_account", "no default account for provider")
	ErrInvalidCredentials = apperror.New(apperror.ErrValidation, "invalid_credentials", "credential bundle is incomplete")
	ErrInvalidAccountName = apperror.New(apperror.ErrValidation, "invalid_account_name", "account name must not be empty")
	ErrDuplicateAccount   = apperror.New(apperror.ErrConflict, "duplicate_account", "an account with this name already exists for the provider")
)

type AccountService interface {
	Resolve(ctx context.Context, provider models.Provider, accountID string) (*models.Credentials, error)
	List(ctx context.Context, provider models.Provider) ([]models.AccountSummary, error)
	Add(ctx context.Context, req *transfer.AccountCreation) (*models.AccountSummary, error)
	Remove(ctx context.Context, id string) error
	SetDefault(ctx context.Context, id string) error
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error)
	RefreshAccount(ctx context.Context, acc *models.Account, refresher publisher.TokenRefresher) error
}

type accountService struct {
	cfg      config.Config
	accounts repository.AccountRepository
	clock    clockwork.Clock
}

func NewAccountService(cfg config.Config, accounts repository.AccountRepository, clock clockwork.Clock) AccountService {
	return &accountService{
		cfg:      cfg,
		accounts: accounts,
		clock:    clock,
	}
}

// Resolve returns the decrypted credentials of accountID, or of the provider
// default when accountID is empty. An account of another provider is
// reported as not found.
func (s *accountService) Resolve(ctx context.Context, provider models.Provider, accountID string) (*models.Credentials, error) {
	var (
		acc *models.Account
		err error
	)
	if accountID == "" {
		acc, err = s.accounts.GetDefault(ctx, provider)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoDefaultAccount
		}
	} else {
		acc, err = s.accounts.GetByID(ctx, accountID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	if acc.Provider != provider {
		return nil, ErrAccountNotFound
	}

	return s.open(acc)
}

func (s *accountService) open(acc *models.Account) (*models.Credentials, error) {
	creds := &models.Credentials{AccountID: acc.ID, Provider: acc.Provider}

	var section any
	switch acc.Provider {
	case models.ProviderX:
		creds.X = &models.XCredentials{}
		section = creds.X
	case models.ProviderInstagram:
		creds.Instagram = &models.InstagramCredentials{}
		section = creds.Instagram
	default:
		return nil, ErrInvalidCredentials
	}

	if err := utils.OpenJSON(acc.EncryptedCredentials, []byte(s.cfg.SecretKey), section); err != nil {
		slog.Info("unable to open credentials", "account_id", acc.ID, "error", err)
		return nil, apperror.Wrap(ErrInvalidCredentials, err.Error())
	}
	return creds, nil
}

func (s *accountService) seal(creds *models.Credentials) (string, error) {
	switch creds.Provider {
	case models.ProviderX:
		return utils.SealJSON(creds.X, []byte(s.cfg.SecretKey))
	case models.ProviderInstagram:
		return utils.SealJSON(creds.Instagram, []byte(s.cfg.SecretKey))
	}
	return "", ErrInvalidCredentials
}

func (s *accountService) List(ctx context.Context, provider models.Provider) ([]models.AccountSummary, error) {
	if provider != "" && !provider.Valid() {
		return nil, lifecycle.ErrUnknownProvider
	}

	accounts, err := s.accounts.ListByProvider(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	summaries := make([]models.AccountSummary, 0, len(accounts))
	for _, acc := range accounts {
		summaries = append(summaries, acc.Summary())
	}
	return summaries, nil
}

// Add stores a new account. The first account of a provider becomes its
// default, as does any account added with Default set.
func (s *accountService) Add(ctx context.Context, req *transfer.AccountCreation) (*models.AccountSummary, error) {
	provider := models.Provider(req.Provider)
	if !provider.Valid() {
		return nil, lifecycle.ErrUnknownProvider
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidAccountName
	}

	creds := &models.Credentials{Provider: provider}
	switch provider {
	case models.ProviderX:
		if !req.X.Complete() {
			return nil, ErrInvalidCredentials
		}
		creds.X = req.X
	case models.ProviderInstagram:
		if !req.Instagram.Complete() {
			return nil, ErrInvalidCredentials
		}
		creds.Instagram = req.Instagram
	}

	sealed, err := s.seal(creds)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	acc := &models.Account{
		ID:                   id,
		Provider:             provider,
		Name:                 name,
		EncryptedCredentials: sealed,
		TokenExpiresAt:       creds.ExpiresAt(),
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	makeDefault := req.Default
	if !makeDefault {
		if _, err := s.accounts.GetDefault(ctx, provider); errors.Is(err, repository.ErrNotFound) {
			makeDefault = true
		} else if err != nil {
			return nil, err
		}
	}
	if makeDefault {
		if err := s.accounts.SetDefault(ctx, acc.ID); err != nil {
			return nil, fmt.Errorf("set default account: %w", err)
		}
		acc.IsDefault = true
	}

	slog.Info("account added", "account_id", acc.ID, "provider", provider, "default", acc.IsDefault)
	summary := acc.Summary()
	return &summary, nil
}

// Remove deletes an account. When it was the default, the oldest remaining
// account of the provider takes over.
func (s *accountService) Remove(ctx context.Context, id string) error {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if err := s.accounts.Remove(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if !acc.IsDefault {
		return nil
	}

	remaining, err := s.accounts.ListByProvider(ctx, acc.Provider)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return s.accounts.SetDefault(ctx, remaining[0].ID)
	}
	return nil
}

func (s *accountService) SetDefault(ctx context.Context, id string) error {
	err := s.accounts.SetDefault(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func (s *accountService) ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error) {
	return s.accounts.ListExpiring(ctx, before)
}

// RefreshAccount renews the account token through refresher and stores the
// re-encrypted bundle. The write only applies if nobody replaced the bundle
// in the meantime.
func (s *accountService) RefreshAccount(ctx context.Context, acc *models.Account, refresher publisher.TokenRefresher) error {
	creds, err := s.open(acc)
	if err != nil {
		return err
	}

	fresh, err := refresher.RefreshToken(ctx, creds)
	if err != nil {
		return fmt.Errorf("refresh %s token: %w", acc.Provider, err)
	}

	sealed, err := s.seal(fresh)
	if err != nil {
		return err
	}

	if err := s.accounts.SetCredentials(ctx, acc.ID, acc.EncryptedCredentials, sealed, fresh.ExpiresAt()); err != nil {
		return fmt.Errorf("store refreshed credentials: %w", err)
	}
	return nil
}
