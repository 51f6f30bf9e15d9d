package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/database"
	"github.com/maheshrc27/autopost/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, acc *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetDefault(ctx context.Context, provider models.Provider) (*models.Account, error)
	ListByProvider(ctx context.Context, provider models.Provider) ([]*models.Account, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error)
	SetDefault(ctx context.Context, id string) error
	SetCredentials(ctx context.Context, id, oldCredentials, newCredentials string, expiresAt *time.Time) error
	Remove(ctx context.Context, id string) error
}

var accountColumns = []string{
	"id", "provider", "name", "credentials", "is_default", "token_expires_at", "created_at", "updated_at",
}

type accountRepository struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	clock clockwork.Clock
}

func NewAccountRepository(db *sql.DB, driver string, clock clockwork.Clock) AccountRepository {
	return &accountRepository{db: db, sb: database.Builder(driver), clock: clock}
}

func (r *accountRepository) Create(ctx context.Context, acc *models.Account) error {
	now := dbTime(r.clock.Now())
	acc.CreatedAt, acc.UpdatedAt = now, now

	query, args, err := r.sb.Insert("accounts").
		Columns(accountColumns...).
		Values(acc.ID, string(acc.Provider), acc.Name, acc.EncryptedCredentials, acc.IsDefault,
			nullableTime(acc.TokenExpiresAt), acc.CreatedAt, acc.UpdatedAt).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *accountRepository) GetDefault(ctx context.Context, provider models.Provider) (*models.Account, error) {
	return r.getOne(ctx, sq.Eq{"provider": string(provider), "is_default": true})
}

func (r *accountRepository) getOne(ctx context.Context, where sq.Eq) (*models.Account, error) {
	query, args, err := r.sb.Select(accountColumns...).From("accounts").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return acc, nil
}

// ListByProvider lists accounts of one provider, or of all providers when
// provider is empty.
func (r *accountRepository) ListByProvider(ctx context.Context, provider models.Provider) ([]*models.Account, error) {
	b := r.sb.Select(accountColumns...).From("accounts").OrderBy("provider ASC", "created_at ASC")
	if provider != "" {
		b = b.Where(sq.Eq{"provider": string(provider)})
	}
	return r.query(ctx, b)
}

func (r *accountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error) {
	b := r.sb.Select(accountColumns...).
		From("accounts").
		Where(sq.NotEq{"token_expires_at": nil}).
		Where(sq.Lt{"token_expires_at": dbTime(before)}).
		OrderBy("token_expires_at ASC")
	return r.query(ctx, b)
}

// SetDefault makes id the default account of its provider, clearing the
// previous default in the same transaction.
func (r *accountRepository) SetDefault(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query, args, err := r.sb.Select("provider").From("accounts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return ErrBadQuery
	}
	var provider string
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	now := dbTime(r.clock.Now())
	clearQuery, clearArgs, err := r.sb.Update("accounts").
		Set("is_default", false).
		Set("updated_at", now).
		Where(sq.Eq{"provider": provider, "is_default": true}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}
	if _, err := tx.ExecContext(ctx, clearQuery, clearArgs...); err != nil {
		slog.Info(err.Error())
		return err
	}

	setQuery, setArgs, err := r.sb.Update("accounts").
		Set("is_default", true).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}
	if _, err := tx.ExecContext(ctx, setQuery, setArgs...); err != nil {
		slog.Info(err.Error())
		return err
	}

	return tx.Commit()
}

// SetCredentials replaces the encrypted bundle only if it still equals
// oldCredentials, so two concurrent token refreshes cannot overwrite each other.
func (r *accountRepository) SetCredentials(ctx context.Context, id, oldCredentials, newCredentials string, expiresAt *time.Time) error {
	query, args, err := r.sb.Update("accounts").
		Set("credentials", newCredentials).
		Set("token_expires_at", nullableTime(expiresAt)).
		Set("updated_at", dbTime(r.clock.Now())).
		Where(sq.Eq{"id": id, "credentials": oldCredentials}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *accountRepository) Remove(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete("accounts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return ErrBadQuery
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepository) query(ctx context.Context, b sq.SelectBuilder) ([]*models.Account, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func scanAccount(s rowScanner) (*models.Account, error) {
	var (
		acc       models.Account
		provider  string
		expiresAt sql.NullTime
	)
	err := s.Scan(&acc.ID, &provider, &acc.Name, &acc.EncryptedCredentials, &acc.IsDefault,
		&expiresAt, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	acc.Provider = models.Provider(provider)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	if expiresAt.Valid {
		acc.TokenExpiresAt = timePtr(expiresAt.Time)
	}
	return &acc, nil
}
