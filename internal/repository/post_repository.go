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

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Update(ctx context.Context, id string, u models.PostUpdate) (*models.Post, error)
	Remove(ctx context.Context, id string) error
	ListDue(ctx context.Context, before time.Time, limit uint64) ([]*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	ListStale(ctx context.Context, status models.Status, updatedBefore time.Time, limit uint64) ([]*models.Post, error)
}

var postColumns = []string{
	"id", "content", "hashtags", "image_url", "image_data", "image_mime",
	"provider", "account_id", "scheduled_at", "status", "provider_post_id",
	"failure_reason", "attempts", "posted_at", "created_at", "updated_at",
}

type postRepository struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	clock clockwork.Clock
}

func NewPostRepository(db *sql.DB, driver string, clock clockwork.Clock) PostRepository {
	return &postRepository{db: db, sb: database.Builder(driver), clock: clock}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	now := dbTime(r.clock.Now())
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.CreatedAt = dbTime(post.CreatedAt)
	post.UpdatedAt = now

	var imageURL, imageMime string
	var imageData []byte
	if post.Image != nil {
		imageURL, imageData, imageMime = post.Image.URL, post.Image.Data, post.Image.MimeType
	}

	query, args, err := r.sb.Insert("posts").
		Columns(postColumns...).
		Values(
			post.ID, post.Content, post.Hashtags, imageURL, imageData, imageMime,
			string(post.Provider), post.AccountID, nullableTime(post.ScheduledAt), string(post.Status), post.ProviderPostID,
			post.FailureReason, post.Attempts, nullableTime(post.PostedAt), post.CreatedAt, post.UpdatedAt,
		).
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

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query, args, err := r.sb.Select(postColumns...).From("posts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	post, err := scanPost(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// Update applies u in a single statement. With u.IfStatus set it is a
// compare-and-swap on status: ErrStatusConflict means another writer moved
// the post first.
func (r *postRepository) Update(ctx context.Context, id string, u models.PostUpdate) (*models.Post, error) {
	set := map[string]any{"updated_at": dbTime(r.clock.Now())}
	if u.Status != nil {
		set["status"] = string(*u.Status)
	}
	if u.Content != nil {
		set["content"] = *u.Content
	}
	if u.Hashtags != nil {
		set["hashtags"] = *u.Hashtags
	}
	if u.ClearImage {
		set["image_url"], set["image_data"], set["image_mime"] = "", nil, ""
	} else if u.Image != nil {
		set["image_url"], set["image_data"], set["image_mime"] = u.Image.URL, u.Image.Data, u.Image.MimeType
	}
	if u.ClearSchedule {
		set["scheduled_at"] = nil
	} else if u.ScheduledAt != nil {
		set["scheduled_at"] = dbTime(*u.ScheduledAt)
	}
	if u.ProviderPostID != nil {
		set["provider_post_id"] = *u.ProviderPostID
	}
	if u.FailureReason != nil {
		set["failure_reason"] = *u.FailureReason
	}
	if u.Attempts != nil {
		set["attempts"] = *u.Attempts
	}
	if u.PostedAt != nil {
		set["posted_at"] = dbTime(*u.PostedAt)
	}

	b := r.sb.Update("posts").SetMap(set).Where(sq.Eq{"id": id})
	if u.IfStatus != "" {
		b = b.Where(sq.Eq{"status": string(u.IfStatus)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// nothing matched: either the post is gone or its status moved on
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	return r.GetByID(ctx, id)
}

func (r *postRepository) Remove(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete("posts").Where(sq.Eq{"id": id}).ToSql()
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

func (r *postRepository) ListDue(ctx context.Context, before time.Time, limit uint64) ([]*models.Post, error) {
	b := r.sb.Select(postColumns...).
		From("posts").
		Where(sq.Eq{"status": string(models.PostStatusScheduled)}).
		Where(sq.LtOrEq{"scheduled_at": dbTime(before)}).
		OrderBy("scheduled_at ASC", "id ASC")
	if limit > 0 {
		b = b.Limit(limit)
	}
	return r.query(ctx, b)
}

func (r *postRepository) List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	cond := sq.Eq{}
	if filter.Status != "" {
		cond["status"] = string(filter.Status)
	}
	if filter.Provider != "" {
		cond["provider"] = string(filter.Provider)
	}
	if filter.AccountID != "" {
		cond["account_id"] = filter.AccountID
	}

	b := r.sb.Select(postColumns...).From("posts").OrderBy("created_at DESC", "id DESC")
	if len(cond) > 0 {
		b = b.Where(cond)
	}
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		b = b.Offset(filter.Offset)
	}
	return r.query(ctx, b)
}

func (r *postRepository) ListStale(ctx context.Context, status models.Status, updatedBefore time.Time, limit uint64) ([]*models.Post, error) {
	b := r.sb.Select(postColumns...).
		From("posts").
		Where(sq.Eq{"status": string(status)}).
		Where(sq.Lt{"updated_at": dbTime(updatedBefore)}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		b = b.Limit(limit)
	}
	return r.query(ctx, b)
}

func (r *postRepository) query(ctx context.Context, b sq.SelectBuilder) ([]*models.Post, error) {
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

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(s rowScanner) (*models.Post, error) {
	var (
		p                     models.Post
		imageURL, imageMime   string
		imageData             []byte
		provider, status      string
		scheduledAt, postedAt sql.NullTime
	)

	err := s.Scan(
		&p.ID, &p.Content, &p.Hashtags, &imageURL, &imageData, &imageMime,
		&provider, &p.AccountID, &scheduledAt, &status, &p.ProviderPostID,
		&p.FailureReason, &p.Attempts, &postedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Provider = models.Provider(provider)
	p.Status = models.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if scheduledAt.Valid {
		p.ScheduledAt = timePtr(scheduledAt.Time)
	}
	if postedAt.Valid {
		p.PostedAt = timePtr(postedAt.Time)
	}
	if imageURL != "" || len(imageData) > 0 {
		p.Image = &models.Image{URL: imageURL, Data: imageData, MimeType: imageMime}
	}
	return &p, nil
}
