package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/autopost/internal/lifecycle"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/apperror"
)

const (
	xMaxChars     = 280
	xURLLength    = 23
	maxImageBytes = 5 << 20
)

// Code points X counts as one character; everything else counts as two.
var xLightRanges = [][2]rune{{0, 4351}, {8192, 8205}, {8208, 8223}, {8242, 8247}}

var allowedImageTypes = map[string]bool{"png": true, "jpg": true, "gif": true, "webp": true}

var (
	ErrPostNotFound    = apperror.New(apperror.ErrNotFound, "post_not_found", "post not found")
	ErrContentTooLong  = apperror.New(apperror.ErrValidation, "content_too_long", fmt.Sprintf("x posts are limited to %d characters", xMaxChars))
	ErrInvalidImage    = apperror.New(apperror.ErrValidation, "invalid_image", "image must be a png, jpeg, gif or webp of at most 5MB, or an http(s) URL")
	ErrInvalidIntent   = apperror.New(apperror.ErrValidation, "invalid_intent", "intent must be one of draft, now, schedule")
	ErrAmbiguousIntent = apperror.New(apperror.ErrValidation, "ambiguous_intent", "a post cannot be both posted now and scheduled")
	ErrInvalidStatus   = apperror.New(apperror.ErrValidation, "invalid_status", "unknown post status")
	ErrNotEditable     = apperror.New(apperror.ErrConflict, "not_editable", "post can no longer be edited in its current status")
	ErrImageLocked     = apperror.New(apperror.ErrConflict, "image_locked", "image cannot change once a post has been queued")
	ErrPostInFlight    = apperror.New(apperror.ErrConflict, "post_in_flight", "post is being dispatched")
)

// Dispatcher publishes a queued post and returns it in its final status.
type Dispatcher interface {
	Dispatch(ctx context.Context, post *models.Post) (*models.Post, error)
}

type PostService interface {
	Create(ctx context.Context, req *transfer.PostCreation) (*models.Post, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	Edit(ctx context.Context, id string, req *transfer.PostEdit) (*models.Post, error)
	Publish(ctx context.Context, id string) (*models.Post, error)
	Schedule(ctx context.Context, id string, at time.Time) (*models.Post, error)
	Retry(ctx context.Context, id string) (*models.Post, error)
	Clone(ctx context.Context, id string, provider models.Provider) (*models.Post, error)
	Remove(ctx context.Context, id string) error
}

type postService struct {
	posts      repository.PostRepository
	lifecycle  *lifecycle.Manager
	dispatcher Dispatcher
	clock      clockwork.Clock
}

func NewPostService(
	posts repository.PostRepository,
	lm *lifecycle.Manager,
	dispatcher Dispatcher,
	clock clockwork.Clock) PostService {
	return &postService{
		posts:      posts,
		lifecycle:  lm,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

// ResolveIntent reads the creation intent. An explicit intent wins; the
// postNow/scheduledAt pair is only consulted when it is absent.
func ResolveIntent(req *transfer.PostCreation) (models.Intent, error) {
	if req.Intent != "" {
		intent := models.Intent(req.Intent)
		switch intent {
		case models.IntentDraft, models.IntentNow:
			if req.ScheduledAt != nil || req.PostNow && intent == models.IntentDraft {
				return "", ErrAmbiguousIntent
			}
		case models.IntentSchedule:
			if req.PostNow {
				return "", ErrAmbiguousIntent
			}
		default:
			return "", ErrInvalidIntent
		}
		return intent, nil
	}

	switch {
	case req.PostNow && req.ScheduledAt != nil:
		return "", ErrAmbiguousIntent
	case req.PostNow:
		return models.IntentNow, nil
	case req.ScheduledAt != nil:
		return models.IntentSchedule, nil
	}
	return models.IntentDraft, nil
}

func validateText(content, hashtags string, provider models.Provider) error {
	if err := lifecycle.ValidateContent(content, provider); err != nil {
		return err
	}
	if provider == models.ProviderX && xWeightedLength(models.ComposeText(content, hashtags)) > xMaxChars {
		return ErrContentTooLong
	}
	return nil
}

// xWeightedLength counts text the way X does: links are shortened to a fixed
// length and code points outside the light ranges (CJK, emoji) count twice.
// Emoji sequences joined with ZWJ are overcounted, so a few posts X would
// accept are rejected here, never the other way round.
func xWeightedLength(text string) int {
	n := 0
	for len(text) > 0 {
		if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
			end := strings.IndexFunc(text, unicode.IsSpace)
			if end < 0 {
				end = len(text)
			}
			n += xURLLength
			text = text[end:]
			continue
		}
		r, size := utf8.DecodeRuneInString(text)
		n += xRuneWeight(r)
		text = text[size:]
	}
	return n
}

func xRuneWeight(r rune) int {
	for _, rg := range xLightRanges {
		if r >= rg[0] && r <= rg[1] {
			return 1
		}
	}
	return 2
}

// parseImage turns the request image fields into an Image. Both empty means
// no image.
func parseImage(imageURL, imageBase64 string) (*models.Image, error) {
	imageURL = strings.TrimSpace(imageURL)
	imageBase64 = strings.TrimSpace(imageBase64)

	switch {
	case imageURL == "" && imageBase64 == "":
		return nil, nil
	case imageURL != "" && imageBase64 != "":
		return nil, ErrInvalidImage
	case imageURL != "":
		u, err := url.Parse(imageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, ErrInvalidImage
		}
		return &models.Image{URL: imageURL}, nil
	}

	// data:image/png;base64,....
	if strings.HasPrefix(imageBase64, "data:") {
		if i := strings.Index(imageBase64, ","); i >= 0 {
			imageBase64 = imageBase64[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return nil, ErrInvalidImage
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return nil, ErrInvalidImage
	}

	kind, err := filetype.Match(data)
	if err != nil || !allowedImageTypes[kind.Extension] {
		return nil, ErrInvalidImage
	}
	return &models.Image{Data: data, MimeType: kind.MIME.Value}, nil
}

// Create validates and stores a new post. With the "now" intent the post is
// dispatched before returning, and the result is the post in its final
// status: a failed publish is not an error here.
func (s *postService) Create(ctx context.Context, req *transfer.PostCreation) (*models.Post, error) {
	intent, err := ResolveIntent(req)
	if err != nil {
		return nil, err
	}

	provider := models.Provider(strings.ToLower(strings.TrimSpace(req.Provider)))
	if err := validateText(req.Content, req.Hashtags, provider); err != nil {
		return nil, err
	}

	image, err := parseImage(req.ImageURL, req.ImageBase64)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:        id,
		Content:   req.Content,
		Hashtags:  strings.TrimSpace(req.Hashtags),
		Image:     image,
		Provider:  provider,
		AccountID: strings.TrimSpace(req.AccountID),
	}

	switch intent {
	case models.IntentDraft:
		post.Status = models.PostStatusDraft
	case models.IntentNow:
		post.Status = models.PostStatusQueued
	case models.IntentSchedule:
		post.Status = models.PostStatusScheduled
		post.ScheduledAt = req.ScheduledAt
	}

	if err := s.lifecycle.Create(ctx, post); err != nil {
		return nil, err
	}

	if intent == models.IntentNow {
		return s.dispatcher.Dispatch(ctx, post)
	}
	return post, nil
}

func (s *postService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	return post, err
}

func (s *postService) List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	if filter.Status != "" {
		if _, err := models.ParseStatus(string(filter.Status)); err != nil {
			return nil, ErrInvalidStatus
		}
	}
	if filter.Provider != "" && !filter.Provider.Valid() {
		return nil, lifecycle.ErrUnknownProvider
	}
	return s.posts.List(ctx, filter)
}

// Edit changes content fields of a post that has not been dispatched.
// Content and hashtags are editable in draft, scheduled and failed; the image
// in draft and scheduled; the schedule only while scheduled.
func (s *postService) Edit(ctx context.Context, id string, req *transfer.PostEdit) (*models.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch post.Status {
	case models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed:
	default:
		return nil, ErrNotEditable
	}

	var u models.PostUpdate

	content, hashtags := post.Content, post.Hashtags
	if req.Content != nil {
		content = *req.Content
		u.Content = req.Content
	}
	if req.Hashtags != nil {
		hashtags = strings.TrimSpace(*req.Hashtags)
		u.Hashtags = &hashtags
	}
	if err := validateText(content, hashtags, post.Provider); err != nil {
		return nil, err
	}

	if req.ImageURL != nil || req.ImageBase64 != nil || req.RemoveImage {
		if post.Status == models.PostStatusFailed {
			return nil, ErrImageLocked
		}
		if req.RemoveImage {
			u.ClearImage = true
		} else {
			var imageURL, imageBase64 string
			if req.ImageURL != nil {
				imageURL = *req.ImageURL
			}
			if req.ImageBase64 != nil {
				imageBase64 = *req.ImageBase64
			}
			image, err := parseImage(imageURL, imageBase64)
			if err != nil {
				return nil, err
			}
			if image == nil {
				u.ClearImage = true
			} else {
				u.Image = image
			}
		}
	}

	if req.ScheduledAt != nil {
		if post.Status != models.PostStatusScheduled {
			return nil, ErrNotEditable
		}
		if !req.ScheduledAt.After(s.clock.Now()) {
			return nil, lifecycle.ErrScheduleInPast
		}
		u.ScheduledAt = req.ScheduledAt
	}

	return s.lifecycle.Edit(ctx, id, post.Status, u)
}

// Publish queues a draft and dispatches it right away.
func (s *postService) Publish(ctx context.Context, id string) (*models.Post, error) {
	return s.queueAndDispatch(ctx, id, models.PostStatusDraft)
}

// Retry re-queues a failed post and dispatches it right away.
func (s *postService) Retry(ctx context.Context, id string) (*models.Post, error) {
	return s.queueAndDispatch(ctx, id, models.PostStatusFailed)
}

func (s *postService) queueAndDispatch(ctx context.Context, id string, from models.Status) (*models.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != from {
		return nil, &lifecycle.TransitionError{From: post.Status, To: models.PostStatusQueued}
	}
	if err := validateText(post.Content, post.Hashtags, post.Provider); err != nil {
		return nil, err
	}

	queued, err := s.lifecycle.Queue(ctx, post)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, queued)
}

func (s *postService) Schedule(ctx context.Context, id string, at time.Time) (*models.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Schedule(ctx, post, at)
}

// Clone creates a draft copy of a post, optionally for another provider.
// Posts never change provider, so this is how content is reposted.
func (s *postService) Clone(ctx context.Context, id string, provider models.Provider) (*models.Post, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if provider == "" {
		provider = src.Provider
	}
	if err := validateText(src.Content, src.Hashtags, provider); err != nil {
		return nil, err
	}

	newID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	clone := &models.Post{
		ID:       newID,
		Content:  src.Content,
		Hashtags: src.Hashtags,
		Provider: provider,
		Status:   models.PostStatusDraft,
	}
	if src.Image != nil {
		image := *src.Image
		clone.Image = &image
	}
	if provider == src.Provider {
		clone.AccountID = src.AccountID
	}

	if err := s.lifecycle.Create(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// Remove deletes a post unless it is being dispatched.
func (s *postService) Remove(ctx context.Context, id string) error {
	post, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusQueued {
		return ErrPostInFlight
	}

	err = s.posts.Remove(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPostNotFound
	}
	return err
}
