// Package publisher holds the provider adapters that submit a post to an
// external platform, and the error classification the dispatcher retries on.
package publisher

//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=mocks/mock.go

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
)

// Submission is everything an adapter needs for one publish attempt.
type Submission struct {
	PostID      string
	Content     string
	Hashtags    string
	Image       *models.Image
	Credentials *models.Credentials
}

func (s Submission) Text() string {
	return models.ComposeText(s.Content, s.Hashtags)
}

type Result struct {
	ProviderPostID string
	URL            string
}

// Publisher submits content to one provider. Every call is a fresh attempt;
// callers never run two submits for the same post concurrently.
type Publisher interface {
	Provider() models.Provider
	Submit(ctx context.Context, s Submission) (*Result, error)
}

// CredentialResolver maps a provider and optional account id to a decrypted
// credential bundle. An empty account id selects the provider default.
type CredentialResolver interface {
	Resolve(ctx context.Context, provider models.Provider, accountID string) (*models.Credentials, error)
}

// MediaUploader stores inline image bytes and returns a public URL.
type MediaUploader interface {
	UploadImage(ctx context.Context, data []byte, contentType string) (string, error)
}

// TokenRefresher exchanges a credential bundle for one with a fresh token.
type TokenRefresher interface {
	Provider() models.Provider
	RefreshToken(ctx context.Context, creds *models.Credentials) (*models.Credentials, error)
}

type Registry struct {
	publishers map[models.Provider]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[models.Provider]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Provider()] = p
	}
	return r
}

// Get returns the adapter for provider. A missing adapter is a permanent
// error: retrying will not make one appear.
func (r *Registry) Get(provider models.Provider) (Publisher, error) {
	p, ok := r.publishers[provider]
	if !ok {
		return nil, &Error{
			Provider: provider,
			Kind:     KindPermanent,
			Message:  fmt.Sprintf("no publisher registered for provider %q", provider),
		}
	}
	return p, nil
}

func (r *Registry) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(r.publishers))
	for p := range r.publishers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

const defaultHTTPTimeout = 60 * time.Second
