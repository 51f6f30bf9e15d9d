package publisher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
)

// Graph error codes that mean the token is no longer usable.
const (
	graphCodeInvalidToken = 190
	graphCodePermission   = 10
)

// Uploaded inline images are remembered so that retries of the same post
// reuse the hosted object.
const (
	uploadCacheSize = 512
	uploadCacheTTL  = 24 * time.Hour
)

// Graph error codes for throttling.
var graphThrottleCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

type InstagramConfig struct {
	GraphURL   string
	HTTPClient *http.Client
	// Uploader hosts inline images; Graph only accepts image URLs.
	Uploader MediaUploader
	Clock    clockwork.Clock
}

// InstagramPublisher publishes single-image posts through the Instagram
// Graph API: create a media container, then publish it.
type InstagramPublisher struct {
	graphURL string
	client   *http.Client
	uploader MediaUploader
	uploads  *expirable.LRU[string, string]
	clock    clockwork.Clock
	log      *slog.Logger
}

func NewInstagramPublisher(cfg InstagramConfig, log *slog.Logger) *InstagramPublisher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InstagramPublisher{
		graphURL: strings.TrimRight(cfg.GraphURL, "/"),
		client:   client,
		uploader: cfg.Uploader,
		uploads:  expirable.NewLRU[string, string](uploadCacheSize, nil, uploadCacheTTL),
		clock:    clock,
		log:      log.With("component", "publisher", "provider", models.ProviderInstagram),
	}
}

func (p *InstagramPublisher) Provider() models.Provider {
	return models.ProviderInstagram
}

func (p *InstagramPublisher) Submit(ctx context.Context, s Submission) (*Result, error) {
	if s.Credentials == nil || !s.Credentials.Instagram.Complete() {
		return nil, CredentialError(models.ProviderInstagram, "incomplete instagram credentials", nil)
	}
	creds := s.Credentials.Instagram

	if s.Image.IsZero() {
		return nil, Permanent(models.ProviderInstagram, "instagram posts require an image", nil)
	}

	imageURL := s.Image.URL
	if s.Image.Inline() {
		uploaded, err := p.hostImage(ctx, s.PostID, s.Image)
		if err != nil {
			return nil, err
		}
		imageURL = uploaded
	}

	var container transfer.GraphIDResponse
	err := p.post(ctx, fmt.Sprintf("%s/%s/media", p.graphURL, creds.BusinessAccountID), transfer.GraphMediaRequest{
		ImageURL:    imageURL,
		Caption:     s.Text(),
		AccessToken: creds.AccessToken,
	}, &container)
	if err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, Permanent(models.ProviderInstagram, "no media container id returned", nil)
	}

	var published transfer.GraphIDResponse
	err = p.post(ctx, fmt.Sprintf("%s/%s/media_publish", p.graphURL, creds.BusinessAccountID), transfer.GraphPublishRequest{
		CreationID:  container.ID,
		AccessToken: creds.AccessToken,
	}, &published)
	if err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, Permanent(models.ProviderInstagram, "no media id returned", nil)
	}

	p.log.Info("instagram media published", "post_id", s.PostID, "media_id", published.ID)
	return &Result{
		ProviderPostID: published.ID,
		URL:            p.permalink(ctx, published.ID, creds.AccessToken),
	}, nil
}

// hostImage uploads inline image bytes once per post and image content.
func (p *InstagramPublisher) hostImage(ctx context.Context, postID string, img *models.Image) (string, error) {
	if p.uploader == nil {
		return "", Permanent(models.ProviderInstagram, "no media storage configured for inline images", nil)
	}

	sum := sha256.Sum256(img.Data)
	key := postID + ":" + hex.EncodeToString(sum[:])
	if hosted, ok := p.uploads.Get(key); ok {
		return hosted, nil
	}

	hosted, err := p.uploader.UploadImage(ctx, img.Data, img.MimeType)
	if err != nil {
		return "", Transient(models.ProviderInstagram, "upload image", err)
	}
	p.uploads.Add(key, hosted)
	return hosted, nil
}

// permalink is best effort; the post is already live when it is called.
func (p *InstagramPublisher) permalink(ctx context.Context, mediaID, token string) string {
	q := url.Values{"fields": {"permalink"}, "access_token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s?%s", p.graphURL, mediaID, q.Encode()), nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var out transfer.GraphPermalinkResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&out) != nil {
		return ""
	}
	return out.Permalink
}

// RefreshToken exchanges the long-lived token for a new one. The app id and
// secret of the account are required.
func (p *InstagramPublisher) RefreshToken(ctx context.Context, creds *models.Credentials) (*models.Credentials, error) {
	if creds == nil || !creds.Instagram.Complete() || creds.Instagram.AppID == "" || creds.Instagram.AppSecret == "" {
		return nil, CredentialError(models.ProviderInstagram, "app id and secret are required to refresh a token", nil)
	}
	ig := creds.Instagram

	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {ig.AppID},
		"client_secret":     {ig.AppSecret},
		"fb_exchange_token": {ig.AccessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, Permanent(models.ProviderInstagram, "build token request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapTransport(models.ProviderInstagram, "token refresh", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, graphStatusError(resp)
	}

	var token transfer.GraphTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, Permanent(models.ProviderInstagram, "decode token response", err)
	}
	if token.AccessToken == "" {
		return nil, Permanent(models.ProviderInstagram, "no access token returned", nil)
	}

	refreshed := *ig
	refreshed.AccessToken = token.AccessToken
	refreshed.ExpiresAt = time.Time{}
	if token.ExpiresIn > 0 {
		refreshed.ExpiresAt = p.clock.Now().Add(time.Duration(token.ExpiresIn) * time.Second).UTC()
	}

	return &models.Credentials{
		AccountID: creds.AccountID,
		Provider:  models.ProviderInstagram,
		Instagram: &refreshed,
	}, nil
}

func (p *InstagramPublisher) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(models.ProviderInstagram, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Permanent(models.ProviderInstagram, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransport(models.ProviderInstagram, "graph", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return graphStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Permanent(models.ProviderInstagram, "decode graph response", err)
	}
	return nil
}

// graphStatusError classifies a Graph API error. The error body wins over
// the HTTP status because Graph returns 400 for throttling and bad tokens.
func graphStatusError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	e := &Error{
		Provider:   models.ProviderInstagram,
		Kind:       KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var gerr transfer.GraphErrorResponse
	if err := json.Unmarshal(body, &gerr); err != nil || gerr.Error.Message == "" {
		return e
	}

	e.Message = gerr.Error.Message
	switch {
	case gerr.Error.IsTransient || graphThrottleCodes[gerr.Error.Code]:
		e.Kind = KindTransient
	case gerr.Error.Code == graphCodeInvalidToken || gerr.Error.Code == graphCodePermission:
		e.Kind = KindCredential
	}
	return e
}
