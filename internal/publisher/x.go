package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
)

type XConfig struct {
	APIURL    string
	UploadURL string
	// HTTPClient is the transport under the OAuth1 signer. Defaults to a
	// client with a one minute timeout.
	HTTPClient *http.Client
}

// XPublisher posts tweets with OAuth 1.0a user-context credentials.
type XPublisher struct {
	apiURL    string
	uploadURL string
	client    *http.Client
	log       *slog.Logger
}

func NewXPublisher(cfg XConfig, log *slog.Logger) *XPublisher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &XPublisher{
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		uploadURL: strings.TrimRight(cfg.UploadURL, "/"),
		client:    client,
		log:       log.With("component", "publisher", "provider", models.ProviderX),
	}
}

func (p *XPublisher) Provider() models.Provider {
	return models.ProviderX
}

func (p *XPublisher) Submit(ctx context.Context, s Submission) (*Result, error) {
	if s.Credentials == nil || !s.Credentials.X.Complete() {
		return nil, CredentialError(models.ProviderX, "incomplete x credentials", nil)
	}
	client := p.signedClient(ctx, s.Credentials.X)

	req := transfer.TweetRequest{Text: s.Text()}
	if !s.Image.IsZero() {
		mediaID, err := p.uploadMedia(ctx, client, s.Image)
		if err != nil {
			return nil, err
		}
		req.Media = &transfer.TweetMedia{MediaIDs: []string{mediaID}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, Permanent(models.ProviderX, "encode tweet", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(models.ProviderX, "build tweet request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(models.ProviderX, "create tweet", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, xStatusError(resp)
	}

	var tweet transfer.TweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tweet); err != nil {
		return nil, Permanent(models.ProviderX, "decode tweet response", err)
	}
	if tweet.Data.ID == "" {
		return nil, Permanent(models.ProviderX, "no tweet id returned", nil)
	}

	p.log.Info("tweet created", "post_id", s.PostID, "tweet_id", tweet.Data.ID)
	return &Result{
		ProviderPostID: tweet.Data.ID,
		URL:            "https://x.com/i/web/status/" + tweet.Data.ID,
	}, nil
}

func (p *XPublisher) signedClient(ctx context.Context, c *models.XCredentials) *http.Client {
	config := oauth1.NewConfig(c.APIKey, c.APISecret)
	token := oauth1.NewToken(c.AccessToken, c.AccessSecret)
	return config.Client(context.WithValue(ctx, oauth1.HTTPClient, p.client), token)
}

// uploadMedia sends the image through the v1.1 simple upload endpoint and
// returns the media id to attach to the tweet.
func (p *XPublisher) uploadMedia(ctx context.Context, client *http.Client, img *models.Image) (string, error) {
	data := img.Data
	if !img.Inline() {
		fetched, err := fetchImage(ctx, p.client, models.ProviderX, img.URL)
		if err != nil {
			return "", err
		}
		data = fetched
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "image")
	if err != nil {
		return "", Permanent(models.ProviderX, "build media upload", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", Permanent(models.ProviderX, "build media upload", err)
	}
	if err := mw.Close(); err != nil {
		return "", Permanent(models.ProviderX, "build media upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL+"/media/upload.json", &buf)
	if err != nil {
		return "", Permanent(models.ProviderX, "build media upload", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", wrapTransport(models.ProviderX, "media upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", xStatusError(resp)
	}

	var media transfer.MediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return "", Permanent(models.ProviderX, "decode media upload response", err)
	}
	if media.MediaIDString == "" {
		return "", Permanent(models.ProviderX, "no media id returned", nil)
	}
	return media.MediaIDString, nil
}

func xStatusError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(body))
	var xerr transfer.XErrorResponse
	if err := json.Unmarshal(body, &xerr); err == nil && xerr.Message() != "" {
		msg = xerr.Message()
	}

	return &Error{
		Provider:   models.ProviderX,
		Kind:       KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

// fetchImage downloads a hosted image so it can be re-uploaded to a provider.
func fetchImage(ctx context.Context, client *http.Client, provider models.Provider, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(provider, "invalid image url", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, wrapTransport(provider, "image download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:   provider,
			Kind:       KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("image download from %s failed", url),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, wrapTransport(provider, "image download", err)
	}
	if len(data) > maxImageBytes {
		return nil, Permanent(provider, "image exceeds 5 MB", nil)
	}
	return data, nil
}

const maxImageBytes = 5 << 20
