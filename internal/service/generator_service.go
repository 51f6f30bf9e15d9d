package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/apperror"
)

var (
	ErrGeneration = apperror.New(apperror.ErrUnavailable, "generation_failed", "content generation failed")
	ErrEmptyTopic = apperror.New(apperror.ErrValidation, "empty_topic", "topic must not be empty")
)

// GeneratorService asks the AI backend for a caption, hashtags and an image.
// It never touches post state.
type GeneratorService interface {
	Generate(ctx context.Context, req *transfer.GenerateRequest) (*transfer.GeneratedContent, error)
}

type generatorService struct {
	url    string
	client *http.Client
}

func NewGeneratorService(cfg config.Config) GeneratorService {
	return &generatorService{
		url:    strings.TrimRight(cfg.Generator.URL, "/"),
		client: generatorClient(cfg.Generator),
	}
}

// generatorClient authenticates with client credentials when a token URL is
// configured, with the static API key otherwise.
func generatorClient(cfg config.Generator) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.RequestTimeout})

	var client *http.Client
	switch {
	case cfg.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(ctx)
	case cfg.APIKey != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey}))
	default:
		client = &http.Client{}
	}
	client.Timeout = cfg.RequestTimeout
	return client
}

type generatorResponse struct {
	Caption       string          `json:"caption"`
	Hashtags      json.RawMessage `json:"hashtags"`
	ImageBase64   string          `json:"imageBase64"`
	ImageURL      string          `json:"imageUrl"`
	ImageMimeType string          `json:"imageMimeType"`
}

func (s *generatorService) Generate(ctx context.Context, req *transfer.GenerateRequest) (*transfer.GeneratedContent, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, ErrEmptyTopic
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/generate-all", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return nil, apperror.Wrap(ErrGeneration, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Info("generator returned an error", "status", resp.StatusCode, "body", string(msg))
		return nil, apperror.Wrap(ErrGeneration, fmt.Sprintf("generator returned HTTP %d", resp.StatusCode))
	}

	var out generatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperror.Wrap(ErrGeneration, "decode generator response")
	}
	if strings.TrimSpace(out.Caption) == "" {
		return nil, apperror.Wrap(ErrGeneration, "generator returned an empty caption")
	}

	return &transfer.GeneratedContent{
		Caption:       out.Caption,
		Hashtags:      normalizeHashtags(out.Hashtags),
		ImageBase64:   out.ImageBase64,
		ImageURL:      out.ImageURL,
		ImageMimeType: out.ImageMimeType,
	}, nil
}

// normalizeHashtags accepts either a string or a list of tags and returns the
// space separated form stored on posts.
func normalizeHashtags(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return ""
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		out = append(out, tag)
	}
	return strings.Join(out, " ")
}
