package publisher_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/logger"
)

func discard() *slog.Logger { return logger.Discard() }

func xCreds() *models.Credentials {
	return &models.Credentials{
		AccountID: "acc1",
		Provider:  models.ProviderX,
		X: &models.XCredentials{
			APIKey: "key", APISecret: "secret", AccessToken: "token", AccessSecret: "token-secret",
		},
	}
}

func newX(srv *httptest.Server) *publisher.XPublisher {
	return publisher.NewXPublisher(publisher.XConfig{
		APIURL:     srv.URL + "/2",
		UploadURL:  srv.URL + "/1.1",
		HTTPClient: srv.Client(),
	}, discard())
}

func TestXPublisher_TextTweet(t *testing.T) {
	var got transfer.TweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `oauth_consumer_key="key"`) {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"tw_123","text":"Hello"}}`))
	}))
	defer srv.Close()

	res, err := newX(srv).Submit(context.Background(), publisher.Submission{
		PostID: "p1", Content: "Hello", Hashtags: "#go", Credentials: xCreds(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ProviderPostID != "tw_123" {
		t.Errorf("ProviderPostID = %q", res.ProviderPostID)
	}
	if got.Text != "Hello\n\n#go" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Media != nil {
		t.Errorf("media = %+v, want none", got.Media)
	}
}

func TestXPublisher_WithImage(t *testing.T) {
	var tweet transfer.TweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.1/media/upload.json":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if _, _, err := r.FormFile("media"); err != nil {
				t.Errorf("media part: %v", err)
			}
			w.Write([]byte(`{"media_id":77,"media_id_string":"77"}`))
		case "/2/tweets":
			json.NewDecoder(r.Body).Decode(&tweet)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"data":{"id":"tw_9"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	_, err := newX(srv).Submit(context.Background(), publisher.Submission{
		Content:     "pic",
		Image:       &models.Image{Data: []byte("\x89PNG\r\n\x1a\n"), MimeType: "image/png"},
		Credentials: xCreds(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tweet.Media == nil || len(tweet.Media.MediaIDs) != 1 || tweet.Media.MediaIDs[0] != "77" {
		t.Errorf("media = %+v", tweet.Media)
	}
}

func TestXPublisher_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   publisher.Kind
	}{
		{http.StatusTooManyRequests, `{"title":"Too Many Requests"}`, publisher.KindTransient},
		{http.StatusBadGateway, `upstream`, publisher.KindTransient},
		{http.StatusForbidden, `{"detail":"You are not allowed to create a Tweet with duplicate content."}`, publisher.KindPermanent},
		{http.StatusUnauthorized, `{"title":"Unauthorized"}`, publisher.KindCredential},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newX(srv).Submit(context.Background(), publisher.Submission{Content: "x", Credentials: xCreds()})
			if got := publisher.Classify(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestXPublisher_MissingCredentials(t *testing.T) {
	p := publisher.NewXPublisher(publisher.XConfig{APIURL: "http://unused"}, discard())

	_, err := p.Submit(context.Background(), publisher.Submission{Content: "x", Credentials: &models.Credentials{Provider: models.ProviderX}})
	if publisher.Classify(err) != publisher.KindCredential {
		t.Errorf("err = %v, want credential error", err)
	}
}

func TestXPublisher_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newX(srv).Submit(ctx, publisher.Submission{Content: "x", Credentials: xCreds()})
	if publisher.Classify(err) != publisher.KindTransient || !publisher.IsTimeout(err) {
		t.Errorf("err = %v, want transient timeout", err)
	}
}
