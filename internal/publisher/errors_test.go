package publisher_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		code int
		want publisher.Kind
	}{
		{http.StatusTooManyRequests, publisher.KindTransient},
		{http.StatusInternalServerError, publisher.KindTransient},
		{http.StatusServiceUnavailable, publisher.KindTransient},
		{http.StatusRequestTimeout, publisher.KindTransient},
		{http.StatusUnauthorized, publisher.KindCredential},
		{http.StatusForbidden, publisher.KindPermanent},
		{http.StatusBadRequest, publisher.KindPermanent},
		{http.StatusUnprocessableEntity, publisher.KindPermanent},
	}
	for _, tt := range tests {
		if got := publisher.KindForStatus(tt.code); got != tt.want {
			t.Errorf("KindForStatus(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want publisher.Kind
	}{
		{"nil", nil, ""},
		{"classified", publisher.Permanent(models.ProviderX, "duplicate", nil), publisher.KindPermanent},
		{"wrapped classified", fmt.Errorf("submit: %w", publisher.CredentialError(models.ProviderX, "bad", nil)), publisher.KindCredential},
		{"deadline", context.DeadlineExceeded, publisher.KindTransient},
		{"timeout sentinel", publisher.ErrTimeout, publisher.KindTransient},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, publisher.KindTransient},
		{"plain", errors.New("boom"), publisher.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := publisher.Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !publisher.IsTimeout(fmt.Errorf("attempt: %w", context.DeadlineExceeded)) {
		t.Error("wrapped deadline is not a timeout")
	}
	if !publisher.IsTimeout(publisher.Transient(models.ProviderX, "graph timed out", publisher.ErrTimeout)) {
		t.Error("transient timeout is not a timeout")
	}
	if publisher.IsTimeout(errors.New("boom")) {
		t.Error("plain error reported as timeout")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &publisher.Error{
		Provider:   models.ProviderInstagram,
		Kind:       publisher.KindTransient,
		StatusCode: 503,
		Message:    "try later",
	}
	want := "instagram transient error (HTTP 503): try later"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRegistry(t *testing.T) {
	reg := publisher.NewRegistry(publisher.NewXPublisher(publisher.XConfig{}, discard()))

	if _, err := reg.Get(models.ProviderX); err != nil {
		t.Fatalf("Get(x): %v", err)
	}
	_, err := reg.Get(models.ProviderInstagram)
	if publisher.Classify(err) != publisher.KindPermanent {
		t.Errorf("missing publisher err = %v, want permanent", err)
	}
	if got := reg.Providers(); len(got) != 1 || got[0] != models.ProviderX {
		t.Errorf("Providers = %v", got)
	}
}
