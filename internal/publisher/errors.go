package publisher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/maheshrc27/autopost/internal/models"
)

type Kind string

const (
	// KindTransient errors are retried up to the attempt cap.
	KindTransient Kind = "transient"
	// KindPermanent errors fail the post immediately.
	KindPermanent Kind = "permanent"
	// KindCredential errors are permanent and point at the account.
	KindCredential Kind = "credential"
)

var ErrTimeout = errors.New("submit timed out")

// Error is a classified provider failure.
type Error struct {
	Provider   models.Provider
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(provider models.Provider, message string, err error) *Error {
	return &Error{Provider: provider, Kind: KindTransient, Message: message, Err: err}
}

func Permanent(provider models.Provider, message string, err error) *Error {
	return &Error{Provider: provider, Kind: KindPermanent, Message: message, Err: err}
}

func CredentialError(provider models.Provider, message string, err error) *Error {
	return &Error{Provider: provider, Kind: KindCredential, Message: message, Err: err}
}

// KindForStatus classifies an HTTP status returned by a provider API.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return KindTransient
	case code == http.StatusUnauthorized:
		return KindCredential
	default:
		return KindPermanent
	}
}

// Classify returns the kind of any error coming out of a submit. Unclassified
// network failures and timeouts are transient; anything else is permanent.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if IsTimeout(err) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindPermanent
}

func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// wrapTransport classifies an error returned by http.Client.Do.
func wrapTransport(provider models.Provider, op string, err error) *Error {
	if IsTimeout(err) {
		return Transient(provider, op+" timed out", ErrTimeout)
	}
	return Transient(provider, op+" request failed", err)
}
