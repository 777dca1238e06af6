package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrProviderUnavailable covers transport failures, timeouts and 5xx responses.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrRateLimited is returned when the provider rejects the call with 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidCredentials is a configuration error; retrying cannot succeed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownBackend is wrapped when a backend name is not registered.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Error wraps provider errors with the failure kind and status metadata.
type Error struct {
	Backend string
	Status  int
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "gateway error"
	}
	msg := fmt.Sprintf("backend %s: %v", e.Backend, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{e.Kind, e.Err}
}

// KindForStatus maps an HTTP status code onto a failure kind.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrInvalidCredentials
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrProviderUnavailable
	}
}

// IsRetryable reports whether a generation error allows the single fallback attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return false
	}
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}

// wrap normalizes any adapter error into *Error for the given backend.
func wrap(backend string, err error) error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		out := *gwErr
		if out.Backend == "" {
			out.Backend = backend
		}
		if out.Kind == nil {
			out.Kind = KindForStatus(out.Status)
		}
		return &out
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Backend: backend, Kind: ErrProviderUnavailable, Err: err}
}

// statusError builds an *Error from an HTTP status returned by a provider SDK.
func statusError(status int, err error) error {
	return &Error{Status: status, Kind: KindForStatus(status), Err: err}
}
