package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
)

// Kind classifies an adapter failure.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindRateLimited       Kind = "rate_limited"
	KindAuthFailure       Kind = "auth_failure"
	KindNotFound          Kind = "not_found"
	KindRemoteServerError Kind = "remote_server_error"
	KindUnknown           Kind = "unknown"
)

// AdapterError is the single error type every adapter surfaces.
type AdapterError struct {
	Provider   ID
	Op         string
	Kind       Kind
	Detail     string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *AdapterError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %s", e.Provider, e.Op, e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Op, e.Kind, e.Detail)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// Message returns the provider-supplied failure detail.
func (e *AdapterError) Message() string { return e.Detail }

// Code maps the kind onto the platform error codes.
func (e *AdapterError) Code() string {
	switch e.Kind {
	case KindTimeout:
		return perrors.CodeTimeout
	case KindRateLimited:
		return perrors.CodeRateLimit
	case KindAuthFailure:
		return perrors.CodeAuthFailure
	case KindNotFound:
		return perrors.CodeNotFound
	case KindRemoteServerError:
		return perrors.CodeServiceUnavailable
	default:
		return perrors.CodeInternal
	}
}

// NewError builds an AdapterError with the retryable flag implied by kind.
func NewError(id ID, op string, kind Kind, detail string, cause error) *AdapterError {
	return &AdapterError{
		Provider:  id,
		Op:        op,
		Kind:      kind,
		Detail:    detail,
		Retryable: kind == KindTimeout || kind == KindRateLimited || kind == KindRemoteServerError,
		Cause:     cause,
	}
}

// classifyStatus turns a non-2xx response into an AdapterError.
func classifyStatus(id ID, op string, status int, body string) *AdapterError {
	var kind Kind
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthFailure
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindRemoteServerError
	default:
		kind = KindUnknown
	}
	e := NewError(id, op, kind, body, nil)
	e.StatusCode = status
	return e
}

// classifyTransport turns a client-side failure (no response) into an AdapterError.
func classifyTransport(id ID, op string, err error) *AdapterError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return NewError(id, op, KindTimeout, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewError(id, op, KindUnknown, "request canceled", err)
	default:
		e := NewError(id, op, KindUnknown, err.Error(), err)
		e.Retryable = true
		return e
	}
}

// AsAdapterError normalizes any adapter return into an AdapterError so
// callers can fold it into a typed failure.
func AsAdapterError(id ID, op string, err error) *AdapterError {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	return classifyTransport(id, op, err)
}

// IsNotFound reports whether err is an adapter not-found failure.
func IsNotFound(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == KindNotFound
}

// IsAuthFailure reports whether err is an adapter credential failure.
func IsAuthFailure(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == KindAuthFailure
}

// IsRetryable is the default retryable-error predicate.
func IsRetryable(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}
