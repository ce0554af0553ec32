package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{http.StatusRequestTimeout, KindTimeout, true},
		{http.StatusGatewayTimeout, KindTimeout, true},
		{http.StatusTooManyRequests, KindRateLimited, true},
		{http.StatusUnauthorized, KindAuthFailure, false},
		{http.StatusForbidden, KindAuthFailure, false},
		{http.StatusNotFound, KindNotFound, false},
		{http.StatusInternalServerError, KindRemoteServerError, true},
		{http.StatusBadGateway, KindRemoteServerError, true},
		{http.StatusBadRequest, KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			e := classifyStatus(Pinata, "pin", tt.status, "body")
			if e.Kind != tt.kind {
				t.Errorf("status %d: expected kind %s, got %s", tt.status, tt.kind, e.Kind)
			}
			if e.Retryable != tt.retryable {
				t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
			}
			if e.StatusCode != tt.status {
				t.Errorf("expected status to be recorded")
			}
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	timeout := classifyTransport(Infura, "upload", fmt.Errorf("dial: %w", context.DeadlineExceeded))
	if timeout.Kind != KindTimeout || !timeout.Retryable {
		t.Errorf("deadline should be a retryable timeout, got %+v", timeout)
	}

	canceled := classifyTransport(Infura, "upload", context.Canceled)
	if canceled.Retryable {
		t.Error("caller cancellation must not be retried")
	}

	refused := classifyTransport(Infura, "upload", errors.New("connection refused"))
	if refused.Kind != KindUnknown || !refused.Retryable {
		t.Errorf("transport failure should be retryable unknown, got %+v", refused)
	}
}

func TestAdapterErrorImplementsPlatformError(t *testing.T) {
	var err error = NewError(Pinata, "pin", KindRateLimited, "slow down", nil)
	if got := perrors.GetErrorCode(fmt.Errorf("wrapped: %w", err)); got != perrors.CodeRateLimit {
		t.Errorf("expected %s, got %s", perrors.CodeRateLimit, got)
	}
	if !IsRetryable(err) {
		t.Error("rate limited should be retryable")
	}
	if AsAdapterError(Pinata, "pin", nil) != nil {
		t.Error("nil error should stay nil")
	}
}
