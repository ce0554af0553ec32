package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryPolicy_RetriesRetryable(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewError(Pinata, "pin", KindRemoteServerError, "bad gateway", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_StopsOnPermanent(t *testing.T) {
	calls := 0
	authErr := NewError(Pinata, "pin", KindAuthFailure, "bad key", nil)
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return authErr
	})
	if !errors.Is(err, authErr) {
		t.Fatalf("expected auth error to be returned unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("auth failures must not be retried, got %d calls", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		return NewError(Infura, "upload", KindTimeout, "slow", nil)
	})
	if !IsRetryable(err) {
		t.Fatalf("expected last retryable error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestRetryPolicy_CustomPredicate(t *testing.T) {
	calls := 0
	p := fastPolicy(4)
	p.Retryable = func(error) bool { return false }
	_ = p.Do(context.Background(), func() error {
		calls++
		return NewError(Infura, "upload", KindTimeout, "slow", nil)
	})
	if calls != 1 {
		t.Errorf("custom predicate should stop retries, got %d calls", calls)
	}
}

func TestRetryPolicy_Budget(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	if got, want := p.Budget(time.Second), 3375*time.Millisecond; got != want {
		t.Errorf("Budget() = %v, want %v", got, want)
	}
	if got := NoRetry.Budget(2 * time.Second); got != 2*time.Second {
		t.Errorf("single attempt budget = %v, want 2s", got)
	}

	capped := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Second}
	if got, want := capped.Budget(0), 3*time.Second; got != want {
		t.Errorf("capped Budget() = %v, want %v", got, want)
	}
}
