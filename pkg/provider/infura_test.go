package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestInfuraAdapter_UnpinNotPinned(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "project" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"Message":"not pinned or pinned indirectly","Code":0,"Type":"error"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.APIKey, cfg.APISecret = "project", "secret"
	cfg.Retry = RetryPolicy{MaxAttempts: 3}
	if err := NewInfuraAdapter(cfg, zap.NewNop()).Unpin(context.Background(), "QmX"); err != nil {
		t.Errorf("not pinned should be treated as unpinned, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("not pinned must not be retried, got %d calls", calls)
	}
}

func TestInfuraAdapter_IsPinned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/pin/ls" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("arg") == "QmYes" {
			w.Write([]byte(`{"Keys":{"QmYes":{"Type":"recursive"}}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"Message":"path 'QmNo' is not pinned","Code":0}`))
	}))
	defer server.Close()

	a := NewInfuraAdapter(testConfig(server.URL), zap.NewNop())
	if ok, err := a.IsPinned(context.Background(), "QmYes"); err != nil || !ok {
		t.Errorf("expected pinned, got %v %v", ok, err)
	}
	if ok, err := a.IsPinned(context.Background(), "QmNo"); err != nil || ok {
		t.Errorf("expected not pinned, got %v %v", ok, err)
	}
}

func TestInfuraAdapter_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"Version":"0.20.0"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 2}
	if err := NewInfuraAdapter(cfg, zap.NewNop()).HealthProbe(context.Background()); err != nil {
		t.Errorf("expected probe to succeed after retry, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
