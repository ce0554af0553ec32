package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestPinataAdapter_Auth(t *testing.T) {
	t.Run("key_and_secret", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"message":"Congratulations!"}`))
		}))
		defer server.Close()

		cfg := testConfig(server.URL)
		cfg.APIKey, cfg.APISecret = "key", "secret"
		if err := NewPinataAdapter(cfg, zap.NewNop()).HealthProbe(context.Background()); err != nil {
			t.Errorf("expected probe success, got %v", err)
		}
	})

	t.Run("bad_jwt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}))
		defer server.Close()

		cfg := testConfig(server.URL)
		cfg.APIKey = "bad"
		err := NewPinataAdapter(cfg, zap.NewNop()).HealthProbe(context.Background())
		if !IsAuthFailure(err) {
			t.Errorf("expected auth failure, got %v", err)
		}
		if IsRetryable(err) {
			t.Error("auth failures are not retryable")
		}
	})
}

func TestPinataAdapter_PinAndStatus(t *testing.T) {
	pinned := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pinning/pinByHash":
			var body struct {
				HashToPin string `json:"hashToPin"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			pinned[body.HashToPin] = true
			w.Write([]byte(`{"id":"job","ipfsHash":"` + body.HashToPin + `","status":"prechecking"}`))
		case "/data/pinList":
			hash := r.URL.Query().Get("hashContains")
			if pinned[hash] {
				w.Write([]byte(`{"count":1,"rows":[{"ipfs_pin_hash":"` + hash + `"}]}`))
				return
			}
			w.Write([]byte(`{"count":0,"rows":[]}`))
		case "/pinning/unpin/QmA":
			if !pinned["QmA"] {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"reason":"CURRENT_USER_HAS_NOT_PINNED_CID"}}`))
				return
			}
			delete(pinned, "QmA")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := NewPinataAdapter(testConfig(server.URL), zap.NewNop())
	ctx := context.Background()

	res, err := a.PinExisting(ctx, "QmA")
	if err != nil {
		t.Fatalf("PinExisting failed: %v", err)
	}
	if res.URL != "https://gateway.pinata.cloud/ipfs/QmA" {
		t.Errorf("unexpected url %s", res.URL)
	}
	if ok, err := a.IsPinned(ctx, "QmA"); err != nil || !ok {
		t.Errorf("expected pinned, got %v %v", ok, err)
	}
	if err := a.Unpin(ctx, "QmA"); err != nil {
		t.Fatalf("Unpin failed: %v", err)
	}
	if err := a.Unpin(ctx, "QmA"); err != nil {
		t.Errorf("second unpin should be a no-op, got %v", err)
	}
	if ok, _ := a.IsPinned(ctx, "QmA"); ok {
		t.Error("expected unpinned after Unpin")
	}
}

func TestPinataAdapter_Usage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pin_count":12,"pin_size_total":4096,"pin_size_with_replications_total":8192}`))
	}))
	defer server.Close()

	u, err := NewPinataAdapter(testConfig(server.URL), zap.NewNop()).Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if u.PinCount != 12 || u.UsedBytes != 4096 {
		t.Errorf("unexpected usage %+v", u)
	}
}
