package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/pinvault/pkg/config"
	"github.com/DeBrosOfficial/pinvault/pkg/health"
	"github.com/DeBrosOfficial/pinvault/pkg/manager"
	"github.com/DeBrosOfficial/pinvault/pkg/metrics"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/provider/providertest"
	"github.com/DeBrosOfficial/pinvault/pkg/registry"
	"github.com/DeBrosOfficial/pinvault/pkg/store"
)

type testServer struct {
	fakes map[provider.ID]*providertest.Fake
	mgr   *manager.Manager
	http  *httptest.Server
}

func newTestServer(t *testing.T, ids ...provider.ID) *testServer {
	t.Helper()
	ts := &testServer{fakes: make(map[provider.ID]*providertest.Fake)}
	recorder := metrics.NewRecorder()
	var entries []registry.Entry
	for i, id := range ids {
		f := providertest.New(id)
		ts.fakes[id] = f
		entries = append(entries, registry.Entry{Adapter: metrics.Instrument(f, recorder), Priority: i + 1, Enabled: true})
	}
	reg := registry.New(entries...)
	svc := pinning.NewService(reg, pinning.Options{DefaultRedundancy: 2, CallTimeout: time.Second}, nil)
	mon := health.NewMonitor(reg, svc, health.Options{}, nil)
	ts.mgr = manager.New(svc, mon, store.NewMemoryStore(), manager.Options{AutoRepair: true}, nil)

	srv := New(ts.mgr, recorder, config.GatewayConfig{ListenAddr: "127.0.0.1:0"}, 1024, nil)
	ts.http = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestPinContentEndpoint(t *testing.T) {
	ts := newTestServer(t, "a", "b", "c")

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin?name=doc.txt", []byte("payload"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	outcome := body["outcome"].(map[string]any)
	assert.Equal(t, providertest.HashOf([]byte("payload")), outcome["hash"])
	assert.Len(t, outcome["replicas"], 2)
}

func TestPinContentTwiceConflicts(t *testing.T) {
	ts := newTestServer(t, "a", "b")

	code, _ := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))
	require.Equal(t, http.StatusOK, code)

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "CONFLICT", body["code"])
}

func TestPinContentPartial(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	ts.fakes["b"].FailKind(providertest.OpPin, provider.KindRemoteServerError)

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "pinned to 1 of 2 target providers", body["reason"])
	assert.NotNil(t, body["record"])
}

func TestPinContentTooLarge(t *testing.T) {
	ts := newTestServer(t, "a", "b")

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Zero(t, ts.fakes["a"].ContentCalls())
}

func TestPinHashEndpoint(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	hash := providertest.HashOf([]byte("existing"))

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin-hash", []byte(`{"hash":"`+hash+`"}`))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.True(t, ts.fakes["a"].Holds(hash))
	assert.True(t, ts.fakes["b"].Holds(hash))

	code, body = ts.do(t, http.MethodPost, "/v1/pinning/content/c2/pin-hash", []byte(`{"hash":"not-a-cid"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
}

func TestPinHashNoReplicas(t *testing.T) {
	ts := newTestServer(t, "a")
	ts.fakes["a"].FailKind(providertest.OpPin, provider.KindRemoteServerError)
	hash := providertest.HashOf([]byte("existing"))

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin-hash", []byte(`{"hash":"`+hash+`"}`))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["success"])
	assert.NotNil(t, body["outcome"])
}

func TestUnpinAndListContent(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	_, _ = ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))

	code, body := ts.do(t, http.MethodDelete, "/v1/pinning/content/c1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.False(t, ts.fakes["a"].Holds(providertest.HashOf([]byte("payload"))))

	code, body = ts.do(t, http.MethodGet, "/v1/pinning/content", nil)
	assert.Equal(t, http.StatusOK, code)
	content := body["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, manager.StatusUnpinned, content[0].(map[string]any)["status"])

	code, _ = ts.do(t, http.MethodDelete, "/v1/pinning/content/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRepairEndpoint(t *testing.T) {
	ts := newTestServer(t, "a", "b", "c")
	_, _ = ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))
	hash := providertest.HashOf([]byte("payload"))
	ts.fakes["b"].SetPinned(hash, false)

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/content/c1/repair", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	repair := body["repair"].(map[string]any)
	assert.Equal(t, true, repair["repaired"])
	assert.True(t, ts.fakes["c"].Holds(hash))
}

func TestEmergencyUnpinRequiresConfirmation(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	_, _ = ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))
	hash := providertest.HashOf([]byte("payload"))

	code, body := ts.do(t, http.MethodPost, "/v1/pinning/emergency-unpin", []byte(`{"confirmation":"yes"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.True(t, ts.fakes["a"].Holds(hash))

	code, body = ts.do(t, http.MethodPost, "/v1/pinning/emergency-unpin",
		[]byte(`{"confirmation":"`+manager.EmergencyConfirmation+`"}`))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.False(t, ts.fakes["a"].Holds(hash))
}

func TestStatusEndpoints(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	_, _ = ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))
	hash := providertest.HashOf([]byte("payload"))

	code, body := ts.do(t, http.MethodGet, "/v1/pinning/status", nil)
	assert.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["total"])
	assert.EqualValues(t, 1, stats["well_pinned"])

	code, body = ts.do(t, http.MethodGet, "/v1/pinning/hash/"+hash, nil)
	assert.Equal(t, http.StatusOK, code)
	summary := body["status"].(map[string]any)["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["pinned_count"])
	assert.Equal(t, true, summary["is_well_pinned"])

	code, body = ts.do(t, http.MethodGet, "/v1/pinning/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body["health"])

	code, body = ts.do(t, http.MethodGet, "/v1/pinning/usage", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body["usage"])

	code, body = ts.do(t, http.MethodPost, "/v1/pinning/health-check", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body["report"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "a", "b")
	_, _ = ts.do(t, http.MethodPost, "/v1/pinning/content/c1/pin", []byte("payload"))

	resp, err := http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(buf.String(), "pinvault_provider_calls_total"))
}

func TestServeStopsOnCancel(t *testing.T) {
	ts := newTestServer(t, "a")
	srv := New(ts.mgr, nil, config.GatewayConfig{ListenAddr: "127.0.0.1:0", ShutdownTimeout: time.Second}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
