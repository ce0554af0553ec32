package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/pinvault/pkg/config"
	"github.com/DeBrosOfficial/pinvault/pkg/logging"
)

func testConfig(t *testing.T, driver, dsn string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Providers["ipfs_cluster"] = config.ProviderConfig{Enabled: true, Priority: 1, Endpoint: "http://127.0.0.1:9094"}
	cfg.Store = config.StoreConfig{Driver: driver, DSN: dsn}
	require.Empty(t, cfg.Validate())
	return cfg
}

func TestBuildAppMemoryStore(t *testing.T) {
	logger := &logging.ColoredLogger{Logger: zap.NewNop()}
	a, err := buildApp(context.Background(), testConfig(t, "memory", ""), logger)
	require.NoError(t, err)
	defer a.close()

	require.NotNil(t, a.gateway)
	rec := httptest.NewRecorder()
	a.gateway.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pinning/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	health := a.manager.Service().GetHealthStatus()
	assert.Equal(t, 1, health.Summary.Enabled)
}

func TestBuildAppSQLiteStore(t *testing.T) {
	logger := &logging.ColoredLogger{Logger: zap.NewNop()}
	dsn := filepath.Join(t.TempDir(), "pins.db")
	a, err := buildApp(context.Background(), testConfig(t, "sqlite3", dsn), logger)
	require.NoError(t, err)
	assert.NoError(t, a.close())
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-config", "/etc/pinvault.yaml", "-addr", ":9000"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/pinvault.yaml", f.configPath)
	assert.Equal(t, ":9000", f.listenAddr)

	_, err = parseFlags([]string{"-unknown"})
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("pinning:\n  default_redundancy: 2\n"), 0o644))
	got, err := resolveConfigPath(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)

	got, err = resolveConfigPath("")
	require.NoError(t, err)
	assert.Empty(t, got, "no default file present")

	_, err = resolveConfigPath("missing.yaml")
	assert.Error(t, err)
}
