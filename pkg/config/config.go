package config

import (
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
)

// Config represents the main configuration for a pinvault daemon
type Config struct {
	Pinning   PinningConfig             `yaml:"pinning"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Store     StoreConfig               `yaml:"store"`
	Gateway   GatewayConfig             `yaml:"gateway"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// PinningConfig contains replication and health-check settings
type PinningConfig struct {
	DefaultRedundancy   int           `yaml:"default_redundancy"`    // Replicas per content item
	AutoRepair          bool          `yaml:"auto_repair"`           // Repair under-replicated content on each health cycle
	MaxFileSizeBytes    int64         `yaml:"max_file_size_bytes"`   // 0 disables the limit
	PinTimeout          time.Duration `yaml:"pin_timeout"`           // Default per-call provider timeout
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // Time between health cycles
	HealthCycleBudget   time.Duration `yaml:"health_cycle_budget"`   // Wall-clock cap for one cycle
	Concurrency         int           `yaml:"concurrency"`           // Provider fan-out bound; 0 = redundancy
	UnhealthyThreshold  int           `yaml:"unhealthy_threshold"`   // Consecutive probe failures before unhealthy
	Retry               RetryConfig   `yaml:"retry"`
}

// RetryConfig is the retry policy applied by every adapter
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ProviderConfig configures one pinning provider
type ProviderConfig struct {
	Enabled           bool          `yaml:"enabled"`
	APIKey            string        `yaml:"api_key"`
	APISecret         string        `yaml:"api_secret"`
	Priority          int           `yaml:"priority"`            // Lower is preferred
	Endpoint          string        `yaml:"endpoint"`            // Overrides the provider's API base URL
	GatewayURL        string        `yaml:"gateway_url"`         // Overrides the retrieval gateway base URL
	Timeout           time.Duration `yaml:"timeout"`             // 0 uses pinning.pin_timeout
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables throttling
}

// StoreConfig selects where pinning records live
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite3, rqlite
	DSN    string `yaml:"dsn"`    // file path for sqlite3, http URL for rqlite
}

// GatewayConfig contains the operational HTTP surface settings
type GatewayConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// defaultPriorities orders providers when no priority is configured.
var defaultPriorities = map[provider.ID]int{
	provider.Pinata:      1,
	provider.Web3Storage: 2,
	provider.NFTStorage:  3,
	provider.Infura:      4,
	provider.IPFSCluster: 5,
}

// DefaultConfig returns a configuration with sensible defaults. Every
// provider is present but disabled.
func DefaultConfig() *Config {
	providers := make(map[string]ProviderConfig, len(provider.Known))
	for _, id := range provider.Known {
		providers[string(id)] = ProviderConfig{Priority: defaultPriorities[id]}
	}
	return &Config{
		Pinning: PinningConfig{
			DefaultRedundancy:   2,
			AutoRepair:          true,
			MaxFileSizeBytes:    100 << 20,
			PinTimeout:          60 * time.Second,
			HealthCheckInterval: 5 * time.Minute,
			HealthCycleBudget:   2 * time.Minute,
			Concurrency:         0,
			UnhealthyThreshold:  1,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    5 * time.Second,
			},
		},
		Providers: providers,
		Store: StoreConfig{
			Driver: "memory",
		},
		Gateway: GatewayConfig{
			Enabled:         true,
			ListenAddr:      ":8088",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Colors: true,
		},
	}
}

// ProviderSpec is a provider ready to be built and registered.
type ProviderSpec struct {
	Adapter  provider.Config
	Priority int
	Enabled  bool
}

// ProviderSpecs converts the provider section into adapter configs, in no
// particular order. Unknown provider names are skipped; Validate reports them.
func (c *Config) ProviderSpecs() []ProviderSpec {
	retry := provider.RetryPolicy{
		MaxAttempts: c.Pinning.Retry.MaxAttempts,
		BaseDelay:   c.Pinning.Retry.BaseDelay,
		MaxDelay:    c.Pinning.Retry.MaxDelay,
	}
	var out []ProviderSpec
	for _, id := range provider.Known {
		pc, ok := c.Providers[string(id)]
		if !ok {
			continue
		}
		timeout := pc.Timeout
		if timeout == 0 {
			timeout = c.Pinning.PinTimeout
		}
		out = append(out, ProviderSpec{
			Adapter: provider.Config{
				ID:                id,
				Endpoint:          pc.Endpoint,
				GatewayURL:        pc.GatewayURL,
				APIKey:            pc.APIKey,
				APISecret:         pc.APISecret,
				Timeout:           timeout,
				RequestsPerSecond: pc.RequestsPerSecond,
				Retry:             retry,
			},
			Priority: pc.Priority,
			Enabled:  pc.Enabled,
		})
	}
	return out
}
