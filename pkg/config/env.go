package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/joho/godotenv"
)

// Global environment variables.
const (
	EnvDefaultRedundancy   = "PINNING_DEFAULT_REDUNDANCY"
	EnvAutoRepair          = "PINNING_AUTO_REPAIR"
	EnvMaxFileSizeBytes    = "PINNING_MAX_FILE_SIZE_BYTES"
	EnvPinTimeoutMs        = "PINNING_PIN_TIMEOUT_MS"
	EnvHealthCheckInterval = "PINNING_HEALTH_CHECK_INTERVAL_MS"
	EnvConcurrency         = "PINNING_CONCURRENCY"
	EnvUnhealthyThreshold  = "PINNING_UNHEALTHY_THRESHOLD"
	EnvStoreDriver         = "PINNING_STORE_DRIVER"
	EnvStoreDSN            = "PINNING_STORE_DSN"
	EnvLogLevel            = "PINNING_LOG_LEVEL"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional), then variables from envFile (optional, never overriding
// the real environment), then the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if errs := cfg.ApplyEnv(os.LookupEnv); len(errs) > 0 {
		return nil, joinErrors(errs)
	}
	cfg.normalize()
	return cfg, nil
}

// EnvPrefix returns the variable prefix for a provider, e.g. IPFS_CLUSTER.
func EnvPrefix(id provider.ID) string {
	return strings.ToUpper(string(id))
}

// ApplyEnv overlays recognized variables and returns one error per
// malformed value.
func (c *Config) ApplyEnv(lookup LookupFunc) []error {
	var errs []error
	p := &c.Pinning

	intVar(lookup, EnvDefaultRedundancy, &p.DefaultRedundancy, &errs)
	boolVar(lookup, EnvAutoRepair, &p.AutoRepair, &errs)
	int64Var(lookup, EnvMaxFileSizeBytes, &p.MaxFileSizeBytes, &errs)
	msVar(lookup, EnvPinTimeoutMs, &p.PinTimeout, &errs)
	msVar(lookup, EnvHealthCheckInterval, &p.HealthCheckInterval, &errs)
	intVar(lookup, EnvConcurrency, &p.Concurrency, &errs)
	intVar(lookup, EnvUnhealthyThreshold, &p.UnhealthyThreshold, &errs)
	stringVar(lookup, EnvStoreDriver, &c.Store.Driver)
	stringVar(lookup, EnvStoreDSN, &c.Store.DSN)
	stringVar(lookup, EnvLogLevel, &c.Logging.Level)

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for _, id := range provider.Known {
		prefix := EnvPrefix(id)
		pc := c.Providers[string(id)]
		boolVar(lookup, prefix+"_ENABLED", &pc.Enabled, &errs)
		stringVar(lookup, prefix+"_API_KEY", &pc.APIKey)
		stringVar(lookup, prefix+"_API_SECRET", &pc.APISecret)
		intVar(lookup, prefix+"_PRIORITY", &pc.Priority, &errs)
		stringVar(lookup, prefix+"_ENDPOINT", &pc.Endpoint)
		msVar(lookup, prefix+"_TIMEOUT_MS", &pc.Timeout, &errs)
		c.Providers[string(id)] = pc
	}
	return errs
}

// normalize restores defaults a partial YAML provider entry leaves at zero.
func (c *Config) normalize() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for _, id := range provider.Known {
		pc := c.Providers[string(id)]
		if pc.Priority == 0 {
			pc.Priority = defaultPriorities[id]
		}
		c.Providers[string(id)] = pc
	}
}

func stringVar(lookup LookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func intVar(lookup LookupFunc, key string, dst *int, errs *[]error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid integer %q", v)})
		return
	}
	*dst = n
}

func int64Var(lookup LookupFunc, key string, dst *int64, errs *[]error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		*errs = append(*errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid integer %q", v)})
		return
	}
	*dst = n
}

func boolVar(lookup LookupFunc, key string, dst *bool, errs *[]error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, ValidationError{Path: key, Message: fmt.Sprintf("invalid boolean %q", v), Hint: "use true or false"})
		return
	}
	*dst = b
}

func msVar(lookup LookupFunc, key string, dst *time.Duration, errs *[]error) {
	var ms int64
	before := len(*errs)
	int64Var(lookup, key, &ms, errs)
	if len(*errs) > before {
		return
	}
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = time.Duration(ms) * time.Millisecond
	}
}
