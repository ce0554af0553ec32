package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "providers.pinata.api_key"
	Message string // e.g., "must not be empty"
	Hint    string // e.g., "set PINATA_API_KEY"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validatePinning()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validatePinning() []error {
	var errs []error
	p := c.Pinning

	if p.DefaultRedundancy < 1 {
		errs = append(errs, ValidationError{
			Path:    "pinning.default_redundancy",
			Message: fmt.Sprintf("must be >= 1; got %d", p.DefaultRedundancy),
		})
	}
	if p.MaxFileSizeBytes < 0 {
		errs = append(errs, ValidationError{
			Path:    "pinning.max_file_size_bytes",
			Message: "must not be negative",
			Hint:    "use 0 to disable the limit",
		})
	}
	if p.PinTimeout <= 0 {
		errs = append(errs, ValidationError{Path: "pinning.pin_timeout", Message: "must be positive"})
	}
	if p.HealthCheckInterval <= 0 {
		errs = append(errs, ValidationError{Path: "pinning.health_check_interval", Message: "must be positive"})
	}
	if p.HealthCycleBudget <= 0 {
		errs = append(errs, ValidationError{Path: "pinning.health_cycle_budget", Message: "must be positive"})
	} else if p.HealthCheckInterval > 0 && p.HealthCycleBudget > p.HealthCheckInterval {
		errs = append(errs, ValidationError{
			Path:    "pinning.health_cycle_budget",
			Message: "must not exceed health_check_interval",
		})
	}
	if p.Concurrency < 0 {
		errs = append(errs, ValidationError{
			Path:    "pinning.concurrency",
			Message: "must not be negative",
			Hint:    "use 0 to bound fan-out by redundancy",
		})
	}
	if p.UnhealthyThreshold < 1 {
		errs = append(errs, ValidationError{
			Path:    "pinning.unhealthy_threshold",
			Message: fmt.Sprintf("must be >= 1; got %d", p.UnhealthyThreshold),
		})
	}

	r := p.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Path: "pinning.retry.max_attempts", Message: "must be >= 1"})
	}
	if r.BaseDelay <= 0 {
		errs = append(errs, ValidationError{Path: "pinning.retry.base_delay", Message: "must be positive"})
	}
	if r.MaxDelay < r.BaseDelay {
		errs = append(errs, ValidationError{Path: "pinning.retry.max_delay", Message: "must be >= base_delay"})
	}
	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error
	known := make(map[string]bool, len(provider.Known))
	for _, id := range provider.Known {
		known[string(id)] = true
	}

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	enabled := 0
	for _, name := range names {
		pc := c.Providers[name]
		path := "providers." + name
		if !known[name] {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: "unknown provider",
				Hint:    fmt.Sprintf("expected one of %s", knownList()),
			})
			continue
		}
		if !pc.Enabled {
			continue
		}
		enabled++

		if pc.APIKey == "" && provider.ID(name) != provider.IPFSCluster {
			errs = append(errs, ValidationError{
				Path:    path + ".api_key",
				Message: "must not be empty for an enabled provider",
				Hint:    fmt.Sprintf("set %s_API_KEY", EnvPrefix(provider.ID(name))),
			})
		}
		if provider.ID(name) == provider.Infura && pc.APISecret == "" {
			errs = append(errs, ValidationError{
				Path:    path + ".api_secret",
				Message: "must not be empty for infura",
				Hint:    "set INFURA_API_SECRET",
			})
		}
		if pc.Priority < 0 {
			errs = append(errs, ValidationError{Path: path + ".priority", Message: "must not be negative"})
		}
		if pc.Timeout < 0 {
			errs = append(errs, ValidationError{Path: path + ".timeout", Message: "must not be negative"})
		}
		if pc.RequestsPerSecond < 0 {
			errs = append(errs, ValidationError{Path: path + ".requests_per_second", Message: "must not be negative"})
		}
		for field, raw := range map[string]string{"endpoint": pc.Endpoint, "gateway_url": pc.GatewayURL} {
			if raw == "" {
				continue
			}
			if err := validateHTTPURL(raw); err != nil {
				errs = append(errs, ValidationError{Path: path + "." + field, Message: err.Error()})
			}
		}
	}

	if enabled == 0 {
		errs = append(errs, ValidationError{
			Path:    "providers",
			Message: "no provider is enabled",
			Hint:    "set <PROVIDER>_ENABLED=true for at least one provider",
		})
	}
	return errs
}

func (c *Config) validateStore() []error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "rqlite":
		if c.Store.DSN == "" {
			errs = append(errs, ValidationError{
				Path:    "store.dsn",
				Message: fmt.Sprintf("must not be empty for driver %s", c.Store.Driver),
			})
		} else if c.Store.Driver == "rqlite" {
			if err := validateHTTPURL(c.Store.DSN); err != nil {
				errs = append(errs, ValidationError{Path: "store.dsn", Message: err.Error(), Hint: "e.g. http://localhost:5001"})
			}
		}
	default:
		errs = append(errs, ValidationError{
			Path:    "store.driver",
			Message: fmt.Sprintf("unsupported driver %q", c.Store.Driver),
			Hint:    "expected memory, sqlite3 or rqlite",
		})
	}
	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error
	g := c.Gateway
	if !g.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(g.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Path:    "gateway.listen_addr",
			Message: fmt.Sprintf("invalid address %q", g.ListenAddr),
			Hint:    "expected host:port or :port",
		})
	}
	if g.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{Path: "gateway.shutdown_timeout", Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", c.Logging.Level),
			Hint:    "expected one of debug, info, warn, error",
		})
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", c.Logging.Format),
			Hint:    "expected json or console",
		})
	}
	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https; got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func knownList() string {
	names := make([]string, len(provider.Known))
	for i, id := range provider.Known {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}
