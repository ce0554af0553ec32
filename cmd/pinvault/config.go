package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/DeBrosOfficial/pinvault/pkg/config"
)

type flags struct {
	configPath string
	envFile    string
	listenAddr string
	logLevel   string
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// parseFlags reads command-line flags. Priority: flags > env > config file > defaults.
func parseFlags(args []string) (*flags, error) {
	fs := flag.NewFlagSet("pinvault", flag.ContinueOnError)
	f := &flags{}
	fs.StringVar(&f.configPath, "config", getEnvDefault("PINVAULT_CONFIG", ""), "Path to the YAML config file")
	fs.StringVar(&f.envFile, "env-file", getEnvDefault("PINVAULT_ENV_FILE", ".env"), "Optional dotenv file loaded before the environment")
	fs.StringVar(&f.listenAddr, "addr", "", "HTTP listen address, overrides gateway.listen_addr")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level, overrides logging.level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// resolveConfigPath returns the config file to load. An explicit path that
// exists is used as given, a bare name is looked up under ~/.pinvault, and
// with no flag ~/.pinvault/pinvault.yaml is used when present.
func resolveConfigPath(p string) (string, error) {
	if p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		resolved, err := config.DefaultPath(p)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(resolved); err != nil {
			return "", fmt.Errorf("config file %s not found", p)
		}
		return resolved, nil
	}

	resolved, err := config.DefaultPath("pinvault.yaml")
	if err != nil {
		return "", nil
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", nil
	}
	return resolved, nil
}
