package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the pinvault config directory (~/.pinvault).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".pinvault"), nil
}

// DefaultPath resolves a config file name such as "pinvault.yaml".
// Absolute paths are returned unchanged. Otherwise ~/.pinvault/configs/ is
// preferred over ~/.pinvault/.
func DefaultPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}

	configsPath := filepath.Join(dir, "configs", name)
	if _, err := os.Stat(configsPath); err == nil {
		return configsPath, nil
	}

	flatPath := filepath.Join(dir, name)
	if _, err := os.Stat(flatPath); err == nil {
		return flatPath, nil
	}

	// Report the configs location so error messages show where the file belongs.
	return configsPath, nil
}
