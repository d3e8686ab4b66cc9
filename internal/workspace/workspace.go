// Package workspace bootstraps the on-disk data directory: the result
// cache database and the default extraction-parameter file.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"personae/internal/config"
)

const BaseDirName = "Personae"

// EnsureDefault resolves the workspace root (PERSONAE_HOME, else a
// directory under the user's home) and creates its layout.
func EnsureDefault() (string, error) {
	if base := os.Getenv("PERSONAE_HOME"); base != "" {
		return EnsureAt(base)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return EnsureAt(filepath.Join(home, BaseDirName))
}

// EnsureAt creates the workspace layout under base and seeds the default
// params file when absent.
func EnsureAt(base string) (string, error) {
	for _, p := range []string{
		filepath.Join(base, "cache"),
		filepath.Join(base, "configs"),
	} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", p, err)
		}
	}

	paramsPath := ParamsPath(base)
	if _, err := os.Stat(paramsPath); os.IsNotExist(err) {
		if err := config.Save(paramsPath, config.Defaults()); err != nil {
			return "", err
		}
	}
	return base, nil
}

// CachePath is the location of the sqlite result cache.
func CachePath(base string) string {
	return filepath.Join(base, "cache", "results.db")
}

// ParamsPath is the location of the extraction-parameter file.
func ParamsPath(base string) string {
	return filepath.Join(base, "configs", "params.yaml")
}
