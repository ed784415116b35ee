package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Paths struct {
	BaseDir    string
	ConfigPath string
	DBPath     string
	KVDir      string
}

func ResolvePaths(appSlug string) (Paths, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
	}

	baseDir := filepath.Join(configDir, appSlug)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	return Paths{
		BaseDir:    baseDir,
		ConfigPath: filepath.Join(baseDir, "config.toml"),
		DBPath:     filepath.Join(baseDir, "library.db"),
		KVDir:      filepath.Join(baseDir, "kvstore"),
	}, nil
}
