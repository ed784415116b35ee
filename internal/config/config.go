// Package config loads the TOML configuration file and resolves the
// per-user data directories.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the persisted user configuration. A missing file yields the
// defaults; unknown keys are rejected so typos surface immediately.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Library  LibraryConfig  `toml:"library"`
	Playback PlaybackConfig `toml:"playback"`
	LogLevel string         `toml:"log_level"`
}

type StorageConfig struct {
	// Engine selects the storage backend: auto, sqlite or pebble.
	Engine string `toml:"engine"`
}

type LibraryConfig struct {
	// Roots are the folders scanned for audio files.
	Roots []string `toml:"roots"`
	// Watch enables filesystem watching for automatic rescans.
	Watch bool `toml:"watch"`
}

type PlaybackConfig struct {
	// InitialVolume is the gain used before any state is restored, 0..1.
	InitialVolume float64 `toml:"initial_volume"`
}

func Default() Config {
	return Config{
		Storage:  StorageConfig{Engine: "auto"},
		Playback: PlaybackConfig{InitialVolume: 1.0},
		LogLevel: "info",
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Engine {
	case "", "auto", "sqlite", "pebble":
	default:
		return fmt.Errorf("unknown storage engine %q", c.Storage.Engine)
	}

	if c.Playback.InitialVolume < 0 || c.Playback.InitialVolume > 1 {
		return fmt.Errorf("initial_volume must be between 0 and 1, got %v", c.Playback.InitialVolume)
	}

	return nil
}
