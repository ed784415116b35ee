// Package engine selects and opens a storage backend. The engine is fixed at
// construction: callers never fall back mid-session, so every write lands in
// exactly one store.
package engine

import (
	"fmt"

	"github.com/charmbracelet/log"

	"starlight/internal/storage"
	"starlight/internal/storage/kv"
	"starlight/internal/storage/sqlite"
)

const (
	Auto   = "auto"
	SQLite = "sqlite"
	Pebble = "pebble"
)

// Options carries the per-engine storage locations.
type Options struct {
	SQLitePath string
	PebblePath string
	Logger     *log.Logger
}

// Open opens the requested engine. An explicitly requested engine that cannot
// be opened fails fast with storage.ErrEngineUnavailable; auto tries SQLite
// first and falls back to Pebble.
func Open(engine string, opts Options) (storage.Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	switch engine {
	case SQLite:
		store, err := sqlite.Bootstrap(opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite: %v", storage.ErrEngineUnavailable, err)
		}
		return store, nil

	case Pebble:
		store, err := kv.Open(opts.PebblePath)
		if err != nil {
			return nil, fmt.Errorf("%w: pebble: %v", storage.ErrEngineUnavailable, err)
		}
		return store, nil

	case Auto, "":
		store, err := sqlite.Bootstrap(opts.SQLitePath)
		if err == nil {
			logger.Debug("storage engine selected", "engine", SQLite, "path", opts.SQLitePath)
			return store, nil
		}
		logger.Warn("sqlite unavailable, falling back to pebble", "err", err)

		fallback, fallbackErr := kv.Open(opts.PebblePath)
		if fallbackErr != nil {
			return nil, fmt.Errorf("%w: sqlite: %v; pebble: %v", storage.ErrEngineUnavailable, err, fallbackErr)
		}
		logger.Debug("storage engine selected", "engine", Pebble, "path", opts.PebblePath)
		return fallback, nil

	default:
		return nil, fmt.Errorf("unknown storage engine %q", engine)
	}
}
