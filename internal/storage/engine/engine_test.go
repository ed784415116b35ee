package engine

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"starlight/internal/storage"
)

func testOptions(t *testing.T) Options {
	t.Helper()

	return Options{
		SQLitePath: filepath.Join(t.TempDir(), "library.db"),
		PebblePath: filepath.Join(t.TempDir(), "kvstore"),
		Logger:     log.New(io.Discard),
	}
}

func TestOpenExplicitEngines(t *testing.T) {
	t.Parallel()

	for _, name := range []string{SQLite, Pebble} {
		store, err := Open(name, testOptions(t))
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		store.Close()
	}
}

func TestOpenAutoPrefersSQLite(t *testing.T) {
	t.Parallel()

	store, err := Open(Auto, testOptions(t))
	if err != nil {
		t.Fatalf("open auto: %v", err)
	}
	defer store.Close()
}

func TestOpenUnknownEngineFails(t *testing.T) {
	t.Parallel()

	if _, err := Open("mongodb", testOptions(t)); err == nil {
		t.Fatalf("expected an error for an unknown engine")
	}
}

func TestOpenExplicitEngineFailsFast(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	// A directory where the database file should be makes sqlite unopenable.
	opts.SQLitePath = t.TempDir()

	_, err := Open(SQLite, opts)
	if !errors.Is(err, storage.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}
