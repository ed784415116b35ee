package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"starlight/internal/config"
	"starlight/internal/library"
	"starlight/internal/player"
	"starlight/internal/playlist"
	"starlight/internal/scanner"
	"starlight/internal/storage"
	"starlight/internal/storage/engine"
)

const appSlug = "starlight"

// Runner holds the wired services behind the CLI commands. The storage
// backend and services open lazily on first use so commands like --help never
// touch the data directory.
type Runner struct {
	cfg       config.Config
	paths     config.Paths
	store     storage.Store
	library   *library.Service
	playlists *playlist.Service
	scanner   *scanner.Service
	logger    *log.Logger
	output    io.Writer
}

type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		scanCommand(r),
		libraryCommand(r),
		playlistCommand(r),
		playCommand(r),
		statusCommand(r),
	}
}

// setup loads config and opens the storage backend. Idempotent; every command
// action calls it first.
func (r *Runner) setup(ctx context.Context, cmd *cli.Command) error {
	if r.store != nil {
		return nil
	}

	paths, err := config.ResolvePaths(appSlug)
	if err != nil {
		return err
	}
	if dataDir := cmd.String("data-dir"); dataDir != "" {
		paths.BaseDir = dataDir
		paths.ConfigPath = filepath.Join(dataDir, "config.toml")
		paths.DBPath = filepath.Join(dataDir, "library.db")
		paths.KVDir = filepath.Join(dataDir, "kvstore")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	r.paths = paths

	cfg, err := config.Load(paths.ConfigPath)
	if err != nil {
		return err
	}
	r.cfg = cfg

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		r.logger.SetLevel(level)
	}

	selected := cfg.Storage.Engine
	if flagEngine := cmd.String("engine"); flagEngine != "" {
		selected = flagEngine
	}

	store, err := engine.Open(selected, engine.Options{
		SQLitePath: paths.DBPath,
		PebblePath: paths.KVDir,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	r.store = store

	r.library = library.NewService(store, r.logger)
	if err := r.library.Hydrate(ctx); err != nil {
		return err
	}

	r.playlists = playlist.NewService(store, r.logger)
	r.scanner = scanner.NewService(cfg.Library.Roots, r.library, r.logger)

	return nil
}

func (r *Runner) newPlayer(ctx context.Context) (*player.Service, error) {
	transport, err := player.NewTransport()
	if err != nil {
		return nil, err
	}

	service := player.NewService(transport, r.library, r.store, r.logger)
	if err := service.RestoreState(ctx, r.cfg.Playback.InitialVolume); err != nil {
		r.logger.Warn("restore playback state", "err", err)
	}

	return service, nil
}

func (r *Runner) Shutdown() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("close storage", "err", err)
		}
		r.store = nil
	}
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}
