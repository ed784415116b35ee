package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan the configured library folders and import new tracks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep watching the folders and rescan on changes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			summary, err := r.scanner.Scan(ctx)
			if err != nil {
				return err
			}
			r.printf("Scanned %d files: %d added, %d skipped\n",
				summary.Total, summary.Added, summary.Skipped)

			if !cmd.Bool("watch") && !r.cfg.Library.Watch {
				return nil
			}

			watcher, err := r.scanner.StartWatching()
			if err != nil {
				return err
			}
			defer watcher.Close()

			r.printf("Watching library folders; press Ctrl+C to stop\n")
			waitCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-waitCtx.Done()

			return nil
		},
	}
}
