package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "Inspect and manage the track library",
		Commands: []*cli.Command{
			libraryListCommand(r),
			libraryRemoveCommand(r),
			libraryClearCommand(r),
		},
	}
}

func libraryListCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all tracks",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			snapshot := r.library.Snapshot()
			if len(snapshot) == 0 {
				r.printf("Library is empty\n")
				return nil
			}

			for _, item := range snapshot {
				duration := "?"
				if item.Track.DurationMS != nil {
					duration = formatDuration(*item.Track.DurationMS)
				}
				r.printf("%s\t%s — %s (%s) [%s]\n",
					item.Track.ID,
					item.Artist.Name,
					item.Track.Title,
					item.Album.Title,
					duration,
				)
			}
			r.printf("%d tracks\n", len(snapshot))

			return nil
		},
	}
}

func libraryRemoveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a track from the library (the file stays on disk)",
		ArgsUsage: "<track-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "permanent",
				Usage: "Delete the row outright instead of tombstoning it",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			trackID := strings.TrimSpace(cmd.Args().First())
			if trackID == "" {
				return cli.Exit("track id is required", 1)
			}

			if cmd.Bool("permanent") {
				if err := r.library.DeleteTrackPermanently(ctx, trackID); err != nil {
					return err
				}
			} else {
				if err := r.library.DeleteTrack(ctx, trackID); err != nil {
					return err
				}
			}

			r.printf("Removed track %s\n", trackID)
			return nil
		},
	}
}

func libraryClearCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every artist, album and track",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			if err := r.library.ClearLibrary(ctx); err != nil {
				return err
			}

			r.printf("Library cleared\n")
			return nil
		},
	}
}

func formatDuration(durationMS int) string {
	totalSeconds := durationMS / 1000
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}
