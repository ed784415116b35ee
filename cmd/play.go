package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
)

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Play a track; skips and seeks are persisted across runs",
		ArgsUsage: "[track-id]",
		Flags: []cli.Flag{
			&cli.FloatFlag{
				Name:  "volume",
				Usage: "Playback gain between 0 and 1",
				Value: -1,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			playerService, err := r.newPlayer(ctx)
			if err != nil {
				return err
			}
			defer playerService.Close()

			if volume := cmd.Float("volume"); volume >= 0 {
				if err := playerService.SetVolume(ctx, volume); err != nil {
					return err
				}
			}

			trackID := strings.TrimSpace(cmd.Args().First())
			if trackID != "" {
				if err := playerService.PlayTrack(ctx, trackID); err != nil {
					return err
				}
			} else {
				// No argument resumes whatever state was restored.
				if err := playerService.Play(ctx); err != nil {
					return err
				}
			}

			state := playerService.GetState()
			if state.CurrentTrack != nil {
				r.printf("Playing %s — %s\n",
					state.CurrentTrack.Artist.Name, state.CurrentTrack.Track.Title)
			}
			r.printf("Press Ctrl+C to stop\n")

			waitCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-waitCtx.Done()

			return playerService.Pause(context.Background())
		},
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the persisted playback state",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			state, err := r.store.GetPlaybackState(ctx)
			if err != nil {
				return err
			}
			if state == nil {
				r.printf("No playback state recorded\n")
				return nil
			}

			if state.ActiveTrackID != nil {
				if track := r.library.TrackByID(*state.ActiveTrackID); track != nil {
					r.printf("Track: %s — %s\n", track.Artist.Name, track.Track.Title)
				} else {
					r.printf("Track: %s (no longer in library)\n", *state.ActiveTrackID)
				}
			}
			r.printf("Position: %s\n", formatDuration(state.PositionMS))
			r.printf("Volume: %.0f%%", state.Volume*100)
			if state.IsMuted {
				r.printf(" (muted)")
			}
			r.printf("\nUpdated: %s\n", state.UpdatedAt)

			return nil
		},
	}
}
