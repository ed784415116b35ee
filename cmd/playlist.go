package main

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v3"

	"starlight/internal/storage"
)

func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Create and manage playlists",
		Commands: []*cli.Command{
			playlistCreateCommand(r),
			playlistListCommand(r),
			playlistShowCommand(r),
			playlistRenameCommand(r),
			playlistAddCommand(r),
			playlistRemoveCommand(r),
			playlistDeleteCommand(r),
			playlistClearAllCommand(r),
		},
	}
}

func playlistCreateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a new playlist",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Optional playlist description",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			name := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if name == "" {
				return cli.Exit("playlist name is required", 1)
			}

			var description *string
			if value := cmd.String("description"); value != "" {
				description = &value
			}

			created, err := r.playlists.Create(ctx, name, description)
			if err != nil {
				return err
			}

			r.printf("Created playlist %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
}

func playlistListCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List playlists",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			summaries, err := r.playlists.List(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				r.printf("No playlists\n")
				return nil
			}

			for _, summary := range summaries {
				r.printf("%s\t%s (%d tracks)\n", summary.ID, summary.Name, summary.TrackCount)
			}

			return nil
		},
	}
}

func playlistShowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a playlist and its tracks",
		ArgsUsage: "<playlist-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			playlistID := strings.TrimSpace(cmd.Args().First())
			if playlistID == "" {
				return cli.Exit("playlist id is required", 1)
			}

			detail, err := r.playlists.Get(ctx, playlistID)
			if err != nil {
				if errors.Is(err, storage.ErrPlaylistNotFound) {
					return cli.Exit("playlist not found", 1)
				}
				return err
			}

			r.printf("%s\n", detail.Name)
			if detail.Description != nil {
				r.printf("%s\n", *detail.Description)
			}
			for _, entry := range detail.Entries {
				r.printf("%3d. %s (%s)\n", entry.Position, entry.Track.Title, entry.Track.ID)
			}
			r.printf("%d tracks\n", len(detail.Entries))

			return nil
		},
	}
}

func playlistRenameCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a playlist",
		ArgsUsage: "<playlist-id> <new-name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			playlistID := strings.TrimSpace(cmd.Args().Get(0))
			name := strings.TrimSpace(strings.Join(cmd.Args().Slice()[1:], " "))
			if playlistID == "" || name == "" {
				return cli.Exit("playlist id and new name are required", 1)
			}

			if err := r.playlists.Update(ctx, playlistID, storage.PlaylistPatch{Name: &name}); err != nil {
				return err
			}

			r.printf("Renamed playlist %s\n", playlistID)
			return nil
		},
	}
}

func playlistAddCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Append a track to a playlist",
		ArgsUsage: "<playlist-id> <track-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			playlistID := strings.TrimSpace(cmd.Args().Get(0))
			trackID := strings.TrimSpace(cmd.Args().Get(1))
			if playlistID == "" || trackID == "" {
				return cli.Exit("playlist id and track id are required", 1)
			}

			if err := r.playlists.AddTrack(ctx, playlistID, trackID); err != nil {
				if errors.Is(err, storage.ErrDuplicateMembership) {
					return cli.Exit("track is already in that playlist", 1)
				}
				return err
			}

			r.printf("Added track %s to playlist %s\n", trackID, playlistID)
			return nil
		},
	}
}

func playlistRemoveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a track from a playlist",
		ArgsUsage: "<playlist-id> <track-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			playlistID := strings.TrimSpace(cmd.Args().Get(0))
			trackID := strings.TrimSpace(cmd.Args().Get(1))
			if playlistID == "" || trackID == "" {
				return cli.Exit("playlist id and track id are required", 1)
			}

			if err := r.playlists.RemoveTrack(ctx, playlistID, trackID); err != nil {
				return err
			}

			r.printf("Removed track %s from playlist %s\n", trackID, playlistID)
			return nil
		},
	}
}

func playlistDeleteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a playlist; its tracks stay in the library",
		ArgsUsage: "<playlist-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			playlistID := strings.TrimSpace(cmd.Args().First())
			if playlistID == "" {
				return cli.Exit("playlist id is required", 1)
			}

			if err := r.playlists.Delete(ctx, playlistID); err != nil {
				if errors.Is(err, storage.ErrPlaylistNotFound) {
					return cli.Exit("playlist not found", 1)
				}
				return err
			}

			r.printf("Deleted playlist %s\n", playlistID)
			return nil
		},
	}
}

func playlistClearAllCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "clear-all",
		Usage: "Delete every playlist",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := r.setup(ctx, cmd); err != nil {
				return err
			}

			if err := r.playlists.ClearAll(ctx); err != nil {
				return err
			}

			r.printf("All playlists deleted\n")
			return nil
		},
	}
}
