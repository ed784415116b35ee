package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"starlight/internal/storage"
	"starlight/internal/storage/kv"
	"starlight/internal/storage/sqlite"
)

type namedStore struct {
	name  string
	store storage.Store
}

func openStores(t *testing.T) []namedStore {
	t.Helper()

	sqliteStore, err := sqlite.Bootstrap(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("bootstrap sqlite store: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	kvStore, err := kv.Open(filepath.Join(t.TempDir(), "kvstore"))
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { kvStore.Close() })

	return []namedStore{
		{name: "sqlite", store: sqliteStore},
		{name: "pebble", store: kvStore},
	}
}

func seedTrack(t *testing.T, store storage.Store, trackID string, title string) {
	t.Helper()
	ctx := context.Background()

	err := store.SaveArtists(ctx, []storage.Artist{{
		ID: "artist-1", Name: "The Owls", SortKey: "owls",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}})
	if err != nil {
		t.Fatalf("save artist: %v", err)
	}

	err = store.SaveAlbums(ctx, []storage.Album{{
		ID: "album-1", ArtistID: "artist-1", Title: "Night Flights", SortKey: "night flights",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}})
	if err != nil {
		t.Fatalf("save album: %v", err)
	}

	duration := 180000
	err = store.SaveTracks(ctx, []storage.Track{{
		ID: trackID, AlbumID: "album-1", ArtistID: "artist-1", Title: title,
		DurationMS: &duration,
		FileURI:    "/music/owls/" + trackID + ".flac",
		CreatedAt:  "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}})
	if err != nil {
		t.Fatalf("save track: %v", err)
	}
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")

			err := store.SaveTracks(ctx, []storage.Track{{
				ID: "track-1", AlbumID: "album-1", ArtistID: "artist-1", Title: "Glass Wings",
				FileURI:   "/music/owls/track-1.flac",
				CreatedAt: "2026-02-02T00:00:00Z", UpdatedAt: "2026-02-02T00:00:00Z",
			}})
			if err != nil {
				t.Fatalf("re-save track: %v", err)
			}

			track, err := store.FindTrackByTitleArtist(ctx, "Glass Wings", "The Owls")
			if err != nil {
				t.Fatalf("find track: %v", err)
			}
			if track == nil {
				t.Fatalf("expected track after upsert")
			}
			if track.CreatedAt != "2026-01-01T00:00:00Z" {
				t.Fatalf("expected original created_at, got %s", track.CreatedAt)
			}
			if track.UpdatedAt != "2026-02-02T00:00:00Z" {
				t.Fatalf("expected refreshed updated_at, got %s", track.UpdatedAt)
			}
			if track.DurationMS == nil || *track.DurationMS != 180000 {
				t.Fatalf("expected duration to survive an upsert without one")
			}
		})
	}
}

func TestSoftDeleteHidesFromSnapshotAndDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")

			if err := store.MarkTracksDeleted(ctx, []string{"track-1"}); err != nil {
				t.Fatalf("mark deleted: %v", err)
			}

			snapshot, err := store.FetchSnapshot(ctx)
			if err != nil {
				t.Fatalf("fetch snapshot: %v", err)
			}
			if len(snapshot) != 0 {
				t.Fatalf("expected empty snapshot, got %d rows", len(snapshot))
			}

			exists, err := store.TrackExistsByTitleArtist(ctx, "Glass Wings", "The Owls")
			if err != nil {
				t.Fatalf("dedup check: %v", err)
			}
			if exists {
				t.Fatalf("tombstoned track must not participate in dedup")
			}

			// Re-importing the same file resurrects the row.
			seedTrack(t, store, "track-1", "Glass Wings")
			snapshot, err = store.FetchSnapshot(ctx)
			if err != nil {
				t.Fatalf("fetch snapshot after resurrect: %v", err)
			}
			if len(snapshot) != 1 {
				t.Fatalf("expected resurrected track in snapshot, got %d rows", len(snapshot))
			}
		})
	}
}

func TestTitleArtistDedupIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")

			exists, err := store.TrackExistsByTitleArtist(ctx, "  glass wings ", "THE OWLS")
			if err != nil {
				t.Fatalf("dedup check: %v", err)
			}
			if !exists {
				t.Fatalf("expected case-insensitive match on title and artist")
			}

			// All whitespace must normalize away, not just spaces.
			exists, err = store.TrackExistsByTitleArtist(ctx, "\tGlass Wings\t", "\tThe Owls ")
			if err != nil {
				t.Fatalf("padded dedup check: %v", err)
			}
			if !exists {
				t.Fatalf("expected tab-padded input to match")
			}
		})
	}
}

func TestRetagDropsStaleDedupKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Old Title")

			// Same file, same id, new title after a retag.
			duration := 180000
			err := store.SaveTracks(ctx, []storage.Track{{
				ID: "track-1", AlbumID: "album-1", ArtistID: "artist-1", Title: "New Title",
				DurationMS: &duration,
				FileURI:    "/music/owls/track-1.flac",
				CreatedAt:  "2026-02-02T00:00:00Z", UpdatedAt: "2026-02-02T00:00:00Z",
			}})
			if err != nil {
				t.Fatalf("re-save retagged track: %v", err)
			}

			exists, err := store.TrackExistsByTitleArtist(ctx, "Old Title", "The Owls")
			if err != nil {
				t.Fatalf("dedup check on the old title: %v", err)
			}
			if exists {
				t.Fatalf("old title must not dedup against the retagged track")
			}

			track, err := store.FindTrackByTitleArtist(ctx, "New Title", "The Owls")
			if err != nil {
				t.Fatalf("find by new title: %v", err)
			}
			if track == nil || track.ID != "track-1" {
				t.Fatalf("expected the retagged track under its new title, got %+v", track)
			}
		})
	}
}

func TestDeleteArtistCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")
			seedTrack(t, store, "track-2", "Paper Moons")

			if err := store.DeleteArtist(ctx, "artist-1"); err != nil {
				t.Fatalf("delete artist: %v", err)
			}

			snapshot, err := store.FetchSnapshot(ctx)
			if err != nil {
				t.Fatalf("fetch snapshot: %v", err)
			}
			if len(snapshot) != 0 {
				t.Fatalf("expected cascade to remove tracks, got %d rows", len(snapshot))
			}

			if err := store.DeleteArtist(ctx, "artist-1"); !errors.Is(err, storage.ErrArtistNotFound) {
				t.Fatalf("expected ErrArtistNotFound, got %v", err)
			}
		})
	}
}

func TestClearLibrary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")

			if err := store.ClearLibrary(ctx); err != nil {
				t.Fatalf("clear library: %v", err)
			}

			snapshot, err := store.FetchSnapshot(ctx)
			if err != nil {
				t.Fatalf("fetch snapshot: %v", err)
			}
			if len(snapshot) != 0 {
				t.Fatalf("expected empty library, got %d rows", len(snapshot))
			}
		})
	}
}

func TestFindTrackByFileIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")

			track, err := store.FindTrackByFileIdentity(ctx, "/music/owls/track-1.flac", nil)
			if err != nil {
				t.Fatalf("find by file: %v", err)
			}
			if track == nil || track.ID != "track-1" {
				t.Fatalf("expected track-1, got %+v", track)
			}

			missing, err := store.FindTrackByFileIdentity(ctx, "/music/other.flac", nil)
			if err != nil {
				t.Fatalf("find missing file: %v", err)
			}
			if missing != nil {
				t.Fatalf("expected nil for unknown file")
			}
		})
	}
}

func TestPatchTrackMetadataOnlyFillsMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store
			seedTrack(t, store, "track-1", "Glass Wings")

			duration := 999999
			bitrate := 320
			err := store.PatchTrackMetadata(ctx, "track-1", storage.TrackPatch{
				DurationMS: &duration,
				Bitrate:    &bitrate,
				Genres:     []string{"Dream Pop"},
			})
			if err != nil {
				t.Fatalf("patch track: %v", err)
			}

			track, err := store.FindTrackByTitleArtist(ctx, "Glass Wings", "The Owls")
			if err != nil {
				t.Fatalf("find track: %v", err)
			}
			if track.DurationMS == nil || *track.DurationMS != 180000 {
				t.Fatalf("patch must not overwrite an existing duration")
			}
			if track.Bitrate == nil || *track.Bitrate != 320 {
				t.Fatalf("patch should fill the missing bitrate")
			}
			if len(track.Genres) != 1 || track.Genres[0] != "Dream Pop" {
				t.Fatalf("patch should fill missing genres, got %v", track.Genres)
			}
		})
	}
}

func TestPlaybackStateSingleton(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, backend := range openStores(t) {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.store

			state, err := store.GetPlaybackState(ctx)
			if err != nil {
				t.Fatalf("get empty state: %v", err)
			}
			if state != nil {
				t.Fatalf("expected nil state before first save")
			}

			seedTrack(t, store, "track-1", "Glass Wings")
			trackID := "track-1"
			first := storage.PlaybackState{
				ActiveTrackID: &trackID, PositionMS: 1000, Volume: 0.5,
				UpdatedAt: "2026-01-01T00:00:00Z",
			}
			if err := store.SavePlaybackState(ctx, first); err != nil {
				t.Fatalf("save state: %v", err)
			}

			second := storage.PlaybackState{
				ActiveTrackID: &trackID, PositionMS: 42000, Volume: 0.8, IsMuted: true,
				UpdatedAt: "2026-01-01T00:01:00Z",
			}
			if err := store.SavePlaybackState(ctx, second); err != nil {
				t.Fatalf("overwrite state: %v", err)
			}

			loaded, err := store.GetPlaybackState(ctx)
			if err != nil {
				t.Fatalf("get state: %v", err)
			}
			if loaded == nil {
				t.Fatalf("expected persisted state")
			}
			if loaded.PositionMS != 42000 || loaded.Volume != 0.8 || !loaded.IsMuted {
				t.Fatalf("expected the overwrite to win, got %+v", loaded)
			}
		})
	}
}
