package playlist

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"starlight/internal/storage"
	"starlight/internal/storage/sqlite"
)

func newServiceForTest(t *testing.T) (*Service, storage.Store) {
	t.Helper()

	store, err := sqlite.Bootstrap(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewService(store, log.New(io.Discard)), store
}

func insertTrackForTest(t *testing.T, store storage.Store, trackID string, title string) {
	t.Helper()
	ctx := context.Background()

	if err := store.SaveArtists(ctx, []storage.Artist{{
		ID: "artist-1", Name: "The Owls", SortKey: "owls",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}}); err != nil {
		t.Fatalf("save artist: %v", err)
	}
	if err := store.SaveAlbums(ctx, []storage.Album{{
		ID: "album-1", ArtistID: "artist-1", Title: "Night Flights", SortKey: "night flights",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}}); err != nil {
		t.Fatalf("save album: %v", err)
	}
	if err := store.SaveTracks(ctx, []storage.Track{{
		ID: trackID, AlbumID: "album-1", ArtistID: "artist-1", Title: title,
		FileURI:   "/music/" + trackID + ".flac",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}}); err != nil {
		t.Fatalf("save track: %v", err)
	}
}

func TestCreateRequiresName(t *testing.T) {
	t.Parallel()
	service, _ := newServiceForTest(t)

	if _, err := service.Create(context.Background(), "   ", nil); err == nil {
		t.Fatalf("expected an error for a blank name")
	}
}

func TestAddTrackAssignsSequentialPositions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, store := newServiceForTest(t)

	insertTrackForTest(t, store, "track-1", "Glass Wings")
	insertTrackForTest(t, store, "track-2", "Paper Moons")

	created, err := service.Create(ctx, "Roadtrip", nil)
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	if err := service.AddTrack(ctx, created.ID, "track-1"); err != nil {
		t.Fatalf("add first track: %v", err)
	}
	if err := service.AddTrack(ctx, created.ID, "track-2"); err != nil {
		t.Fatalf("add second track: %v", err)
	}

	detail, err := service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	if len(detail.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(detail.Entries))
	}
	if detail.Entries[0].Position != 1 || detail.Entries[1].Position != 2 {
		t.Fatalf("expected positions 1 and 2, got %d and %d",
			detail.Entries[0].Position, detail.Entries[1].Position)
	}
}

func TestAddTrackRejectsDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, store := newServiceForTest(t)

	insertTrackForTest(t, store, "track-1", "Glass Wings")

	created, err := service.Create(ctx, "Roadtrip", nil)
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	if err := service.AddTrack(ctx, created.ID, "track-1"); err != nil {
		t.Fatalf("add track: %v", err)
	}
	if err := service.AddTrack(ctx, created.ID, "track-1"); !errors.Is(err, storage.ErrDuplicateMembership) {
		t.Fatalf("expected ErrDuplicateMembership, got %v", err)
	}
}

func TestUpdateRenamesPlaylist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, _ := newServiceForTest(t)

	created, err := service.Create(ctx, "Roadtrip", nil)
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	name := "Late Nights"
	if err := service.Update(ctx, created.ID, storage.PlaylistPatch{Name: &name}); err != nil {
		t.Fatalf("rename playlist: %v", err)
	}

	detail, err := service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	if detail.Name != "Late Nights" {
		t.Fatalf("expected renamed playlist, got %q", detail.Name)
	}

	if err := service.Update(ctx, "missing", storage.PlaylistPatch{Name: &name}); !errors.Is(err, storage.ErrPlaylistNotFound) {
		t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
	}
}
