package player

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"starlight/internal/library"
	"starlight/internal/storage"
	"starlight/internal/storage/sqlite"
)

type fakeTransport struct {
	mu       sync.Mutex
	loaded   string
	playing  bool
	position int
	duration *int
	volume   int
	failLoad bool
	onEOF    func()
}

func (f *fakeTransport) Load(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return io.ErrUnexpectedEOF
	}
	f.loaded = path
	f.position = 0
	return nil
}

func (f *fakeTransport) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	return nil
}

func (f *fakeTransport) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.loaded = ""
	f.position = 0
	return nil
}

func (f *fakeTransport) Seek(positionMS int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = positionMS
	return nil
}

func (f *fakeTransport) SetVolume(volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
	return nil
}

func (f *fakeTransport) Playing() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing, nil
}

func (f *fakeTransport) PositionMS() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

func (f *fakeTransport) DurationMS() (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, nil
}

func (f *fakeTransport) SetOnEOF(callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEOF = callback
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) setPosition(positionMS int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = positionMS
}

func (f *fakeTransport) setPlaying(playing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = playing
}

func (f *fakeTransport) currentVolume() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newPlayerForTest(t *testing.T, trackTitles ...string) (*Service, *fakeTransport, *fakeClock, storage.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Bootstrap(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard)

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

	duration := 300000
	tracks := make([]storage.Track, 0, len(trackTitles))
	for i, title := range trackTitles {
		tracks = append(tracks, storage.Track{
			ID: trackID(i), AlbumID: "album-1", ArtistID: "artist-1", Title: title,
			DurationMS: &duration,
			FileURI:    "/music/" + trackID(i) + ".flac",
			CreatedAt:  "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
		})
	}
	if err := store.SaveTracks(ctx, tracks); err != nil {
		t.Fatalf("save tracks: %v", err)
	}

	libraryService := library.NewService(store, logger)
	if err := libraryService.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate library: %v", err)
	}

	transport := &fakeTransport{duration: &duration}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}

	service := NewService(transport, libraryService, store, logger)
	service.now = clock.Now
	t.Cleanup(func() { service.Close() })

	return service, transport, clock, store
}

func trackID(index int) string {
	return string(rune('a'+index)) + "-track"
}

func currentTrackID(t *testing.T, service *Service) string {
	t.Helper()

	state := service.GetState()
	if state.CurrentTrack == nil {
		t.Fatalf("expected a current track")
	}
	return state.CurrentTrack.Track.ID
}

func TestPollDiscardsSamplesInsideCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, transport, clock, _ := newPlayerForTest(t, "Glass Wings")

	if err := service.PlayTrack(ctx, trackID(0)); err != nil {
		t.Fatalf("play track: %v", err)
	}

	clock.Advance(time.Second)
	if err := service.Seek(ctx, 5000); err != nil {
		t.Fatalf("seek: %v", err)
	}

	// A stale reading taken before the seek landed must not win.
	transport.setPosition(3000)
	clock.Advance(100 * time.Millisecond)
	service.pollTick(ctx)

	if got := service.GetState().PositionMS; got != 5000 {
		t.Fatalf("expected cooldown to keep position 5000, got %d", got)
	}

	// Past the cooldown the transport is trusted again.
	transport.setPosition(6000)
	clock.Advance(500 * time.Millisecond)
	service.pollTick(ctx)

	if got := service.GetState().PositionMS; got != 6000 {
		t.Fatalf("expected poll to apply 6000, got %d", got)
	}
}

func TestPollIgnoresSubThresholdDrift(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, transport, clock, _ := newPlayerForTest(t, "Glass Wings")

	if err := service.PlayTrack(ctx, trackID(0)); err != nil {
		t.Fatalf("play track: %v", err)
	}
	clock.Advance(time.Second)
	if err := service.Seek(ctx, 5000); err != nil {
		t.Fatalf("seek: %v", err)
	}
	clock.Advance(time.Second)

	transport.setPosition(5100)
	service.pollTick(ctx)

	if got := service.GetState().PositionMS; got != 5000 {
		t.Fatalf("expected sub-threshold drift to be ignored, got %d", got)
	}
}

func TestSkipNextWrapsAround(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, _, _, _ := newPlayerForTest(t, "One", "Two", "Three")

	if err := service.PlayTrack(ctx, trackID(2)); err != nil {
		t.Fatalf("play last track: %v", err)
	}

	if err := service.SkipNext(ctx); err != nil {
		t.Fatalf("skip next: %v", err)
	}

	if got := currentTrackID(t, service); got != trackID(0) {
		t.Fatalf("expected wrap to the first track, got %s", got)
	}
}

func TestSkipPreviousRestartsOrMovesBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, _, clock, _ := newPlayerForTest(t, "One", "Two", "Three")

	if err := service.PlayTrack(ctx, trackID(0)); err != nil {
		t.Fatalf("play track: %v", err)
	}

	// Deep into the track, skipping back restarts it.
	clock.Advance(time.Second)
	if err := service.Seek(ctx, 30000); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := service.SkipPrevious(ctx); err != nil {
		t.Fatalf("skip previous: %v", err)
	}
	if got := currentTrackID(t, service); got != trackID(0) {
		t.Fatalf("expected restart of the same track, got %s", got)
	}
	if got := service.GetState().PositionMS; got != 0 {
		t.Fatalf("expected position reset, got %d", got)
	}

	// Near the start, skipping back wraps to the last track.
	if err := service.SkipPrevious(ctx); err != nil {
		t.Fatalf("skip previous near start: %v", err)
	}
	if got := currentTrackID(t, service); got != trackID(2) {
		t.Fatalf("expected wrap to the last track, got %s", got)
	}
}

func TestLoadFailureClearsActiveTrack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, transport, _, store := newPlayerForTest(t, "Glass Wings")

	transport.failLoad = true
	if err := service.PlayTrack(ctx, trackID(0)); err != nil {
		t.Fatalf("expected load failure to be tolerated, got %v", err)
	}

	state := service.GetState()
	if state.Status != StatusStopped || state.CurrentTrack != nil {
		t.Fatalf("expected stopped state without a track, got %+v", state)
	}

	persisted, err := store.GetPlaybackState(ctx)
	if err != nil {
		t.Fatalf("get playback state: %v", err)
	}
	if persisted == nil || persisted.ActiveTrackID != nil {
		t.Fatalf("expected persisted state without an active track, got %+v", persisted)
	}
}

func TestStatePersistsAcrossServices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, transport, clock, store := newPlayerForTest(t, "Glass Wings")

	if err := service.PlayTrack(ctx, trackID(0)); err != nil {
		t.Fatalf("play track: %v", err)
	}
	clock.Advance(time.Second)
	if err := service.SetVolume(ctx, 0.4); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	clock.Advance(time.Second)
	if err := service.Seek(ctx, 42000); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := service.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	logger := log.New(io.Discard)
	libraryService := library.NewService(store, logger)
	if err := libraryService.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	restored := NewService(transport, libraryService, store, logger)
	defer restored.Close()
	// Persisted state wins over the configured initial volume.
	if err := restored.RestoreState(ctx, 0.9); err != nil {
		t.Fatalf("restore state: %v", err)
	}

	state := restored.GetState()
	if state.Status != StatusPaused {
		t.Fatalf("expected paused after restore, got %s", state.Status)
	}
	if state.PositionMS != 42000 {
		t.Fatalf("expected restored position 42000, got %d", state.PositionMS)
	}
	if state.Volume != 0.4 {
		t.Fatalf("expected restored volume 0.4, got %v", state.Volume)
	}
	if state.CurrentTrack == nil || state.CurrentTrack.Track.ID != trackID(0) {
		t.Fatalf("expected restored track, got %+v", state.CurrentTrack)
	}
}

func TestRestoreAppliesInitialVolumeWithoutPersistedState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, transport, _, _ := newPlayerForTest(t, "Glass Wings")

	if err := service.RestoreState(ctx, 0.3); err != nil {
		t.Fatalf("restore state: %v", err)
	}

	if got := service.GetState().Volume; got != 0.3 {
		t.Fatalf("expected initial volume 0.3, got %v", got)
	}
	if got := transport.currentVolume(); got != 30 {
		t.Fatalf("expected transport volume 30, got %d", got)
	}
}

func TestPollAdoptsTransportPauseFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	service, transport, clock, _ := newPlayerForTest(t, "Glass Wings")

	if err := service.PlayTrack(ctx, trackID(0)); err != nil {
		t.Fatalf("play track: %v", err)
	}

	// The transport pauses behind the service's back.
	transport.setPlaying(false)

	// Inside the cooldown the sample is still discarded.
	clock.Advance(100 * time.Millisecond)
	service.pollTick(ctx)
	if got := service.GetState().Status; got != StatusPlaying {
		t.Fatalf("expected cooldown to keep status playing, got %s", got)
	}

	clock.Advance(time.Second)
	service.pollTick(ctx)
	if got := service.GetState().Status; got != StatusPaused {
		t.Fatalf("expected poll to adopt the paused transport, got %s", got)
	}
}

func TestDurationBackfillFromTransport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := sqlite.Bootstrap(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("bootstrap store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard)
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
	// No duration: the file carried no usable tags.
	if err := store.SaveTracks(ctx, []storage.Track{{
		ID: "tagless", AlbumID: "album-1", ArtistID: "artist-1", Title: "Glass Wings",
		FileURI:   "/music/tagless.flac",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}}); err != nil {
		t.Fatalf("save track: %v", err)
	}

	libraryService := library.NewService(store, logger)
	if err := libraryService.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate library: %v", err)
	}

	learned := 240000
	transport := &fakeTransport{duration: &learned}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}

	service := NewService(transport, libraryService, store, logger)
	service.now = clock.Now
	t.Cleanup(func() { service.Close() })

	if err := service.PlayTrack(ctx, "tagless"); err != nil {
		t.Fatalf("play track: %v", err)
	}

	transport.setPosition(1000)
	clock.Advance(time.Second)
	service.pollTick(ctx)

	track := libraryService.TrackByID("tagless")
	if track == nil {
		t.Fatalf("expected track in snapshot")
	}
	if track.Track.DurationMS == nil || *track.Track.DurationMS != 240000 {
		t.Fatalf("expected duration learned from transport, got %+v", track.Track.DurationMS)
	}
}
