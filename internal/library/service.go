// Package library ingests track metadata into the catalog and serves the
// in-memory snapshot the rest of the app reads from.
package library

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"starlight/internal/storage"
)

const EventLibraryChanged = "library:changed"

// importBatchSize bounds how many records are deduplicated and written per
// pass so a large import never starves other storage users.
const importBatchSize = 20

const interBatchYield = 5 * time.Millisecond

type Emitter func(eventName string, payload any)

// ImportRecord is one file's extracted metadata, ready for ingestion. A
// record that failed extraction carries Err and is skipped with a log line
// instead of aborting the whole import.
type ImportRecord struct {
	FileURI    string
	FileName   string
	FileSize   int64
	FileMtime  int64
	Title      string
	ArtistName string
	AlbumTitle string
	TrackNo    *int
	DiscNumber *int
	Year       *int
	DurationMS *int
	Bitrate    *int
	SampleRate *int
	Genres     []string
	ArtworkURI *string
	Err        error
}

// Summary reports the outcome of one import pass.
type Summary struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

type Service struct {
	mu       sync.RWMutex
	store    storage.Store
	logger   *log.Logger
	emit     Emitter
	snapshot []storage.LibraryTrack
}

func NewService(store storage.Store, logger *log.Logger) *Service {
	return &Service{
		store:    store,
		logger:   logger,
		snapshot: make([]storage.LibraryTrack, 0),
	}
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

// Hydrate loads the snapshot from storage. Call once at startup and after
// every mutation that bypasses this service.
func (s *Service) Hydrate(ctx context.Context) error {
	snapshot, err := s.store.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("hydrate library: %w", err)
	}

	s.mu.Lock()
	s.snapshot = snapshot
	emitter := s.emit
	s.mu.Unlock()

	if emitter != nil {
		emitter(EventLibraryChanged, snapshot)
	}

	return nil
}

// Snapshot returns the hydrated library. The slice is shared; callers must
// not mutate it.
func (s *Service) Snapshot() []storage.LibraryTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Service) TrackByID(trackID string) *storage.LibraryTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.snapshot {
		if s.snapshot[i].Track.ID == trackID {
			item := s.snapshot[i]
			return &item
		}
	}

	return nil
}

// Import ingests records in batches. A record whose title+artist already
// exists in the catalog is counted as skipped, but its metadata still
// back-fills fields the stored track is missing.
func (s *Service) Import(ctx context.Context, records []ImportRecord) (Summary, error) {
	summary := Summary{Total: len(records)}

	for start := 0; start < len(records); start += importBatchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		end := start + importBatchSize
		if end > len(records) {
			end = len(records)
		}

		added, skipped, err := s.importBatch(ctx, records[start:end])
		if err != nil {
			return summary, err
		}
		summary.Added += added
		summary.Skipped += skipped

		if end < len(records) {
			time.Sleep(interBatchYield)
		}
	}

	if err := s.Hydrate(ctx); err != nil {
		return summary, err
	}

	s.logger.Info("library import finished",
		"added", summary.Added,
		"skipped", summary.Skipped,
		"total", summary.Total,
	)

	return summary, nil
}

func (s *Service) importBatch(ctx context.Context, records []ImportRecord) (int, int, error) {
	now := nowRFC3339()

	// Artists and albums repeat heavily inside a batch; build each one once.
	artists := make(map[string]storage.Artist)
	albums := make(map[string]storage.Album)
	tracks := make([]storage.Track, 0, len(records))

	added := 0
	skipped := 0

	for _, record := range records {
		if record.Err != nil {
			s.logger.Warn("skipping unreadable file", "file", record.FileURI, "err", record.Err)
			skipped++
			continue
		}

		title := strings.TrimSpace(record.Title)
		artistName := strings.TrimSpace(record.ArtistName)
		if title == "" || artistName == "" {
			s.logger.Warn("skipping file without title or artist", "file", record.FileURI)
			skipped++
			continue
		}

		existing, err := s.store.FindTrackByTitleArtist(ctx, title, artistName)
		if err != nil {
			return added, skipped, err
		}
		if existing != nil {
			skipped++
			if err := s.backfillExisting(ctx, existing.ID, record); err != nil {
				return added, skipped, err
			}
			continue
		}

		artistID := deterministicID("artist", strings.ToLower(artistName))
		if _, seen := artists[artistID]; !seen {
			artists[artistID] = storage.Artist{
				ID:        artistID,
				Name:      artistName,
				SortKey:   sortKey(artistName),
				CreatedAt: now,
				UpdatedAt: now,
			}
		}

		albumTitle := strings.TrimSpace(record.AlbumTitle)
		if albumTitle == "" {
			albumTitle = "Unknown Album"
		}
		albumID := deterministicID("album", artistID+"|"+strings.ToLower(albumTitle))
		if _, seen := albums[albumID]; !seen {
			albums[albumID] = storage.Album{
				ID:         albumID,
				ArtistID:   artistID,
				Title:      albumTitle,
				SortKey:    sortKey(albumTitle),
				Year:       record.Year,
				ArtworkURI: record.ArtworkURI,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		}

		mtime := record.FileMtime
		size := record.FileSize
		tracks = append(tracks, storage.Track{
			ID:         deterministicID("track", record.FileName+":"+strconv.FormatInt(record.FileSize, 10)),
			AlbumID:    albumID,
			ArtistID:   artistID,
			Title:      title,
			DurationMS: record.DurationMS,
			DiscNumber: record.DiscNumber,
			TrackNo:    record.TrackNo,
			Bitrate:    record.Bitrate,
			SampleRate: record.SampleRate,
			Genres:     record.Genres,
			FileURI:    record.FileURI,
			FileMtime:  &mtime,
			FileSize:   &size,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		added++
	}

	if len(tracks) == 0 {
		return added, skipped, nil
	}

	// Parents first so every track references rows that already exist.
	if err := s.store.SaveArtists(ctx, collectArtists(artists)); err != nil {
		return added, skipped, err
	}
	if err := s.store.SaveAlbums(ctx, collectAlbums(albums)); err != nil {
		return added, skipped, err
	}
	if err := s.store.SaveTracks(ctx, tracks); err != nil {
		return added, skipped, err
	}

	return added, skipped, nil
}

func (s *Service) backfillExisting(ctx context.Context, trackID string, record ImportRecord) error {
	patch := storage.TrackPatch{
		DurationMS: record.DurationMS,
		Bitrate:    record.Bitrate,
		SampleRate: record.SampleRate,
		Genres:     record.Genres,
		ArtworkURI: record.ArtworkURI,
	}
	if patch.IsZero() {
		return nil
	}

	if err := s.store.PatchTrackMetadata(ctx, trackID, patch); err != nil {
		return fmt.Errorf("backfill track %s: %w", trackID, err)
	}

	return nil
}

// DeleteTrack tombstones a track. The file on disk is untouched and a later
// import of the same file resurrects the row.
func (s *Service) DeleteTrack(ctx context.Context, trackID string) error {
	if err := s.store.MarkTracksDeleted(ctx, []string{trackID}); err != nil {
		return err
	}

	return s.Hydrate(ctx)
}

func (s *Service) DeleteTrackPermanently(ctx context.Context, trackID string) error {
	if err := s.store.DeleteTrackPermanently(ctx, trackID); err != nil {
		return err
	}

	return s.Hydrate(ctx)
}

func (s *Service) DeleteArtist(ctx context.Context, artistID string) error {
	if err := s.store.DeleteArtist(ctx, artistID); err != nil {
		return err
	}

	return s.Hydrate(ctx)
}

func (s *Service) ClearLibrary(ctx context.Context) error {
	if err := s.store.ClearLibrary(ctx); err != nil {
		return err
	}

	return s.Hydrate(ctx)
}

// UpdateTrackDuration records a duration the playback engine learned at load
// time for a track whose tags lacked one.
func (s *Service) UpdateTrackDuration(ctx context.Context, trackID string, durationMS int) error {
	if err := s.store.UpdateTrackDuration(ctx, trackID, durationMS); err != nil {
		return err
	}

	return s.Hydrate(ctx)
}

// deterministicID derives a stable id from the entity's identity so repeated
// imports of the same file or name converge on the same row.
func deterministicID(kind string, identity string) string {
	hasher := fnv.New64a()
	hasher.Write([]byte(kind))
	hasher.Write([]byte{0})
	hasher.Write([]byte(identity))
	return strconv.FormatUint(hasher.Sum64(), 36)
}

func sortKey(value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	for _, prefix := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimSpace(key[len(prefix):])
		}
	}
	return key
}

func collectArtists(artists map[string]storage.Artist) []storage.Artist {
	out := make([]storage.Artist, 0, len(artists))
	for _, artist := range artists {
		out = append(out, artist)
	}
	return out
}

func collectAlbums(albums map[string]storage.Album) []storage.Album {
	out := make([]storage.Album, 0, len(albums))
	for _, album := range albums {
		out = append(out, album)
	}
	return out
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
