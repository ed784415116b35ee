package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"starlight/internal/storage"
)

func (s *Store) SaveArtists(ctx context.Context, artists []storage.Artist) error {
	return s.inChunkedTx(ctx, len(artists), func(tx *sql.Tx, start int, end int) error {
		for _, artist := range artists[start:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO artists(id, name, sort_key, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					sort_key = excluded.sort_key,
					updated_at = excluded.updated_at
			`, artist.ID, artist.Name, artist.SortKey, artist.CreatedAt, artist.UpdatedAt); err != nil {
				return fmt.Errorf("upsert artist %s: %w", artist.ID, err)
			}
		}

		return nil
	})
}

func (s *Store) SaveAlbums(ctx context.Context, albums []storage.Album) error {
	return s.inChunkedTx(ctx, len(albums), func(tx *sql.Tx, start int, end int) error {
		for _, album := range albums[start:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO albums(id, artist_id, title, sort_key, year, artwork_uri, primary_color, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title,
					sort_key = excluded.sort_key,
					year = COALESCE(albums.year, excluded.year),
					artwork_uri = COALESCE(albums.artwork_uri, excluded.artwork_uri),
					primary_color = COALESCE(albums.primary_color, excluded.primary_color),
					updated_at = excluded.updated_at
			`,
				album.ID,
				album.ArtistID,
				album.Title,
				album.SortKey,
				nullableInt(album.Year),
				nullableString(album.ArtworkURI),
				nullableString(album.PrimaryColor),
				album.CreatedAt,
				album.UpdatedAt,
			); err != nil {
				return fmt.Errorf("upsert album %s: %w", album.ID, err)
			}
		}

		return nil
	})
}

func (s *Store) SaveTracks(ctx context.Context, tracks []storage.Track) error {
	return s.inChunkedTx(ctx, len(tracks), func(tx *sql.Tx, start int, end int) error {
		for _, track := range tracks[start:end] {
			genresJSON, err := marshalGenres(track.Genres)
			if err != nil {
				return fmt.Errorf("marshal genres for track %s: %w", track.ID, err)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tracks(
					id, album_id, artist_id, title,
					duration_ms, disc_number, track_number, bitrate, sample_rate, genres_json,
					file_uri, file_mtime, file_size, hash,
					is_deleted, created_at, updated_at
				)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					album_id = excluded.album_id,
					artist_id = excluded.artist_id,
					title = excluded.title,
					duration_ms = COALESCE(tracks.duration_ms, excluded.duration_ms),
					disc_number = COALESCE(tracks.disc_number, excluded.disc_number),
					track_number = COALESCE(tracks.track_number, excluded.track_number),
					bitrate = COALESCE(tracks.bitrate, excluded.bitrate),
					sample_rate = COALESCE(tracks.sample_rate, excluded.sample_rate),
					genres_json = COALESCE(tracks.genres_json, excluded.genres_json),
					file_uri = excluded.file_uri,
					file_mtime = excluded.file_mtime,
					file_size = excluded.file_size,
					hash = COALESCE(tracks.hash, excluded.hash),
					is_deleted = 0,
					updated_at = excluded.updated_at
			`,
				track.ID,
				track.AlbumID,
				track.ArtistID,
				track.Title,
				nullableInt(track.DurationMS),
				nullableInt(track.DiscNumber),
				nullableInt(track.TrackNo),
				nullableInt(track.Bitrate),
				nullableInt(track.SampleRate),
				genresJSON,
				track.FileURI,
				nullableInt64(track.FileMtime),
				nullableInt64(track.FileSize),
				nullableString(track.Hash),
				track.CreatedAt,
				track.UpdatedAt,
			); err != nil {
				return fmt.Errorf("upsert track %s: %w", track.ID, err)
			}
		}

		return nil
	})
}

func (s *Store) MarkTracksDeleted(ctx context.Context, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(trackIDs))
	args := make([]any, len(trackIDs))
	for i, id := range trackIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		"UPDATE tracks SET is_deleted = 1 WHERE id IN (%s)",
		strings.Join(placeholders, ","),
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark tracks deleted: %w", err)
	}

	return nil
}

func (s *Store) DeleteTrackPermanently(ctx context.Context, trackID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", trackID)
	if err != nil {
		return fmt.Errorf("delete track %s: %w", trackID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read deleted track count: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrTrackNotFound
	}

	return nil
}

func (s *Store) DeleteArtist(ctx context.Context, artistID string) error {
	// Albums and tracks cascade through the foreign keys.
	result, err := s.db.ExecContext(ctx, "DELETE FROM artists WHERE id = ?", artistID)
	if err != nil {
		return fmt.Errorf("delete artist %s: %w", artistID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read deleted artist count: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrArtistNotFound
	}

	return nil
}

func (s *Store) ClearLibrary(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear library tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"tracks", "albums", "artists"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear library tx: %w", err)
	}

	return nil
}

const snapshotColumns = `
	t.id, t.album_id, t.artist_id, t.title,
	t.duration_ms, t.disc_number, t.track_number, t.bitrate, t.sample_rate, t.genres_json,
	t.file_uri, t.file_mtime, t.file_size, t.hash,
	t.is_deleted, t.created_at, t.updated_at,
	ar.id, ar.name, ar.sort_key, ar.created_at, ar.updated_at,
	al.id, al.artist_id, al.title, al.sort_key, al.year, al.artwork_uri, al.primary_color, al.created_at, al.updated_at
`

func (s *Store) FetchSnapshot(ctx context.Context) ([]storage.LibraryTrack, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM tracks t
		JOIN artists ar ON ar.id = t.artist_id
		JOIN albums al ON al.id = t.album_id
		WHERE t.is_deleted = 0
	`, snapshotColumns))
	if err != nil {
		return nil, fmt.Errorf("fetch library snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make([]storage.LibraryTrack, 0)
	for rows.Next() {
		item, scanErr := scanLibraryTrack(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", scanErr)
		}
		snapshot = append(snapshot, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", rowsErr)
	}

	return snapshot, nil
}

func (s *Store) FindTrackByFileIdentity(ctx context.Context, fileURI string, mtime *int64) (*storage.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks t WHERE t.file_uri = ?"
	args := []any{fileURI}
	if mtime != nil {
		query += " AND t.file_mtime = ?"
		args = append(args, *mtime)
	}
	query += " LIMIT 1"

	track, err := s.queryTrack(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find track by file %q: %w", fileURI, err)
	}

	return track, nil
}

func (s *Store) FindTrackByTitleArtist(ctx context.Context, title string, artistName string) (*storage.Track, error) {
	// Normalize in Go: SQL TRIM only strips spaces, TrimSpace strips all
	// whitespace, and the dedup key must match across backends.
	track, err := s.queryTrack(ctx, `
		SELECT `+trackColumns+`
		FROM tracks t
		JOIN artists ar ON ar.id = t.artist_id
		WHERE t.is_deleted = 0
		  AND LOWER(TRIM(t.title)) = ?
		  AND LOWER(TRIM(ar.name)) = ?
		LIMIT 1
	`, strings.ToLower(strings.TrimSpace(title)), strings.ToLower(strings.TrimSpace(artistName)))
	if err != nil {
		return nil, fmt.Errorf("find track by title %q artist %q: %w", title, artistName, err)
	}

	return track, nil
}

func (s *Store) TrackExistsByTitleArtist(ctx context.Context, title string, artistName string) (bool, error) {
	track, err := s.FindTrackByTitleArtist(ctx, title, artistName)
	if err != nil {
		return false, err
	}

	return track != nil, nil
}

func (s *Store) UpdateTrackDuration(ctx context.Context, trackID string, durationMS int) error {
	result, err := s.db.ExecContext(
		ctx,
		"UPDATE tracks SET duration_ms = ? WHERE id = ?",
		durationMS,
		trackID,
	)
	if err != nil {
		return fmt.Errorf("update track duration %s: %w", trackID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read updated track count: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrTrackNotFound
	}

	return nil
}

// PatchTrackMetadata back-fills metadata fields the stored row is missing;
// fields the row already has are left untouched.
func (s *Store) PatchTrackMetadata(ctx context.Context, trackID string, patch storage.TrackPatch) error {
	if patch.IsZero() {
		return nil
	}

	genresJSON, err := marshalGenres(patch.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres patch for track %s: %w", trackID, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tracks SET
			duration_ms = COALESCE(duration_ms, ?),
			bitrate = COALESCE(bitrate, ?),
			sample_rate = COALESCE(sample_rate, ?),
			genres_json = COALESCE(genres_json, ?)
		WHERE id = ?
	`,
		nullableInt(patch.DurationMS),
		nullableInt(patch.Bitrate),
		nullableInt(patch.SampleRate),
		genresJSON,
		trackID,
	)
	if err != nil {
		return fmt.Errorf("patch track metadata %s: %w", trackID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read patched track count: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrTrackNotFound
	}

	if patch.ArtworkURI != nil {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE albums SET artwork_uri = COALESCE(artwork_uri, ?)
			WHERE id = (SELECT album_id FROM tracks WHERE id = ?)
		`, *patch.ArtworkURI, trackID); err != nil {
			return fmt.Errorf("patch album artwork for track %s: %w", trackID, err)
		}
	}

	return nil
}

const trackColumns = `
	t.id, t.album_id, t.artist_id, t.title,
	t.duration_ms, t.disc_number, t.track_number, t.bitrate, t.sample_rate, t.genres_json,
	t.file_uri, t.file_mtime, t.file_size, t.hash,
	t.is_deleted, t.created_at, t.updated_at
`

func (s *Store) queryTrack(ctx context.Context, query string, args ...any) (*storage.Track, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	track, err := scanTrack(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &track, nil
}

func scanTrack(scan func(dest ...any) error) (storage.Track, error) {
	var track storage.Track
	var durationMS, discNumber, trackNumber, bitrate, sampleRate sql.NullInt64
	var genresJSON, hash sql.NullString
	var fileMtime, fileSize sql.NullInt64
	var isDeleted int

	if err := scan(
		&track.ID, &track.AlbumID, &track.ArtistID, &track.Title,
		&durationMS, &discNumber, &trackNumber, &bitrate, &sampleRate, &genresJSON,
		&track.FileURI, &fileMtime, &fileSize, &hash,
		&isDeleted, &track.CreatedAt, &track.UpdatedAt,
	); err != nil {
		return storage.Track{}, err
	}

	track.DurationMS = intPointer(durationMS)
	track.DiscNumber = intPointer(discNumber)
	track.TrackNo = intPointer(trackNumber)
	track.Bitrate = intPointer(bitrate)
	track.SampleRate = intPointer(sampleRate)
	track.FileMtime = int64Pointer(fileMtime)
	track.FileSize = int64Pointer(fileSize)
	track.Hash = stringPointer(hash)
	track.IsDeleted = isDeleted == 1

	genres, err := unmarshalGenres(genresJSON)
	if err != nil {
		return storage.Track{}, err
	}
	track.Genres = genres

	return track, nil
}

func scanLibraryTrack(rows *sql.Rows) (storage.LibraryTrack, error) {
	var item storage.LibraryTrack
	var durationMS, discNumber, trackNumber, bitrate, sampleRate sql.NullInt64
	var genresJSON, hash sql.NullString
	var fileMtime, fileSize sql.NullInt64
	var isDeleted int
	var albumYear sql.NullInt64
	var albumArtwork, albumColor sql.NullString

	if err := rows.Scan(
		&item.Track.ID, &item.Track.AlbumID, &item.Track.ArtistID, &item.Track.Title,
		&durationMS, &discNumber, &trackNumber, &bitrate, &sampleRate, &genresJSON,
		&item.Track.FileURI, &fileMtime, &fileSize, &hash,
		&isDeleted, &item.Track.CreatedAt, &item.Track.UpdatedAt,
		&item.Artist.ID, &item.Artist.Name, &item.Artist.SortKey, &item.Artist.CreatedAt, &item.Artist.UpdatedAt,
		&item.Album.ID, &item.Album.ArtistID, &item.Album.Title, &item.Album.SortKey,
		&albumYear, &albumArtwork, &albumColor, &item.Album.CreatedAt, &item.Album.UpdatedAt,
	); err != nil {
		return storage.LibraryTrack{}, err
	}

	item.Track.DurationMS = intPointer(durationMS)
	item.Track.DiscNumber = intPointer(discNumber)
	item.Track.TrackNo = intPointer(trackNumber)
	item.Track.Bitrate = intPointer(bitrate)
	item.Track.SampleRate = intPointer(sampleRate)
	item.Track.FileMtime = int64Pointer(fileMtime)
	item.Track.FileSize = int64Pointer(fileSize)
	item.Track.Hash = stringPointer(hash)
	item.Track.IsDeleted = isDeleted == 1
	item.Album.Year = intPointer(albumYear)
	item.Album.ArtworkURI = stringPointer(albumArtwork)
	item.Album.PrimaryColor = stringPointer(albumColor)

	genres, err := unmarshalGenres(genresJSON)
	if err != nil {
		return storage.LibraryTrack{}, err
	}
	item.Track.Genres = genres

	return item, nil
}

func marshalGenres(genres []string) (any, error) {
	if len(genres) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(genres)
	if err != nil {
		return nil, err
	}

	return string(body), nil
}

func unmarshalGenres(value sql.NullString) ([]string, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}

	var genres []string
	if err := json.Unmarshal([]byte(value.String), &genres); err != nil {
		return nil, fmt.Errorf("unmarshal genres: %w", err)
	}

	return genres, nil
}
