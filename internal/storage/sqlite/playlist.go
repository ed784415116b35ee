package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"starlight/internal/storage"
)

func (s *Store) CreatePlaylist(ctx context.Context, playlist storage.Playlist) error {
	isSystem := 0
	if playlist.IsSystemPlaylist {
		isSystem = 1
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO playlists(id, name, description, cover_image_uri, is_system_playlist, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		playlist.ID,
		playlist.Name,
		nullableString(playlist.Description),
		nullableString(playlist.CoverImageURI),
		isSystem,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert playlist %s: %w", playlist.ID, err)
	}

	return nil
}

func (s *Store) UpdatePlaylist(ctx context.Context, playlistID string, patch storage.PlaylistPatch) error {
	setClauses := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if patch.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		setClauses = append(setClauses, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.CoverImageURI != nil {
		setClauses = append(setClauses, "cover_image_uri = ?")
		args = append(args, *patch.CoverImageURI)
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, nowRFC3339(), playlistID)

	result, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf("UPDATE playlists SET %s WHERE id = ?", strings.Join(setClauses, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update playlist %s: %w", playlistID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read updated playlist count: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrPlaylistNotFound
	}

	return nil
}

func (s *Store) DeletePlaylist(ctx context.Context, playlistID string) error {
	// Membership rows cascade through the foreign key.
	result, err := s.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", playlistID)
	if err != nil {
		return fmt.Errorf("delete playlist %s: %w", playlistID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read deleted playlist count: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrPlaylistNotFound
	}

	return nil
}

func (s *Store) ListPlaylists(ctx context.Context) ([]storage.PlaylistSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			p.id, p.name, p.description, p.cover_image_uri, p.is_system_playlist,
			p.created_at, p.updated_at,
			COALESCE(totals.track_count, 0)
		FROM playlists p
		LEFT JOIN (
			SELECT pt.playlist_id, COUNT(1) AS track_count
			FROM playlist_tracks pt
			JOIN tracks t ON t.id = pt.track_id
			WHERE t.is_deleted = 0
			GROUP BY pt.playlist_id
		) totals ON totals.playlist_id = p.id
		ORDER BY p.created_at, p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	playlists := make([]storage.PlaylistSummary, 0)
	for rows.Next() {
		var summary storage.PlaylistSummary
		var description, coverImageURI sql.NullString
		var isSystem int
		if scanErr := rows.Scan(
			&summary.ID, &summary.Name, &description, &coverImageURI, &isSystem,
			&summary.CreatedAt, &summary.UpdatedAt, &summary.TrackCount,
		); scanErr != nil {
			return nil, fmt.Errorf("scan playlist row: %w", scanErr)
		}
		summary.Description = stringPointer(description)
		summary.CoverImageURI = stringPointer(coverImageURI)
		summary.IsSystemPlaylist = isSystem == 1
		playlists = append(playlists, summary)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate playlist rows: %w", rowsErr)
	}

	return playlists, nil
}

func (s *Store) GetPlaylistWithTracks(ctx context.Context, playlistID string) (*storage.PlaylistDetail, error) {
	var detail storage.PlaylistDetail
	var description, coverImageURI sql.NullString
	var isSystem int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, cover_image_uri, is_system_playlist, created_at, updated_at
		FROM playlists
		WHERE id = ?
	`, playlistID).Scan(
		&detail.ID, &detail.Name, &description, &coverImageURI, &isSystem,
		&detail.CreatedAt, &detail.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("get playlist %s: %w", playlistID, err)
	}

	detail.Description = stringPointer(description)
	detail.CoverImageURI = stringPointer(coverImageURI)
	detail.IsSystemPlaylist = isSystem == 1

	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.id, pt.position, pt.added_at, `+trackColumns+`
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		  AND t.is_deleted = 0
		ORDER BY pt.position, pt.added_at
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list playlist tracks %s: %w", playlistID, err)
	}
	defer rows.Close()

	entries := make([]storage.PlaylistEntry, 0)
	for rows.Next() {
		var entry storage.PlaylistEntry
		scanTrackInto := func(dest ...any) error {
			full := append([]any{&entry.ID, &entry.Position, &entry.AddedAt}, dest...)
			return rows.Scan(full...)
		}
		track, scanErr := scanTrack(scanTrackInto)
		if scanErr != nil {
			return nil, fmt.Errorf("scan playlist track row %s: %w", playlistID, scanErr)
		}
		entry.Track = track
		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate playlist track rows %s: %w", playlistID, rowsErr)
	}

	detail.Entries = entries
	return &detail, nil
}

func (s *Store) NextPlaylistPosition(ctx context.Context, playlistID string) (int, error) {
	var maxPosition sql.NullInt64
	if err := s.db.QueryRowContext(
		ctx,
		"SELECT MAX(position) FROM playlist_tracks WHERE playlist_id = ?",
		playlistID,
	).Scan(&maxPosition); err != nil {
		return 0, fmt.Errorf("next playlist position %s: %w", playlistID, err)
	}

	if !maxPosition.Valid {
		return 1, nil
	}

	return int(maxPosition.Int64) + 1, nil
}

func (s *Store) HasPlaylistTrack(ctx context.Context, playlistID string, trackID string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		"SELECT COUNT(1) FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?",
		playlistID,
		trackID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check playlist membership %s/%s: %w", playlistID, trackID, err)
	}

	return count > 0, nil
}

func (s *Store) AddPlaylistTrack(ctx context.Context, entry storage.PlaylistTrack) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO playlist_tracks(id, playlist_id, track_id, position, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.PlaylistID, entry.TrackID, entry.Position, entry.AddedAt); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrDuplicateMembership
		}
		return fmt.Errorf("insert playlist track %s/%s: %w", entry.PlaylistID, entry.TrackID, err)
	}

	return nil
}

func (s *Store) RemovePlaylistTrack(ctx context.Context, playlistID string, trackID string) error {
	if _, err := s.db.ExecContext(
		ctx,
		"DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?",
		playlistID,
		trackID,
	); err != nil {
		return fmt.Errorf("remove playlist track %s/%s: %w", playlistID, trackID, err)
	}

	return nil
}

func (s *Store) ClearAllPlaylists(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear playlists tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"playlist_tracks", "playlists"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear playlists tx: %w", err)
	}

	return nil
}
