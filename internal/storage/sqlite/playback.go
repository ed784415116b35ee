package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"starlight/internal/storage"
)

func (s *Store) GetPlaybackState(ctx context.Context) (*storage.PlaybackState, error) {
	var state storage.PlaybackState
	var activeTrackID sql.NullString
	var isMuted int

	err := s.db.QueryRowContext(ctx, `
		SELECT active_track_id, position_ms, volume, is_muted, updated_at
		FROM playback_state
		LIMIT 1
	`).Scan(&activeTrackID, &state.PositionMS, &state.Volume, &isMuted, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get playback state: %w", err)
	}

	state.ActiveTrackID = stringPointer(activeTrackID)
	state.IsMuted = isMuted == 1
	return &state, nil
}

// SavePlaybackState overwrites the singleton row, inserting it on first use.
func (s *Store) SavePlaybackState(ctx context.Context, state storage.PlaybackState) error {
	isMuted := 0
	if state.IsMuted {
		isMuted = 1
	}
	updatedAt := state.UpdatedAt
	if updatedAt == "" {
		updatedAt = nowRFC3339()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE playback_state
		SET active_track_id = ?, position_ms = ?, volume = ?, is_muted = ?, updated_at = ?
	`,
		nullableString(state.ActiveTrackID),
		state.PositionMS,
		state.Volume,
		isMuted,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update playback state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read playback state row count: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO playback_state(active_track_id, position_ms, volume, is_muted, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		nullableString(state.ActiveTrackID),
		state.PositionMS,
		state.Volume,
		isMuted,
		updatedAt,
	); err != nil {
		return fmt.Errorf("insert playback state: %w", err)
	}

	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
