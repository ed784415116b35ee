package kv

import (
	"context"
	"time"

	"starlight/internal/storage"
)

func (s *Store) GetPlaybackState(ctx context.Context) (*storage.PlaybackState, error) {
	var state storage.PlaybackState
	found, err := s.getJSON(playbackStateKey, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	return &state, nil
}

func (s *Store) SavePlaybackState(ctx context.Context, state storage.PlaybackState) error {
	if state.UpdatedAt == "" {
		state.UpdatedAt = nowRFC3339()
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.setJSON(batch, playbackStateKey, state); err != nil {
		return err
	}

	return s.commit(batch)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
