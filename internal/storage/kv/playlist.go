package kv

import (
	"context"
	"sort"

	"starlight/internal/storage"
)

func (s *Store) CreatePlaylist(ctx context.Context, playlist storage.Playlist) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := s.setJSON(batch, playlistPrefix+playlist.ID, playlist); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) UpdatePlaylist(ctx context.Context, playlistID string, patch storage.PlaylistPatch) error {
	var playlist storage.Playlist
	found, err := s.getJSON(playlistPrefix+playlistID, &playlist)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrPlaylistNotFound
	}

	if patch.Name != nil {
		playlist.Name = *patch.Name
	}
	if patch.Description != nil {
		playlist.Description = patch.Description
	}
	if patch.CoverImageURI != nil {
		playlist.CoverImageURI = patch.CoverImageURI
	}
	playlist.UpdatedAt = nowRFC3339()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.setJSON(batch, playlistPrefix+playlistID, playlist); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) DeletePlaylist(ctx context.Context, playlistID string) error {
	var playlist storage.Playlist
	found, err := s.getJSON(playlistPrefix+playlistID, &playlist)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrPlaylistNotFound
	}

	if err := s.deletePrefix(playlistTrackPrefix + playlistID + ":"); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete([]byte(playlistPrefix+playlistID), nil); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) ListPlaylists(ctx context.Context) ([]storage.PlaylistSummary, error) {
	summaries := make([]storage.PlaylistSummary, 0)
	if err := s.iteratePrefix(playlistPrefix, func(_ string, value []byte) (bool, error) {
		var playlist storage.Playlist
		if err := decodeValue(value, &playlist); err != nil {
			return false, err
		}

		count, err := s.countResolvedTracks(playlist.ID)
		if err != nil {
			return false, err
		}

		summaries = append(summaries, storage.PlaylistSummary{
			Playlist:   playlist,
			TrackCount: count,
		})
		return true, nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt != summaries[j].CreatedAt {
			return summaries[i].CreatedAt < summaries[j].CreatedAt
		}
		return summaries[i].ID < summaries[j].ID
	})

	return summaries, nil
}

// countResolvedTracks counts memberships whose track still exists and is not
// tombstoned. Orphans left behind by a crashed cascade are skipped here
// instead of being repaired.
func (s *Store) countResolvedTracks(playlistID string) (int, error) {
	count := 0
	err := s.iteratePrefix(playlistTrackPrefix+playlistID+":", func(_ string, value []byte) (bool, error) {
		var membership storage.PlaylistTrack
		if err := decodeValue(value, &membership); err != nil {
			return false, err
		}

		var track storage.Track
		found, err := s.getJSON(trackPrefix+membership.TrackID, &track)
		if err != nil {
			return false, err
		}
		if found && !track.IsDeleted {
			count++
		}
		return true, nil
	})

	return count, err
}

func (s *Store) GetPlaylistWithTracks(ctx context.Context, playlistID string) (*storage.PlaylistDetail, error) {
	var playlist storage.Playlist
	found, err := s.getJSON(playlistPrefix+playlistID, &playlist)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrPlaylistNotFound
	}

	entries := make([]storage.PlaylistEntry, 0)
	if err := s.iteratePrefix(playlistTrackPrefix+playlistID+":", func(_ string, value []byte) (bool, error) {
		var membership storage.PlaylistTrack
		if err := decodeValue(value, &membership); err != nil {
			return false, err
		}

		var track storage.Track
		trackFound, trackErr := s.getJSON(trackPrefix+membership.TrackID, &track)
		if trackErr != nil {
			return false, trackErr
		}
		if !trackFound || track.IsDeleted {
			return true, nil
		}

		entries = append(entries, storage.PlaylistEntry{
			ID:       membership.ID,
			Position: membership.Position,
			AddedAt:  membership.AddedAt,
			Track:    track,
		})
		return true, nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Position != entries[j].Position {
			return entries[i].Position < entries[j].Position
		}
		return entries[i].AddedAt < entries[j].AddedAt
	})

	return &storage.PlaylistDetail{
		Playlist: playlist,
		Entries:  entries,
	}, nil
}

func (s *Store) NextPlaylistPosition(ctx context.Context, playlistID string) (int, error) {
	highest := 0
	if err := s.iteratePrefix(playlistTrackPrefix+playlistID+":", func(_ string, value []byte) (bool, error) {
		var membership storage.PlaylistTrack
		if err := decodeValue(value, &membership); err != nil {
			return false, err
		}
		if membership.Position > highest {
			highest = membership.Position
		}
		return true, nil
	}); err != nil {
		return 0, err
	}

	return highest + 1, nil
}

func (s *Store) HasPlaylistTrack(ctx context.Context, playlistID string, trackID string) (bool, error) {
	var membership storage.PlaylistTrack
	found, err := s.getJSON(playlistTrackKey(playlistID, trackID), &membership)
	if err != nil {
		return false, err
	}

	return found, nil
}

func (s *Store) AddPlaylistTrack(ctx context.Context, entry storage.PlaylistTrack) error {
	exists, err := s.HasPlaylistTrack(ctx, entry.PlaylistID, entry.TrackID)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicateMembership
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.setJSON(batch, playlistTrackKey(entry.PlaylistID, entry.TrackID), entry); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) RemovePlaylistTrack(ctx context.Context, playlistID string, trackID string) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete([]byte(playlistTrackKey(playlistID, trackID)), nil); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) ClearAllPlaylists(ctx context.Context) error {
	for _, prefix := range []string{playlistTrackPrefix, playlistPrefix} {
		if err := s.deletePrefix(prefix); err != nil {
			return err
		}
	}

	return nil
}

func playlistTrackKey(playlistID string, trackID string) string {
	return playlistTrackPrefix + playlistID + ":" + trackID
}
