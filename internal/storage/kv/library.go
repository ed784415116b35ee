package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"starlight/internal/storage"
)

func (s *Store) SaveArtists(ctx context.Context, artists []storage.Artist) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, artist := range artists {
		var existing storage.Artist
		found, err := s.getJSON(artistPrefix+artist.ID, &existing)
		if err != nil {
			return err
		}
		if found {
			artist.CreatedAt = existing.CreatedAt
		}

		if err := s.setJSON(batch, artistPrefix+artist.ID, artist); err != nil {
			return err
		}
	}

	return s.commit(batch)
}

func (s *Store) SaveAlbums(ctx context.Context, albums []storage.Album) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, album := range albums {
		var existing storage.Album
		found, err := s.getJSON(albumPrefix+album.ID, &existing)
		if err != nil {
			return err
		}
		if found {
			album.CreatedAt = existing.CreatedAt
			if existing.Year != nil {
				album.Year = existing.Year
			}
			if existing.ArtworkURI != nil {
				album.ArtworkURI = existing.ArtworkURI
			}
			if existing.PrimaryColor != nil {
				album.PrimaryColor = existing.PrimaryColor
			}
		}

		if err := s.setJSON(batch, albumPrefix+album.ID, album); err != nil {
			return err
		}
		if err := batch.Set(albumArtistIndexKey(album.ArtistID, album.ID), []byte(album.ID), nil); err != nil {
			return fmt.Errorf("index album %s: %w", album.ID, err)
		}
	}

	return s.commit(batch)
}

func (s *Store) SaveTracks(ctx context.Context, tracks []storage.Track) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, track := range tracks {
		var existing storage.Track
		found, err := s.getJSON(trackPrefix+track.ID, &existing)
		if err != nil {
			return err
		}
		if found {
			track.CreatedAt = existing.CreatedAt
			if existing.DurationMS != nil {
				track.DurationMS = existing.DurationMS
			}
			if existing.DiscNumber != nil {
				track.DiscNumber = existing.DiscNumber
			}
			if existing.TrackNo != nil {
				track.TrackNo = existing.TrackNo
			}
			if existing.Bitrate != nil {
				track.Bitrate = existing.Bitrate
			}
			if existing.SampleRate != nil {
				track.SampleRate = existing.SampleRate
			}
			if len(existing.Genres) > 0 {
				track.Genres = existing.Genres
			}
			if existing.Hash != nil {
				track.Hash = existing.Hash
			}

			// File identity may have moved; drop the stale index entry.
			if existing.FileURI != track.FileURI {
				if err := batch.Delete([]byte(trackFileIndexPrefix+existing.FileURI), nil); err != nil {
					return fmt.Errorf("drop stale file index for track %s: %w", track.ID, err)
				}
			}
			// A re-tagged file keeps its id but invalidates the other index
			// entries; a stale dedup key would shadow future imports.
			if existing.Title != track.Title || existing.ArtistID != track.ArtistID {
				if err := s.deleteTitleIndex(batch, existing); err != nil {
					return err
				}
			}
			if existing.ArtistID != track.ArtistID {
				if err := batch.Delete(trackArtistIndexKey(existing.ArtistID, track.ID), nil); err != nil {
					return fmt.Errorf("drop stale artist index for track %s: %w", track.ID, err)
				}
			}
			if existing.AlbumID != track.AlbumID {
				if err := batch.Delete(trackAlbumIndexKey(existing.AlbumID, track.ID), nil); err != nil {
					return fmt.Errorf("drop stale album index for track %s: %w", track.ID, err)
				}
			}
		}
		track.IsDeleted = false

		if err := s.setJSON(batch, trackPrefix+track.ID, track); err != nil {
			return err
		}
		if err := s.indexTrack(batch, track); err != nil {
			return err
		}
	}

	return s.commit(batch)
}

func (s *Store) indexTrack(batch *pebble.Batch, track storage.Track) error {
	id := []byte(track.ID)

	if err := batch.Set(trackArtistIndexKey(track.ArtistID, track.ID), id, nil); err != nil {
		return fmt.Errorf("index track %s by artist: %w", track.ID, err)
	}
	if err := batch.Set(trackAlbumIndexKey(track.AlbumID, track.ID), id, nil); err != nil {
		return fmt.Errorf("index track %s by album: %w", track.ID, err)
	}
	if err := batch.Set([]byte(trackFileIndexPrefix+track.FileURI), id, nil); err != nil {
		return fmt.Errorf("index track %s by file: %w", track.ID, err)
	}

	var artist storage.Artist
	found, err := s.getJSON(artistPrefix+track.ArtistID, &artist)
	if err != nil {
		return err
	}
	if found {
		key := trackTitleIndexPrefix + storage.TitleArtistKey(track.Title, artist.Name)
		if err := batch.Set([]byte(key), id, nil); err != nil {
			return fmt.Errorf("index track %s by title: %w", track.ID, err)
		}
	}

	return nil
}

func (s *Store) MarkTracksDeleted(ctx context.Context, trackIDs []string) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, trackID := range trackIDs {
		var track storage.Track
		found, err := s.getJSON(trackPrefix+trackID, &track)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		track.IsDeleted = true
		if err := s.setJSON(batch, trackPrefix+trackID, track); err != nil {
			return err
		}
		// Tombstoned tracks no longer participate in dedup.
		if err := s.deleteTitleIndex(batch, track); err != nil {
			return err
		}
	}

	return s.commit(batch)
}

func (s *Store) DeleteTrackPermanently(ctx context.Context, trackID string) error {
	var track storage.Track
	found, err := s.getJSON(trackPrefix+trackID, &track)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrTrackNotFound
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := s.deleteTrackRecord(batch, track); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) deleteTrackRecord(batch *pebble.Batch, track storage.Track) error {
	keys := [][]byte{
		[]byte(trackPrefix + track.ID),
		trackArtistIndexKey(track.ArtistID, track.ID),
		trackAlbumIndexKey(track.AlbumID, track.ID),
		[]byte(trackFileIndexPrefix + track.FileURI),
	}
	for _, key := range keys {
		if err := batch.Delete(key, nil); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	return s.deleteTitleIndex(batch, track)
}

// deleteTitleIndex removes the dedup index entry for track. The key embeds
// the artist name, so when the artist record is already gone the entry is
// located by scanning for the track id instead.
func (s *Store) deleteTitleIndex(batch *pebble.Batch, track storage.Track) error {
	var artist storage.Artist
	found, err := s.getJSON(artistPrefix+track.ArtistID, &artist)
	if err != nil {
		return err
	}
	if found {
		key := trackTitleIndexPrefix + storage.TitleArtistKey(track.Title, artist.Name)
		if err := batch.Delete([]byte(key), nil); err != nil {
			return fmt.Errorf("delete title index for track %s: %w", track.ID, err)
		}
		return nil
	}

	return s.iteratePrefix(trackTitleIndexPrefix, func(key string, value []byte) (bool, error) {
		if string(value) != track.ID {
			return true, nil
		}
		if err := batch.Delete([]byte(key), nil); err != nil {
			return false, fmt.Errorf("delete title index for track %s: %w", track.ID, err)
		}
		return false, nil
	})
}

func (s *Store) DeleteArtist(ctx context.Context, artistID string) error {
	var artist storage.Artist
	found, err := s.getJSON(artistPrefix+artistID, &artist)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrArtistNotFound
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	// Cascade in dependency order: tracks, then albums, then the artist.
	trackIDs := make([]string, 0)
	if err := s.iteratePrefix(trackArtistIndexPrefix+artistID+":", func(_ string, value []byte) (bool, error) {
		trackIDs = append(trackIDs, string(value))
		return true, nil
	}); err != nil {
		return err
	}
	for _, trackID := range trackIDs {
		var track storage.Track
		trackFound, trackErr := s.getJSON(trackPrefix+trackID, &track)
		if trackErr != nil {
			return trackErr
		}
		if !trackFound {
			continue
		}
		if err := s.deleteTrackRecord(batch, track); err != nil {
			return err
		}
	}

	albumPrefixKey := albumArtistIndexPrefix + artistID + ":"
	if err := s.iteratePrefix(albumPrefixKey, func(key string, value []byte) (bool, error) {
		if err := batch.Delete([]byte(albumPrefix+string(value)), nil); err != nil {
			return false, fmt.Errorf("delete album %s: %w", value, err)
		}
		if err := batch.Delete([]byte(key), nil); err != nil {
			return false, fmt.Errorf("delete album index %s: %w", key, err)
		}
		return true, nil
	}); err != nil {
		return err
	}

	if err := batch.Delete([]byte(artistPrefix+artistID), nil); err != nil {
		return fmt.Errorf("delete artist %s: %w", artistID, err)
	}

	return s.commit(batch)
}

func (s *Store) ClearLibrary(ctx context.Context) error {
	for _, prefix := range []string{
		trackPrefix,
		"trackidx:",
		albumPrefix,
		albumArtistIndexPrefix,
		artistPrefix,
	} {
		if err := s.deletePrefix(prefix); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) FetchSnapshot(ctx context.Context) ([]storage.LibraryTrack, error) {
	artists := make(map[string]storage.Artist)
	if err := s.iteratePrefix(artistPrefix, func(_ string, value []byte) (bool, error) {
		var artist storage.Artist
		if err := decodeValue(value, &artist); err != nil {
			return false, err
		}
		artists[artist.ID] = artist
		return true, nil
	}); err != nil {
		return nil, err
	}

	albums := make(map[string]storage.Album)
	if err := s.iteratePrefix(albumPrefix, func(_ string, value []byte) (bool, error) {
		var album storage.Album
		if err := decodeValue(value, &album); err != nil {
			return false, err
		}
		albums[album.ID] = album
		return true, nil
	}); err != nil {
		return nil, err
	}

	snapshot := make([]storage.LibraryTrack, 0)
	if err := s.iteratePrefix(trackPrefix, func(_ string, value []byte) (bool, error) {
		var track storage.Track
		if err := decodeValue(value, &track); err != nil {
			return false, err
		}
		if track.IsDeleted {
			return true, nil
		}

		artist, hasArtist := artists[track.ArtistID]
		album, hasAlbum := albums[track.AlbumID]
		if !hasArtist || !hasAlbum {
			return true, nil
		}

		snapshot = append(snapshot, storage.LibraryTrack{
			Track:  track,
			Artist: artist,
			Album:  album,
		})
		return true, nil
	}); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (s *Store) FindTrackByFileIdentity(ctx context.Context, fileURI string, mtime *int64) (*storage.Track, error) {
	trackID, found, err := s.getString(trackFileIndexPrefix + fileURI)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var track storage.Track
	found, err = s.getJSON(trackPrefix+trackID, &track)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if mtime != nil && (track.FileMtime == nil || *track.FileMtime != *mtime) {
		return nil, nil
	}

	return &track, nil
}

func (s *Store) FindTrackByTitleArtist(ctx context.Context, title string, artistName string) (*storage.Track, error) {
	key := trackTitleIndexPrefix + storage.TitleArtistKey(title, artistName)
	trackID, found, err := s.getString(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var track storage.Track
	found, err = s.getJSON(trackPrefix+trackID, &track)
	if err != nil {
		return nil, err
	}
	if !found || track.IsDeleted {
		return nil, nil
	}

	return &track, nil
}

func (s *Store) TrackExistsByTitleArtist(ctx context.Context, title string, artistName string) (bool, error) {
	track, err := s.FindTrackByTitleArtist(ctx, title, artistName)
	if err != nil {
		return false, err
	}

	return track != nil, nil
}

func (s *Store) UpdateTrackDuration(ctx context.Context, trackID string, durationMS int) error {
	var track storage.Track
	found, err := s.getJSON(trackPrefix+trackID, &track)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrTrackNotFound
	}

	track.DurationMS = &durationMS

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.setJSON(batch, trackPrefix+trackID, track); err != nil {
		return err
	}

	return s.commit(batch)
}

func (s *Store) PatchTrackMetadata(ctx context.Context, trackID string, patch storage.TrackPatch) error {
	if patch.IsZero() {
		return nil
	}

	var track storage.Track
	found, err := s.getJSON(trackPrefix+trackID, &track)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrTrackNotFound
	}

	if track.DurationMS == nil && patch.DurationMS != nil {
		track.DurationMS = patch.DurationMS
	}
	if track.Bitrate == nil && patch.Bitrate != nil {
		track.Bitrate = patch.Bitrate
	}
	if track.SampleRate == nil && patch.SampleRate != nil {
		track.SampleRate = patch.SampleRate
	}
	if len(track.Genres) == 0 && len(patch.Genres) > 0 {
		track.Genres = patch.Genres
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.setJSON(batch, trackPrefix+trackID, track); err != nil {
		return err
	}

	if patch.ArtworkURI != nil {
		var album storage.Album
		albumFound, albumErr := s.getJSON(albumPrefix+track.AlbumID, &album)
		if albumErr != nil {
			return albumErr
		}
		if albumFound && album.ArtworkURI == nil {
			album.ArtworkURI = patch.ArtworkURI
			if err := s.setJSON(batch, albumPrefix+track.AlbumID, album); err != nil {
				return err
			}
		}
	}

	return s.commit(batch)
}

func albumArtistIndexKey(artistID string, albumID string) []byte {
	return []byte(albumArtistIndexPrefix + artistID + ":" + albumID)
}

func trackArtistIndexKey(artistID string, trackID string) []byte {
	return []byte(trackArtistIndexPrefix + artistID + ":" + trackID)
}

func trackAlbumIndexKey(albumID string, trackID string) []byte {
	return []byte(trackAlbumIndexPrefix + albumID + ":" + trackID)
}

func decodeValue(value []byte, out any) error {
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	return nil
}
