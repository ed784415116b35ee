// Package kv implements the storage port on PebbleDB, an embedded LSM
// key/value store. There are no cross-store transactions and no JOINs, so
// every logical table gets its own key prefix plus explicit index keys, and
// multi-entity mutations are ordered sequences of independent writes. A crash
// between steps can leave an orphaned membership row behind; playlist reads
// tolerate that by resolving every membership against the track store and
// dropping rows whose track is gone.
//
// Key schema:
//
//	artist:<id>                           -> Artist JSON
//	album:<id>                            -> Album JSON
//	albumidx:artist:<artist_id>:<album_id>  -> album id
//	track:<id>                            -> Track JSON
//	trackidx:artist:<artist_id>:<track_id>  -> track id
//	trackidx:album:<album_id>:<track_id>    -> track id
//	trackidx:file:<file_uri>                -> track id
//	trackidx:titleartist:<title|artist>     -> track id
//	playlist:<id>                         -> Playlist JSON
//	plsttrack:<playlist_id>:<track_id>    -> PlaylistTrack JSON
//	playback:state                        -> PlaybackState JSON (singleton)
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"

	"starlight/internal/storage"
)

const (
	artistPrefix           = "artist:"
	albumPrefix            = "album:"
	albumArtistIndexPrefix = "albumidx:artist:"
	trackPrefix            = "track:"
	trackArtistIndexPrefix = "trackidx:artist:"
	trackAlbumIndexPrefix  = "trackidx:album:"
	trackFileIndexPrefix   = "trackidx:file:"
	trackTitleIndexPrefix  = "trackidx:titleartist:"
	playlistPrefix         = "playlist:"
	playlistTrackPrefix    = "plsttrack:"
	playbackStateKey       = "playback:state"
)

// Store implements storage.Store on a Pebble database.
type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create kv directory: %w", err)
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getJSON(key string, out any) (bool, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	return true, nil
}

func (s *Store) setJSON(batch *pebble.Batch, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := batch.Set([]byte(key), body, nil); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return nil
}

func (s *Store) getString(key string) (string, bool, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	return string(value), true, nil
}

// iteratePrefix calls visit for every key under prefix; returning false stops
// the scan early.
func (s *Store) iteratePrefix(prefix string, visit func(key string, value []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, valueErr := iter.ValueAndErr()
		if valueErr != nil {
			return fmt.Errorf("read value under %s: %w", prefix, valueErr)
		}

		keep, visitErr := visit(string(iter.Key()), value)
		if visitErr != nil {
			return visitErr
		}
		if !keep {
			break
		}
	}

	return iter.Error()
}

func (s *Store) deletePrefix(prefix string) error {
	if err := s.db.DeleteRange([]byte(prefix), prefixUpperBound(prefix), pebble.Sync); err != nil {
		return fmt.Errorf("delete range %s: %w", prefix, err)
	}

	return nil
}

func (s *Store) commit(batch *pebble.Batch) error {
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

func prefixUpperBound(prefix string) []byte {
	bound := []byte(prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}

	return nil
}

var _ storage.Store = (*Store)(nil)
