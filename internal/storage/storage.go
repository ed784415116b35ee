package storage

import (
	"context"
	"errors"
)

var ErrTrackNotFound = errors.New("track not found")

var ErrArtistNotFound = errors.New("artist not found")

var ErrPlaylistNotFound = errors.New("playlist not found")

// ErrDuplicateMembership distinguishes "track already in playlist" from a
// generic failure so callers can surface a friendly message.
var ErrDuplicateMembership = errors.New("track is already in playlist")

// ErrEngineUnavailable is returned when an explicitly requested storage
// engine cannot be opened on this runtime.
var ErrEngineUnavailable = errors.New("storage engine unavailable")

// Store is the storage port. Both backends implement the full operation set;
// each call is atomic with respect to its own entity set. The Pebble backend
// has no cross-store transactions, so its multi-entity operations are ordered
// single-store writes with read-time orphan filtering.
type Store interface {
	// Library.
	SaveArtists(ctx context.Context, artists []Artist) error
	SaveAlbums(ctx context.Context, albums []Album) error
	SaveTracks(ctx context.Context, tracks []Track) error
	MarkTracksDeleted(ctx context.Context, trackIDs []string) error
	DeleteTrackPermanently(ctx context.Context, trackID string) error
	DeleteArtist(ctx context.Context, artistID string) error
	ClearLibrary(ctx context.Context) error
	FetchSnapshot(ctx context.Context) ([]LibraryTrack, error)
	FindTrackByFileIdentity(ctx context.Context, fileURI string, mtime *int64) (*Track, error)
	FindTrackByTitleArtist(ctx context.Context, title string, artistName string) (*Track, error)
	TrackExistsByTitleArtist(ctx context.Context, title string, artistName string) (bool, error)
	UpdateTrackDuration(ctx context.Context, trackID string, durationMS int) error
	PatchTrackMetadata(ctx context.Context, trackID string, patch TrackPatch) error

	// Playlists.
	CreatePlaylist(ctx context.Context, playlist Playlist) error
	UpdatePlaylist(ctx context.Context, playlistID string, patch PlaylistPatch) error
	DeletePlaylist(ctx context.Context, playlistID string) error
	ListPlaylists(ctx context.Context) ([]PlaylistSummary, error)
	GetPlaylistWithTracks(ctx context.Context, playlistID string) (*PlaylistDetail, error)
	NextPlaylistPosition(ctx context.Context, playlistID string) (int, error)
	HasPlaylistTrack(ctx context.Context, playlistID string, trackID string) (bool, error)
	AddPlaylistTrack(ctx context.Context, entry PlaylistTrack) error
	RemovePlaylistTrack(ctx context.Context, playlistID string, trackID string) error
	ClearAllPlaylists(ctx context.Context) error

	// Playback state singleton.
	GetPlaybackState(ctx context.Context) (*PlaybackState, error)
	SavePlaybackState(ctx context.Context, state PlaybackState) error

	Close() error
}
