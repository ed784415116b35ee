package storage

import "strings"

// Catalog entities are backend-neutral: both the SQLite and the Pebble
// adapters persist exactly these shapes. Timestamps are RFC 3339 strings.

type Artist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortKey   string `json:"sortKey"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type Album struct {
	ID           string  `json:"id"`
	ArtistID     string  `json:"artistId"`
	Title        string  `json:"title"`
	SortKey      string  `json:"sortKey"`
	Year         *int    `json:"year,omitempty"`
	ArtworkURI   *string `json:"artworkUri,omitempty"`
	PrimaryColor *string `json:"primaryColor,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

type Track struct {
	ID         string   `json:"id"`
	AlbumID    string   `json:"albumId"`
	ArtistID   string   `json:"artistId"`
	Title      string   `json:"title"`
	DurationMS *int     `json:"durationMs,omitempty"`
	DiscNumber *int     `json:"discNumber,omitempty"`
	TrackNo    *int     `json:"trackNumber,omitempty"`
	Bitrate    *int     `json:"bitrate,omitempty"`
	SampleRate *int     `json:"sampleRate,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	FileURI    string   `json:"fileUri"`
	FileMtime  *int64   `json:"fileMtime,omitempty"`
	FileSize   *int64   `json:"fileSize,omitempty"`
	Hash       *string  `json:"hash,omitempty"`
	IsDeleted  bool     `json:"isDeleted"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
}

// LibraryTrack is a snapshot row: a non-deleted track joined with its owners.
type LibraryTrack struct {
	Track  Track  `json:"track"`
	Artist Artist `json:"artist"`
	Album  Album  `json:"album"`
}

// TrackPatch back-fills metadata a stored track is missing. Nil fields are
// left untouched; set fields only land when the stored value is absent.
type TrackPatch struct {
	DurationMS *int
	Bitrate    *int
	SampleRate *int
	Genres     []string
	ArtworkURI *string
}

func (p TrackPatch) IsZero() bool {
	return p.DurationMS == nil && p.Bitrate == nil && p.SampleRate == nil &&
		len(p.Genres) == 0 && p.ArtworkURI == nil
}

type Playlist struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      *string `json:"description,omitempty"`
	CoverImageURI    *string `json:"coverImageUri,omitempty"`
	IsSystemPlaylist bool    `json:"isSystemPlaylist"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

// PlaylistPatch updates mutable playlist fields; nil means keep.
type PlaylistPatch struct {
	Name          *string
	Description   *string
	CoverImageURI *string
}

type PlaylistTrack struct {
	ID         string `json:"id"`
	PlaylistID string `json:"playlistId"`
	TrackID    string `json:"trackId"`
	Position   int    `json:"position"`
	AddedAt    string `json:"addedAt"`
}

type PlaylistSummary struct {
	Playlist
	TrackCount int `json:"trackCount"`
}

// PlaylistEntry is a membership row resolved against the track store.
type PlaylistEntry struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	AddedAt  string `json:"addedAt"`
	Track    Track  `json:"track"`
}

type PlaylistDetail struct {
	Playlist
	Entries []PlaylistEntry `json:"entries"`
}

// PlaybackState is a singleton row, overwritten in place.
type PlaybackState struct {
	ActiveTrackID *string `json:"activeTrackId,omitempty"`
	PositionMS    int     `json:"positionMs"`
	Volume        float64 `json:"volume"`
	IsMuted       bool    `json:"isMuted"`
	UpdatedAt     string  `json:"updatedAt"`
}

// TitleArtistKey is the case-insensitive dedup key identifying "the same
// song" regardless of file path.
func TitleArtistKey(title string, artistName string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(artistName))
}
