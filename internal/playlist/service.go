// Package playlist manages user playlists and their track memberships.
package playlist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"starlight/internal/storage"
)

const EventPlaylistsChanged = "playlists:changed"

type Emitter func(eventName string, payload any)

type Service struct {
	mu     sync.Mutex
	store  storage.Store
	logger *log.Logger
	emit   Emitter
}

func NewService(store storage.Store, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

func (s *Service) Create(ctx context.Context, name string, description *string) (*storage.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("playlist name is required")
	}

	now := nowRFC3339()
	playlist := storage.Playlist{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreatePlaylist(ctx, playlist); err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}

	s.notify(ctx)
	return &playlist, nil
}

func (s *Service) Update(ctx context.Context, playlistID string, patch storage.PlaylistPatch) error {
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return fmt.Errorf("playlist name is required")
		}
		patch.Name = &trimmed
	}

	if err := s.store.UpdatePlaylist(ctx, playlistID, patch); err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

// Delete removes a playlist and its memberships. Tracks themselves are never
// touched.
func (s *Service) Delete(ctx context.Context, playlistID string) error {
	if err := s.store.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

func (s *Service) List(ctx context.Context) ([]storage.PlaylistSummary, error) {
	return s.store.ListPlaylists(ctx)
}

func (s *Service) Get(ctx context.Context, playlistID string) (*storage.PlaylistDetail, error) {
	return s.store.GetPlaylistWithTracks(ctx, playlistID)
}

// AddTrack appends a track at the next free position. Positions are assigned
// densely on insert and are never renumbered on removal, so a playlist that
// lost tracks keeps gaps until tracks are appended again.
func (s *Service) AddTrack(ctx context.Context, playlistID string, trackID string) error {
	s.mu.Lock()
	err := s.addTrack(ctx, playlistID, trackID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

// addTrack runs under the service mutex so two concurrent appends cannot
// claim the same position.
func (s *Service) addTrack(ctx context.Context, playlistID string, trackID string) error {
	exists, err := s.store.HasPlaylistTrack(ctx, playlistID, trackID)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicateMembership
	}

	position, err := s.store.NextPlaylistPosition(ctx, playlistID)
	if err != nil {
		return err
	}

	entry := storage.PlaylistTrack{
		ID:         uuid.NewString(),
		PlaylistID: playlistID,
		TrackID:    trackID,
		Position:   position,
		AddedAt:    nowRFC3339(),
	}
	if err := s.store.AddPlaylistTrack(ctx, entry); err != nil {
		return err
	}

	s.logger.Debug("track added to playlist",
		"playlist", playlistID, "track", trackID, "position", position)
	return nil
}

func (s *Service) RemoveTrack(ctx context.Context, playlistID string, trackID string) error {
	if err := s.store.RemovePlaylistTrack(ctx, playlistID, trackID); err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAllPlaylists(ctx); err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

func (s *Service) notify(ctx context.Context) {
	s.mu.Lock()
	emitter := s.emit
	s.mu.Unlock()
	if emitter == nil {
		return
	}

	summaries, err := s.store.ListPlaylists(ctx)
	if err != nil {
		s.logger.Warn("list playlists for change event", "err", err)
		return
	}

	emitter(EventPlaylistsChanged, summaries)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
