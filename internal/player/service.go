// Package player drives the audio transport and keeps the persisted playback
// state in lockstep with it. A background poller samples the transport while
// user commands mutate it directly; one mutex serializes both sides so a poll
// sample can never interleave with a command, and a short cooldown after each
// command discards samples the transport read before the command landed.
package player

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"starlight/internal/library"
	"starlight/internal/storage"
)

const EventStateChanged = "player:state"

const (
	StatusStopped = "stopped"
	StatusPaused  = "paused"
	StatusPlaying = "playing"
)

const (
	// pollInterval is how often the transport position is sampled.
	pollInterval = 500 * time.Millisecond

	// manualUpdateCooldown discards poll samples taken too soon after a user
	// command. The transport reports positions asynchronously, so a sample
	// read just before a seek would otherwise overwrite the seek target.
	manualUpdateCooldown = 500 * time.Millisecond

	// positionDeltaThreshold is the smallest position movement worth applying
	// and persisting. Sub-threshold jitter is noise.
	positionDeltaThreshold = 250 * time.Millisecond

	// restartThreshold: skipping backwards restarts the current track when
	// it has played past this point, and moves to the previous track before
	// it.
	restartThreshold = 2000 * time.Millisecond
)

type Emitter func(eventName string, payload any)

type State struct {
	Status       string                `json:"status"`
	PositionMS   int                   `json:"positionMs"`
	DurationMS   *int                  `json:"durationMs,omitempty"`
	Volume       float64               `json:"volume"`
	IsMuted      bool                  `json:"isMuted"`
	CurrentTrack *storage.LibraryTrack `json:"currentTrack,omitempty"`
	UpdatedAt    string                `json:"updatedAt"`
}

type Service struct {
	mu         sync.Mutex
	transport  Transport
	library    *library.Service
	store      storage.Store
	logger     *log.Logger
	emit       Emitter
	status     string
	positionMS int
	volume     float64
	muted      bool
	current    *storage.LibraryTrack
	lastManual time.Time
	pollStop   chan struct{}
	now        func() time.Time
}

func NewService(transport Transport, libraryService *library.Service, store storage.Store, logger *log.Logger) *Service {
	service := &Service{
		transport: transport,
		library:   libraryService,
		store:     store,
		logger:    logger,
		status:    StatusStopped,
		volume:    1.0,
		now:       time.Now,
	}

	if transport != nil {
		transport.SetOnEOF(service.onTrackEnded)
	}

	return service
}

func (s *Service) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emitter
}

func (s *Service) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// RestoreState reloads the persisted playback state: the active track comes
// back paused at its saved position. When nothing was persisted yet the
// configured initial volume applies instead. A track that has since left the
// library is dropped silently.
func (s *Service) RestoreState(ctx context.Context, initialVolume float64) error {
	persisted, err := s.store.GetPlaybackState(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if persisted == nil {
		s.volume = clampVolume(initialVolume)
		s.applyVolumeLocked()
		return nil
	}

	s.volume = persisted.Volume
	s.muted = persisted.IsMuted
	s.applyVolumeLocked()

	if persisted.ActiveTrackID == nil {
		return nil
	}

	track := s.library.TrackByID(*persisted.ActiveTrackID)
	if track == nil {
		return nil
	}

	if err := s.transport.Load(track.Track.FileURI); err != nil {
		s.logger.Warn("restore: track failed to load", "file", track.Track.FileURI, "err", err)
		return nil
	}

	s.current = track
	s.status = StatusPaused
	s.positionMS = persisted.PositionMS
	if s.positionMS > 0 {
		if err := s.transport.Seek(s.positionMS); err != nil {
			s.logger.Warn("restore: seek failed", "err", err)
		}
	}
	s.stampManualLocked()

	return nil
}

// PlayTrack loads and plays a track from the library. A file that fails to
// load clears the active track instead of failing the call; the library entry
// may point at a file that no longer exists.
func (s *Service) PlayTrack(ctx context.Context, trackID string) error {
	track := s.library.TrackByID(trackID)
	if track == nil {
		return storage.ErrTrackNotFound
	}

	s.mu.Lock()
	err := s.loadAndPlayLocked(ctx, track)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

func (s *Service) loadAndPlayLocked(ctx context.Context, track *storage.LibraryTrack) error {
	if err := s.transport.Load(track.Track.FileURI); err != nil {
		s.logger.Warn("track failed to load", "file", track.Track.FileURI, "err", err)
		s.current = nil
		s.status = StatusStopped
		s.positionMS = 0
		s.stampManualLocked()
		s.persistLocked(ctx)
		return nil
	}

	s.current = track
	s.positionMS = 0
	s.status = StatusPlaying
	s.stampManualLocked()
	if err := s.transport.Play(); err != nil {
		return err
	}

	s.ensurePollerLocked()
	s.persistLocked(ctx)
	return nil
}

func (s *Service) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return storage.ErrTrackNotFound
	}

	s.status = StatusPlaying
	s.stampManualLocked()
	err := s.transport.Play()
	if err == nil {
		s.ensurePollerLocked()
		s.persistLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

func (s *Service) Pause(ctx context.Context) error {
	s.mu.Lock()
	s.status = StatusPaused
	s.stampManualLocked()
	err := s.transport.Pause()
	if err == nil {
		s.stopPollerLocked()
		s.persistLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

func (s *Service) TogglePlayback(ctx context.Context) error {
	s.mu.Lock()
	playing := s.status == StatusPlaying
	s.mu.Unlock()

	if playing {
		return s.Pause(ctx)
	}
	return s.Play(ctx)
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.status = StatusStopped
	s.positionMS = 0
	s.current = nil
	s.stampManualLocked()
	err := s.transport.Stop()
	s.stopPollerLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

func (s *Service) Seek(ctx context.Context, positionMS int) error {
	if positionMS < 0 {
		positionMS = 0
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return storage.ErrTrackNotFound
	}

	if duration := s.current.Track.DurationMS; duration != nil && positionMS > *duration {
		positionMS = *duration
	}

	s.positionMS = positionMS
	s.stampManualLocked()
	err := s.transport.Seek(positionMS)
	if err == nil {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

// SkipNext moves to the next library track, wrapping to the first after the
// last.
func (s *Service) SkipNext(ctx context.Context) error {
	snapshot := s.library.Snapshot()
	if len(snapshot) == 0 {
		return s.Stop(ctx)
	}

	s.mu.Lock()
	index := s.currentIndexLocked(snapshot)
	next := snapshot[(index+1)%len(snapshot)]
	err := s.loadAndPlayLocked(ctx, &next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

// SkipPrevious restarts the current track when it has played past the
// restart threshold, and moves to the previous library track otherwise,
// wrapping to the last before the first.
func (s *Service) SkipPrevious(ctx context.Context) error {
	s.mu.Lock()
	positionMS := s.positionMS
	s.mu.Unlock()

	if positionMS > int(restartThreshold/time.Millisecond) {
		return s.Seek(ctx, 0)
	}

	snapshot := s.library.Snapshot()
	if len(snapshot) == 0 {
		return s.Stop(ctx)
	}

	s.mu.Lock()
	index := s.currentIndexLocked(snapshot)
	previous := snapshot[(index-1+len(snapshot))%len(snapshot)]
	err := s.loadAndPlayLocked(ctx, &previous)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emitState()
	return nil
}

// SetVolume takes a gain in 0..1.
func (s *Service) SetVolume(ctx context.Context, volume float64) error {
	s.mu.Lock()
	s.volume = clampVolume(volume)
	s.stampManualLocked()
	s.applyVolumeLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.emitState()
	return nil
}

func (s *Service) SetMuted(ctx context.Context, muted bool) error {
	s.mu.Lock()
	s.muted = muted
	s.stampManualLocked()
	s.applyVolumeLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.emitState()
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	s.stopPollerLocked()
	s.mu.Unlock()

	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}

func (s *Service) applyVolumeLocked() {
	percent := int(math.Round(s.volume * 100))
	if s.muted {
		percent = 0
	}

	if err := s.transport.SetVolume(percent); err != nil {
		s.logger.Warn("set transport volume", "err", err)
	}
}

func (s *Service) currentIndexLocked(snapshot []storage.LibraryTrack) int {
	if s.current == nil {
		return -1
	}
	for i := range snapshot {
		if snapshot[i].Track.ID == s.current.Track.ID {
			return i
		}
	}
	return -1
}

func (s *Service) onTrackEnded() {
	if err := s.SkipNext(context.Background()); err != nil {
		s.logger.Warn("advance after track end", "err", err)
	}
}

func (s *Service) ensurePollerLocked() {
	if s.pollStop != nil {
		return
	}

	stop := make(chan struct{})
	s.pollStop = stop
	go s.runPoller(stop)
}

func (s *Service) stopPollerLocked() {
	if s.pollStop == nil {
		return
	}

	close(s.pollStop)
	s.pollStop = nil
}

func (s *Service) runPoller(stop <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.pollTick(context.Background())
		}
	}
}

// pollTick samples the transport and folds the reading into the state. A
// sample inside the cooldown window after a manual command is discarded, and
// a sample is applied only on a meaningful delta: the playing flag flipped or
// the position moved past the threshold.
func (s *Service) pollTick(ctx context.Context) {
	sample, err := s.transport.PositionMS()
	if err != nil {
		s.logger.Warn("poll transport position", "err", err)
		return
	}
	playing, err := s.transport.Playing()
	if err != nil {
		s.logger.Warn("poll transport playing flag", "err", err)
		return
	}
	duration, err := s.transport.DurationMS()
	if err != nil {
		duration = nil
	}

	s.mu.Lock()
	if s.current == nil || s.status != StatusPlaying {
		s.mu.Unlock()
		return
	}

	if s.now().Sub(s.lastManual) < manualUpdateCooldown {
		s.mu.Unlock()
		return
	}

	if duration != nil && s.current.Track.DurationMS == nil {
		trackID := s.current.Track.ID
		learned := *duration
		s.mu.Unlock()
		if err := s.library.UpdateTrackDuration(ctx, trackID, learned); err != nil {
			s.logger.Warn("backfill track duration", "track", trackID, "err", err)
		}
		s.mu.Lock()
		if refreshed := s.library.TrackByID(trackID); refreshed != nil {
			s.current = refreshed
		}
	}

	meaningful := false

	// The transport can stall or pause behind the service's back; adopt its
	// playing flag the way Pause would.
	if !playing {
		s.status = StatusPaused
		s.stopPollerLocked()
		meaningful = true
	}

	delta := sample - s.positionMS
	if delta < 0 {
		delta = -delta
	}
	if delta >= int(positionDeltaThreshold/time.Millisecond) {
		s.positionMS = sample
		meaningful = true
	}

	if !meaningful {
		s.mu.Unlock()
		return
	}

	s.persistLocked(ctx)
	s.mu.Unlock()

	s.emitState()
}

func (s *Service) persistLocked(ctx context.Context) {
	state := storage.PlaybackState{
		PositionMS: s.positionMS,
		Volume:     s.volume,
		IsMuted:    s.muted,
		UpdatedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if s.current != nil {
		trackID := s.current.Track.ID
		state.ActiveTrackID = &trackID
	}

	if err := s.store.SavePlaybackState(ctx, state); err != nil {
		s.logger.Warn("persist playback state", "err", err)
	}
}

func (s *Service) stampManualLocked() {
	s.lastManual = s.now()
}

func (s *Service) stateLocked() State {
	state := State{
		Status:     s.status,
		PositionMS: s.positionMS,
		Volume:     s.volume,
		IsMuted:    s.muted,
	}

	if s.current != nil {
		track := *s.current
		state.CurrentTrack = &track
		state.DurationMS = track.Track.DurationMS
	}

	if !s.lastManual.IsZero() {
		state.UpdatedAt = s.lastManual.UTC().Format(time.RFC3339)
	}

	return state
}

func (s *Service) emitState() {
	s.mu.Lock()
	emitter := s.emit
	state := s.stateLocked()
	s.mu.Unlock()

	if emitter != nil {
		emitter(EventStateChanged, state)
	}
}
