//go:build libmpv

package player

import (
	"errors"
	"fmt"
	"math"
	"sync"

	mpv "github.com/gen2brain/go-mpv"
)

const (
	mpvPauseProperty    = "pause"
	mpvVolumeProperty   = "volume"
	mpvPositionProperty = "time-pos"
	mpvDurationProperty = "duration"
)

type mpvTransport struct {
	mu          sync.Mutex
	client      *mpv.Mpv
	onEOF       func()
	closeOnce   sync.Once
	closed      chan struct{}
	eventLoopWG sync.WaitGroup
}

func NewTransport() (Transport, error) {
	client := mpv.New()
	if client == nil {
		return nil, errors.New("create libmpv instance")
	}

	setOptionString(client, "terminal", "no")
	setOptionString(client, "video", "no")
	setOptionString(client, "audio-display", "no")
	setOptionString(client, "keep-open", "no")

	if err := client.Initialize(); err != nil {
		client.TerminateDestroy()
		return nil, fmt.Errorf("initialize libmpv: %w", err)
	}

	transport := &mpvTransport{
		client: client,
		closed: make(chan struct{}),
	}

	_ = client.RequestEvent(mpv.EventEnd, true)

	transport.eventLoopWG.Add(1)
	go transport.eventLoop()

	return transport, nil
}

func (t *mpvTransport) Load(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetPropertyString(mpvPauseProperty, "yes"); err != nil {
		return fmt.Errorf("set pause before load: %w", err)
	}

	if err := t.client.Command([]string{"loadfile", path, "replace"}); err != nil {
		return fmt.Errorf("load file %q: %w", path, err)
	}

	return nil
}

func (t *mpvTransport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetPropertyString(mpvPauseProperty, "no"); err != nil {
		return fmt.Errorf("resume playback: %w", err)
	}

	return nil
}

func (t *mpvTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetPropertyString(mpvPauseProperty, "yes"); err != nil {
		return fmt.Errorf("pause playback: %w", err)
	}

	return nil
}

func (t *mpvTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.Command([]string{"stop"}); err != nil {
		return fmt.Errorf("stop playback: %w", err)
	}

	return nil
}

func (t *mpvTransport) Seek(positionMS int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	seconds := float64(positionMS) / 1000.0
	if err := t.client.SetProperty(mpvPositionProperty, mpv.FormatDouble, seconds); err != nil {
		return fmt.Errorf("seek playback: %w", err)
	}

	return nil
}

func (t *mpvTransport) SetVolume(volume int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetProperty(mpvVolumeProperty, mpv.FormatDouble, float64(volume)); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}

	return nil
}

func (t *mpvTransport) Playing() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, err := t.client.GetProperty(mpvPauseProperty, mpv.FormatFlag)
	if err != nil {
		if errors.Is(err, mpv.ErrPropertyUnavailable) || errors.Is(err, mpv.ErrPropertyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", mpvPauseProperty, err)
	}

	paused, ok := value.(bool)
	if !ok {
		return false, nil
	}

	return !paused, nil
}

func (t *mpvTransport) PositionMS() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	milliseconds, ok, err := t.readMillisecondsPropertyLocked(mpvPositionProperty)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	return milliseconds, nil
}

func (t *mpvTransport) DurationMS() (*int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	milliseconds, ok, err := t.readMillisecondsPropertyLocked(mpvDurationProperty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	value := milliseconds
	return &value, nil
}

func (t *mpvTransport) SetOnEOF(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEOF = callback
}

func (t *mpvTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		client := t.client
		t.mu.Unlock()

		if client != nil {
			client.Wakeup()
			client.TerminateDestroy()
		}

		t.eventLoopWG.Wait()
		close(t.closed)
	})

	<-t.closed
	return nil
}

func (t *mpvTransport) eventLoop() {
	defer t.eventLoopWG.Done()

	for {
		event := t.client.WaitEvent(0.5)
		if event == nil {
			continue
		}

		switch event.EventID {
		case mpv.EventShutdown:
			return
		case mpv.EventEnd:
			end := event.EndFile()
			if end.Reason != mpv.EndFileEOF {
				continue
			}

			t.mu.Lock()
			onEOF := t.onEOF
			t.mu.Unlock()
			if onEOF != nil {
				onEOF()
			}
		}
	}
}

func (t *mpvTransport) readMillisecondsPropertyLocked(property string) (int, bool, error) {
	value, err := t.client.GetProperty(property, mpv.FormatDouble)
	if err != nil {
		if errors.Is(err, mpv.ErrPropertyUnavailable) || errors.Is(err, mpv.ErrPropertyNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read %s: %w", property, err)
	}

	seconds, ok := asFloat64(value)
	if !ok {
		return 0, false, nil
	}

	if math.IsNaN(seconds) || seconds < 0 {
		return 0, false, nil
	}

	return int(math.Round(seconds * 1000)), true, nil
}

func asFloat64(value any) (float64, bool) {
	switch cast := value.(type) {
	case float64:
		return cast, true
	case float32:
		return float64(cast), true
	case int:
		return float64(cast), true
	case int64:
		return float64(cast), true
	default:
		return 0, false
	}
}

func setOptionString(client *mpv.Mpv, name string, value string) {
	_ = client.SetOptionString(name, value)
}
