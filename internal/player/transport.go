package player

// Transport abstracts the audio engine. The real implementation sits on
// libmpv behind a build tag; tests substitute a fake.
type Transport interface {
	Load(path string) error
	Play() error
	Pause() error
	Stop() error
	Seek(positionMS int) error
	// SetVolume takes a percentage in 0..100.
	SetVolume(volume int) error
	Playing() (bool, error)
	PositionMS() (int, error)
	DurationMS() (*int, error)
	SetOnEOF(callback func())
	Close() error
}
