// Package audio provides the playback engine abstraction and the bounded
// pool of open engine instances.
package audio

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Errors surfaced by engine handles.
var (
	ErrHandleClosed = errors.New("audio handle closed")
	ErrOpenFailed   = errors.New("failed to open audio source")
)

// Handle is one playable audio instance bound to a single source. All
// methods are safe for concurrent use.
type Handle interface {
	// Play starts or resumes playback from the current position.
	Play() error
	// Pause halts playback without losing the position.
	Pause()
	// Stop halts playback and rewinds to the start.
	Stop()
	// Seek moves the position. Values beyond the duration clamp to the end.
	Seek(pos time.Duration) error
	// Position reports the current playback position.
	Position() time.Duration
	// Duration reports the total length of the source.
	Duration() time.Duration
	// Playing reports whether audio is currently being produced.
	Playing() bool
	// SetVolume sets the output volume in [0, 1].
	SetVolume(v float64)
	// Close releases the handle. Any later Play returns ErrHandleClosed.
	Close() error
}

// Engine opens audio sources into playable handles.
type Engine interface {
	Open(path string) (Handle, error)
}
