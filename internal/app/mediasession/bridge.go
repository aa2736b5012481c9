// Package mediasession bridges player state to the operating system's
// now-playing surface and routes hardware media keys back into the player.
package mediasession

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Action is a media-key intent delivered by the OS surface.
type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionPrevious Action = "previoustrack"
	ActionNext     Action = "nexttrack"
	ActionSeekTo   Action = "seekto"
)

// Callbacks are the player intents a bound session dispatches to. Nil
// callbacks are skipped.
type Callbacks struct {
	OnPlay     func()
	OnPause    func()
	OnPrevious func()
	OnNext     func()
	OnSeek     func(positionSec float64)
}

// Metadata describes the current song for the now-playing surface.
type Metadata struct {
	Title      string
	Artist     string
	Album      string
	ArtworkRef string
}

// Surface is the OS-level now-playing integration the bridge publishes to.
type Surface interface {
	SetMetadata(meta Metadata)
	SetPlaybackState(playing bool)
	Clear()
}

// Bridge owns the single media-session binding. Handlers are bound once at
// player construction; rebinding replaces the previous set wholesale so
// stale handlers can never fire.
type Bridge struct {
	mu        sync.Mutex
	surface   Surface
	callbacks Callbacks
	bound     bool
}

// NewBridge creates a bridge over the given surface.
func NewBridge(surface Surface) *Bridge {
	return &Bridge{surface: surface}
}

// Bind installs the callback set, dropping any previously bound set first.
func (b *Bridge) Bind(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound {
		zlog.Debug().Msg("mediasession: rebinding handlers, previous set dropped")
	}
	b.callbacks = cb
	b.bound = true
}

// HandleAction dispatches one OS media-key intent to the bound callback.
// Unbound bridges and unknown actions are ignored.
func (b *Bridge) HandleAction(action Action, positionSec float64) {
	b.mu.Lock()
	cb := b.callbacks
	bound := b.bound
	b.mu.Unlock()

	if !bound {
		return
	}

	switch action {
	case ActionPlay:
		if cb.OnPlay != nil {
			cb.OnPlay()
		}
	case ActionPause:
		if cb.OnPause != nil {
			cb.OnPause()
		}
	case ActionPrevious:
		if cb.OnPrevious != nil {
			cb.OnPrevious()
		}
	case ActionNext:
		if cb.OnNext != nil {
			cb.OnNext()
		}
	case ActionSeekTo:
		if cb.OnSeek != nil {
			cb.OnSeek(positionSec)
		}
	default:
		zlog.Debug().Msgf("mediasession: ignoring unknown action %q", action)
	}
}

// PublishMetadata pushes the current song's metadata to the surface.
func (b *Bridge) PublishMetadata(meta Metadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface.SetMetadata(meta)
}

// PublishState pushes the playing/paused state to the surface.
func (b *Bridge) PublishState(playing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface.SetPlaybackState(playing)
}

// ClearNowPlaying wipes the surface's metadata and state while keeping the
// handler binding intact.
func (b *Bridge) ClearNowPlaying() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface.Clear()
}

// Unbind drops the handler set and clears the surface. Used on teardown.
func (b *Bridge) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = Callbacks{}
	b.bound = false
	b.surface.Clear()
}
