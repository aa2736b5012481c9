package mediasession

import (
	"sync"

	"github.com/gen2brain/beeep"
	zlog "github.com/rs/zerolog/log"
)

// DesktopSurface is the default now-playing surface: a desktop notification
// per song change plus structured logs for state transitions. Notification
// failures degrade to log-only.
type DesktopSurface struct {
	mu   sync.Mutex
	last Metadata
}

// NewDesktopSurface creates the desktop surface.
func NewDesktopSurface() *DesktopSurface {
	return &DesktopSurface{}
}

func (s *DesktopSurface) SetMetadata(meta Metadata) {
	s.mu.Lock()
	changed := meta != s.last
	s.last = meta
	s.mu.Unlock()

	if !changed || meta.Title == "" {
		return
	}

	body := meta.Title
	if meta.Artist != "" {
		body = meta.Title + " / " + meta.Artist
	}
	if err := beeep.Notify("Now playing", body, ""); err != nil {
		zlog.Debug().Msgf("mediasession: notification failed: %v", err)
	}
	zlog.Info().Msgf("mediasession: now playing: title=%s artist=%s album=%s", meta.Title, meta.Artist, meta.Album)
}

func (s *DesktopSurface) SetPlaybackState(playing bool) {
	zlog.Debug().Msgf("mediasession: playback state: playing=%t", playing)
}

func (s *DesktopSurface) Clear() {
	s.mu.Lock()
	s.last = Metadata{}
	s.mu.Unlock()
	zlog.Debug().Msg("mediasession: now-playing cleared")
}
