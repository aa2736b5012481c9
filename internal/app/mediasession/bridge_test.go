package mediasession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSurface captures everything published to it.
type recordingSurface struct {
	metadata []Metadata
	states   []bool
	clears   int
}

func (r *recordingSurface) SetMetadata(meta Metadata)     { r.metadata = append(r.metadata, meta) }
func (r *recordingSurface) SetPlaybackState(playing bool) { r.states = append(r.states, playing) }
func (r *recordingSurface) Clear()                        { r.clears++ }

func TestHandleActionDispatches(t *testing.T) {
	b := NewBridge(&recordingSurface{})

	var got []string
	var seekPos float64
	b.Bind(Callbacks{
		OnPlay:     func() { got = append(got, "play") },
		OnPause:    func() { got = append(got, "pause") },
		OnPrevious: func() { got = append(got, "prev") },
		OnNext:     func() { got = append(got, "next") },
		OnSeek:     func(pos float64) { got = append(got, "seek"); seekPos = pos },
	})

	b.HandleAction(ActionPlay, 0)
	b.HandleAction(ActionPause, 0)
	b.HandleAction(ActionPrevious, 0)
	b.HandleAction(ActionNext, 0)
	b.HandleAction(ActionSeekTo, 42.5)
	b.HandleAction(Action("stop"), 0) // unknown, ignored

	assert.Equal(t, []string{"play", "pause", "prev", "next", "seek"}, got)
	assert.InDelta(t, 42.5, seekPos, 0.001)
}

func TestRebindReplacesHandlersWholesale(t *testing.T) {
	b := NewBridge(&recordingSurface{})

	staleFired := false
	b.Bind(Callbacks{OnNext: func() { staleFired = true }})

	nextCount := 0
	b.Bind(Callbacks{OnPlay: func() {}})
	b.Bind(Callbacks{OnNext: func() { nextCount++ }})

	b.HandleAction(ActionNext, 0)

	assert.False(t, staleFired, "stale handler must never fire after rebind")
	assert.Equal(t, 1, nextCount, "exactly the latest handler fires")
}

func TestUnboundBridgeIgnoresActions(t *testing.T) {
	b := NewBridge(&recordingSurface{})
	b.HandleAction(ActionPlay, 0) // must not panic
}

func TestNilCallbackSkipped(t *testing.T) {
	b := NewBridge(&recordingSurface{})
	b.Bind(Callbacks{OnPlay: func() {}})
	b.HandleAction(ActionSeekTo, 10) // OnSeek is nil, must not panic
}

func TestPublishAndClear(t *testing.T) {
	surface := &recordingSurface{}
	b := NewBridge(surface)

	meta := Metadata{Title: "Song", Artist: "Artist", Album: "Album"}
	b.PublishMetadata(meta)
	b.PublishState(true)
	b.PublishState(false)
	b.ClearNowPlaying()

	require.Len(t, surface.metadata, 1)
	assert.Equal(t, meta, surface.metadata[0])
	assert.Equal(t, []bool{true, false}, surface.states)
	assert.Equal(t, 1, surface.clears)
}

func TestUnbindClearsSurfaceAndHandlers(t *testing.T) {
	surface := &recordingSurface{}
	b := NewBridge(surface)

	fired := false
	b.Bind(Callbacks{OnPlay: func() { fired = true }})
	b.Unbind()
	b.HandleAction(ActionPlay, 0)

	assert.False(t, fired)
	assert.Equal(t, 1, surface.clears)
}
