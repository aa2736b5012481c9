// Package player implements the playback controller: the single writer of
// playback and queue state, feeding the audio pool, the media session and
// the snapshot store.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/wymusic/player/internal/app/audio"
	"github.com/wymusic/player/internal/app/library"
	"github.com/wymusic/player/internal/app/mediasession"
	"github.com/wymusic/player/internal/domain/queue"
	"github.com/wymusic/player/internal/domain/song"
)

// Errors surfaced by the controller.
var (
	ErrNoSong              = errors.New("no song selected")
	ErrPlaybackStartFailed = errors.New("playback start failed")
)

// snapshotKey is the logical key the controller persists its state under.
const snapshotKey = "player"

// Library is the song library surface the controller consumes.
type Library interface {
	Resolve(ctx context.Context, identity string) (library.Resolved, error)
	Acquire(ctx context.Context, identity string) (*song.LocalSong, error)
	DeleteLocal(ctx context.Context, identity string) error
}

// Bridge is the media-session surface the controller consumes.
type Bridge interface {
	Bind(cb mediasession.Callbacks)
	PublishMetadata(meta mediasession.Metadata)
	PublishState(playing bool)
	ClearNowPlaying()
	Unbind()
}

// Notifier surfaces failures to the user.
type Notifier interface {
	Error(title, message string)
}

// Snapshots persists controller state between sessions.
type Snapshots interface {
	Save(name string, value any) error
	Load(name string, out any) (bool, error)
}

// Config represents controller configuration.
type Config struct {
	// Volume is the initial output volume in [0, 1].
	Volume float64
	// TickInterval is the progress publication period.
	TickInterval time.Duration
}

// State is a read-only snapshot of the controller.
type State struct {
	Current   string
	Queue     []string
	Position  float64 // seconds
	Playing   bool
	Loading   bool
	Volume    float64
	Lyric     string
	Downloads []string
}

// stateBlob is the persisted subset of State.
type stateBlob struct {
	Current  string   `json:"current"`
	Queue    []string `json:"queue"`
	Position float64  `json:"position"`
	Volume   float64  `json:"volume"`
}

// Controller is the playback state machine. All state transitions are
// serialized through its mutex; slow work (acquisition, decoding) happens
// outside the lock with a generation check before results commit.
type Controller struct {
	lib       Library
	engine    audio.Engine
	pool      *audio.Pool
	bridge    Bridge
	notifier  Notifier
	snapshots Snapshots

	mu        sync.Mutex
	queue     *queue.Queue
	current   string
	position  float64
	playing   bool
	loading   bool
	volume    float64
	lyric     string
	downloads []string
	handle    audio.Handle
	gen       uint64 // bumps on every Play; stale async results are discarded

	tick time.Duration
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates the controller, binds the media session once and starts the
// progress loop.
func New(lib Library, engine audio.Engine, pool *audio.Pool, bridge Bridge, notifier Notifier, snapshots Snapshots, cfg Config) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 800 * time.Millisecond
	}
	c := &Controller{
		lib:       lib,
		engine:    engine,
		pool:      pool,
		bridge:    bridge,
		notifier:  notifier,
		snapshots: snapshots,
		queue:     queue.New(),
		volume:    clampVolume(cfg.Volume),
		tick:      cfg.TickInterval,
		done:      make(chan struct{}),
	}

	c.bridge.Bind(mediasession.Callbacks{
		OnPlay:     func() { _ = c.Resume(context.Background()) },
		OnPause:    func() { c.Pause() },
		OnPrevious: func() { _ = c.PlayNext(context.Background(), queue.DirectionPrev) },
		OnNext:     func() { _ = c.PlayNext(context.Background(), queue.DirectionNext) },
		OnSeek:     func(pos float64) { _ = c.SetSeek(pos) },
	})

	c.wg.Add(1)
	go c.progressLoop()
	return c
}

// Restore loads persisted state (queue, current song, position, volume).
// Playback never resumes automatically.
func (c *Controller) Restore() error {
	var blob stateBlob
	ok, err := c.snapshots.Load(snapshotKey, &blob)
	if err != nil {
		return errors.Wrap(err, "failed to load player snapshot")
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Replace(blob.Queue)
	if blob.Current != "" && c.queue.Contains(blob.Current) {
		c.current = blob.Current
		c.position = blob.Position
	}
	if blob.Volume > 0 {
		c.volume = clampVolume(blob.Volume)
	}
	zlog.Info().Msgf("player: restored state: queue=%d current=%s", c.queue.Len(), c.current)
	return nil
}

// Play makes identity the current song and starts playback, acquiring a
// local copy first when needed. A newer Play issued while this one is still
// acquiring wins; the stale result is discarded silently.
func (c *Controller) Play(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrNoSong
	}

	c.mu.Lock()
	if identity != c.current {
		c.detachHandleLocked()
		c.position = 0
		c.lyric = ""
	}
	c.queue.Add(identity)
	c.current = identity
	c.loading = true
	c.playing = false
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	local, err := c.ensureLocal(ctx, identity)
	if err != nil {
		c.failPlay(gen, identity, err)
		return err
	}

	// Acquisition may have taken a while; a newer Play owns the state now.
	if c.stale(gen, identity) {
		zlog.Debug().Msgf("player: discarding stale play result for %s", identity)
		return nil
	}

	handle, pooled := c.pool.Get(identity)
	if !pooled {
		handle, err = c.engine.Open(local.Path)
		if err != nil {
			err = errors.Mark(errors.Wrapf(err, "cannot open %s", local.Path), ErrPlaybackStartFailed)
			c.failPlay(gen, identity, err)
			return err
		}
		c.pool.Put(identity, handle)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.current != identity {
		zlog.Debug().Msgf("player: discarding stale play result for %s", identity)
		return nil
	}

	// Only one song plays at a time. Stopping the pool inside the same
	// critical section as the commit keeps a stale Play from silencing a
	// newer one that already started its handle.
	c.pool.StopAll()

	handle.SetVolume(c.volume)
	if pos := c.position; pos > 0 {
		if err := handle.Seek(time.Duration(pos * float64(time.Second))); err != nil {
			zlog.Warn().Msgf("player: failed to restore position for %s: %v", identity, err)
		}
	}
	if err := handle.Play(); err != nil {
		c.loading = false
		c.playing = false
		err = errors.Mark(errors.Wrapf(err, "cannot start %s", identity), ErrPlaybackStartFailed)
		c.notifier.Error("Playback failed", err.Error())
		return err
	}

	c.handle = handle
	c.playing = true
	c.loading = false
	c.lyric = local.Lyric

	c.bridge.PublishMetadata(mediasession.Metadata{
		Title:      local.Name,
		Artist:     song.ArtistLine(local.Artists),
		Album:      local.Album,
		ArtworkRef: local.ArtworkBase64,
	})
	c.bridge.PublishState(true)
	c.saveSnapshotLocked()

	zlog.Info().Msgf("player: playing: identity=%s path=%s", identity, local.Path)
	return nil
}

// ensureLocal resolves the identity to a playable file, downloading when no
// local copy exists yet.
func (c *Controller) ensureLocal(ctx context.Context, identity string) (*song.LocalSong, error) {
	res, err := c.lib.Resolve(ctx, identity)
	if err == nil && res.Local != nil {
		return res.Local, nil
	}
	return c.lib.Acquire(ctx, identity)
}

// failPlay commits a play failure unless a newer Play superseded it.
func (c *Controller) failPlay(gen uint64, identity string, err error) {
	c.mu.Lock()
	superseded := c.gen != gen || c.current != identity
	if !superseded {
		c.loading = false
		c.playing = false
	}
	c.mu.Unlock()

	if superseded {
		return
	}
	zlog.Warn().Msgf("player: play failed: identity=%s err=%v", identity, err)
	c.notifier.Error("Playback failed", err.Error())
}

// stale reports whether a newer Play took ownership of the state.
func (c *Controller) stale(gen uint64, identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen || c.current != identity
}

// Resume continues the current song. With no open handle it restarts the
// current song from the stored position.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.current == "" {
		c.mu.Unlock()
		return ErrNoSong
	}
	if c.playing {
		c.mu.Unlock()
		return nil
	}
	if c.handle == nil {
		current := c.current
		c.mu.Unlock()
		return c.Play(ctx, current)
	}

	if err := c.handle.Play(); err != nil {
		c.mu.Unlock()
		return errors.Mark(errors.Wrap(err, "cannot resume"), ErrPlaybackStartFailed)
	}
	c.playing = true
	c.bridge.PublishState(true)
	c.mu.Unlock()
	return nil
}

// Pause halts playback, keeping the position. Not playing is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	if c.handle != nil {
		c.handle.Pause()
		c.position = c.handle.Position().Seconds()
	}
	c.playing = false
	c.bridge.PublishState(false)
	c.saveSnapshotLocked()
}

// SetSeek moves the playback position to the given second offset.
func (c *Controller) SetSeek(positionSec float64) error {
	if positionSec < 0 {
		positionSec = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = positionSec
	if c.handle == nil {
		return nil
	}
	return c.handle.Seek(time.Duration(positionSec * float64(time.Second)))
}

// SetVolume sets the output volume, clamped to [0, 1], and persists it.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clampVolume(v)
	if c.handle != nil {
		c.handle.SetVolume(c.volume)
	}
	c.saveSnapshotLocked()
}

// PlayNext advances the queue in the given direction, wrapping at the ends.
// An empty queue, or a current song no longer in the queue, is a no-op.
func (c *Controller) PlayNext(ctx context.Context, dir queue.Direction) error {
	c.mu.Lock()
	next, ok := c.queue.Next(c.current, dir)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	c.position = 0
	c.mu.Unlock()

	return c.Play(ctx, next)
}

// AddToQueue appends the identity unless it is already queued.
func (c *Controller) AddToQueue(identity string) {
	if identity == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Add(identity)
	c.saveSnapshotLocked()
}

// SetQueue replaces the queue wholesale. If the current song is not in the
// new queue its playback state is cleared.
func (c *Controller) SetQueue(identities []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Replace(identities)
	if c.current != "" && !c.queue.Contains(c.current) {
		c.clearCurrentLocked()
	}
	c.saveSnapshotLocked()
}

// RemoveFromQueue removes the identities from the queue. Removing the
// current song also clears playback and the now-playing surface.
func (c *Controller) RemoveFromQueue(identities ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.current
	removed := c.queue.Remove(identities...)
	if removed == 0 {
		return
	}
	if current != "" && lo.Contains(identities, current) {
		c.clearCurrentLocked()
	}
	c.saveSnapshotLocked()
}

// Queue returns the queued identities in order.
func (c *Controller) Queue() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Items()
}

// Download acquires a local copy of the identity without touching playback
// state. Failures surface as a notification only.
func (c *Controller) Download(ctx context.Context, identity string) error {
	c.mu.Lock()
	if !lo.Contains(c.downloads, identity) {
		c.downloads = append(c.downloads, identity)
	}
	c.mu.Unlock()

	_, err := c.lib.Acquire(ctx, identity)

	c.mu.Lock()
	c.downloads = lo.Without(c.downloads, identity)
	c.mu.Unlock()

	if err != nil {
		c.notifier.Error("Download failed", err.Error())
		return err
	}
	return nil
}

// Delete removes the local copy of the identity. Playback on it stops and
// its pooled handle closes before the file goes away; the queue drops both
// the identity and its linked counterpart only after deletion confirms.
func (c *Controller) Delete(ctx context.Context, identity string) error {
	// Gather every identity the song is known under.
	ids := []string{identity}
	if res, err := c.lib.Resolve(ctx, identity); err == nil {
		if res.Local != nil {
			ids = append(ids, res.Local.Path)
			if res.Local.CatalogID != "" {
				ids = append(ids, res.Local.CatalogID)
			}
		}
		if res.Remote != nil {
			ids = append(ids, res.Remote.ID)
		}
	}
	ids = lo.Uniq(ids)

	c.mu.Lock()
	if lo.Contains(ids, c.current) {
		c.clearCurrentLocked()
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.pool.Remove(id)
	}

	if err := c.lib.DeleteLocal(ctx, identity); err != nil {
		c.notifier.Error("Delete failed", err.Error())
		return err
	}

	c.mu.Lock()
	c.queue.Remove(ids...)
	c.saveSnapshotLocked()
	c.mu.Unlock()
	return nil
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Current:   c.current,
		Queue:     c.queue.Items(),
		Position:  c.position,
		Playing:   c.playing,
		Loading:   c.loading,
		Volume:    c.volume,
		Lyric:     c.lyric,
		Downloads: append([]string(nil), c.downloads...),
	}
}

// Close stops the progress loop, releases every handle and unbinds the
// media session.
func (c *Controller) Close() {
	close(c.done)
	c.wg.Wait()

	c.mu.Lock()
	c.saveSnapshotLocked()
	c.handle = nil
	c.playing = false
	c.mu.Unlock()

	c.pool.Close()
	c.bridge.Unbind()
}

// clearCurrentLocked wipes the current song and its playback state. Caller
// holds c.mu.
func (c *Controller) clearCurrentLocked() {
	c.detachHandleLocked()
	c.current = ""
	c.position = 0
	c.playing = false
	c.loading = false
	c.lyric = ""
	c.bridge.ClearNowPlaying()
}

// detachHandleLocked pauses and releases the current handle reference
// without evicting it from the pool. Caller holds c.mu.
func (c *Controller) detachHandleLocked() {
	if c.handle != nil {
		c.handle.Pause()
		c.handle = nil
	}
	c.playing = false
}

// saveSnapshotLocked persists the durable subset of state. Caller holds
// c.mu. Failures are logged, never surfaced.
func (c *Controller) saveSnapshotLocked() {
	blob := stateBlob{
		Current:  c.current,
		Queue:    c.queue.Items(),
		Position: c.position,
		Volume:   c.volume,
	}
	if err := c.snapshots.Save(snapshotKey, blob); err != nil {
		zlog.Warn().Msgf("player: failed to save snapshot: %v", err)
	}
}

// progressLoop publishes playback progress and advances the queue when the
// current song drains.
func (c *Controller) progressLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.onTick()
		}
	}
}

func (c *Controller) onTick() {
	c.mu.Lock()
	h := c.handle
	playing := c.playing
	c.mu.Unlock()

	if h == nil || !playing {
		return
	}

	pos := h.Position()
	dur := h.Duration()

	c.mu.Lock()
	if c.handle != h || !c.playing {
		c.mu.Unlock()
		return
	}
	c.position = pos.Seconds()
	ended := dur > 0 && pos >= dur
	if ended {
		// Mark stopped before advancing so a slow PlayNext cannot retrigger.
		c.playing = false
	}
	c.mu.Unlock()

	if ended {
		if err := c.PlayNext(context.Background(), queue.DirectionNext); err != nil {
			zlog.Warn().Msgf("player: auto-advance failed: %v", err)
		}
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
