package library

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/wymusic/player/internal/domain/song"
	"github.com/wymusic/player/internal/infra/localstore"
)

// Errors surfaced by resolution and acquisition.
var (
	ErrNotFound          = errors.New("song not found")
	ErrAcquisitionFailed = errors.New("acquisition failed")
	ErrDeletionFailed    = errors.New("deletion failed")
)

// Catalog is the remote catalog surface the resolver consumes.
type Catalog interface {
	Search(ctx context.Context, keywords string) ([]song.RemoteSong, error)
	RecommendSongs(ctx context.Context) ([]song.RemoteSong, error)
	SongDetail(ctx context.Context, ids []string) ([]song.RemoteSong, error)
	SongURL(ctx context.Context, id, quality string) (string, error)
	Lyric(ctx context.Context, id string) (string, error)
	Check(ctx context.Context, id string) (bool, string, error)
}

// LocalStore is the native file service the resolver consumes.
type LocalStore interface {
	DownloadFile(ctx context.Context, res localstore.Resources, filename string) (*song.LocalSong, error)
	DeleteFile(ctx context.Context, path string) error
	ListFilesInDirectories(ctx context.Context, dirs []string) ([]string, error)
	GetMetadataForPaths(ctx context.Context, paths []string) ([]song.LocalSong, error)
}

// Resolved is the outcome of resolving one identity. At least one side is
// set; both are set for a downloaded catalog song.
type Resolved struct {
	Local  *song.LocalSong
	Remote *song.RemoteSong
}

// Playable returns the local file path when a playable copy exists.
func (r Resolved) Playable() (string, bool) {
	if r.Local != nil {
		return r.Local.Path, true
	}
	return "", false
}

// Name returns the display name, preferring the local record.
func (r Resolved) Name() string {
	if r.Local != nil {
		return r.Local.Name
	}
	if r.Remote != nil {
		return r.Remote.Name
	}
	return ""
}

// Artists returns the artist list, preferring the local record.
func (r Resolved) Artists() []string {
	if r.Local != nil {
		return r.Local.Artists
	}
	if r.Remote != nil {
		return r.Remote.Artists
	}
	return nil
}

// Album returns the album name, preferring the local record.
func (r Resolved) Album() string {
	if r.Local != nil {
		return r.Local.Album
	}
	if r.Remote != nil {
		return r.Remote.Album
	}
	return ""
}

// Artwork returns an artwork reference, preferring the local copy.
func (r Resolved) Artwork() string {
	if r.Local != nil && r.Local.ArtworkBase64 != "" {
		return r.Local.ArtworkBase64
	}
	if r.Remote != nil {
		return r.Remote.ArtworkRef
	}
	return ""
}

// Config represents resolver configuration.
type Config struct {
	// Quality is the playback-url quality level requested on acquisition.
	Quality string
}

// acquisition is one in-flight download; late callers wait on done and share
// the result.
type acquisition struct {
	done  chan struct{}
	local *song.LocalSong
	err   error
}

// Resolver reconciles song identities against the cache, the remote catalog
// and the local store. It is the only writer of cache records.
type Resolver struct {
	cache   *Cache
	catalog Catalog
	store   LocalStore
	config  Config

	inflightMu sync.Mutex
	inflight   map[string]*acquisition
}

// NewResolver creates a resolver over the given collaborators.
func NewResolver(cache *Cache, catalog Catalog, store LocalStore, cfg Config) *Resolver {
	return &Resolver{
		cache:    cache,
		catalog:  catalog,
		store:    store,
		config:   cfg,
		inflight: make(map[string]*acquisition),
	}
}

// Resolve maps an identity to its records without network side effects.
// Catalog ids resolve to the cached remote record plus the linked local
// record when downloaded; local paths resolve directly.
func (r *Resolver) Resolve(ctx context.Context, identity string) (Resolved, error) {
	if identity == "" {
		return Resolved{}, errors.Mark(errors.New("empty identity"), ErrNotFound)
	}

	if song.IsCatalogID(identity) {
		remote, ok := r.cache.Remote(identity)
		if !ok {
			return Resolved{}, errors.Mark(errors.Newf("unknown catalog id %s", identity), ErrNotFound)
		}
		res := Resolved{Remote: &remote}
		if remote.LocalPath != "" {
			if local, ok := r.cache.LocalByPath(remote.LocalPath); ok {
				res.Local = &local
			}
		}
		return res, nil
	}

	local, ok := r.cache.LocalByPath(identity)
	if !ok {
		return Resolved{}, errors.Mark(errors.Newf("unknown local path %s", identity), ErrNotFound)
	}
	return Resolved{Local: &local}, nil
}

// Acquire ensures a playable local copy of the identity exists, downloading
// it if needed. Concurrent calls for the same identity coalesce onto one
// in-flight download; every caller gets the same record or the same error.
func (r *Resolver) Acquire(ctx context.Context, identity string) (*song.LocalSong, error) {
	if !song.IsCatalogID(identity) {
		// A path identity can only be served from the cache.
		if local, ok := r.cache.LocalByPath(identity); ok {
			return &local, nil
		}
		return nil, errors.Mark(errors.Newf("cannot acquire local path %s", identity), ErrNotFound)
	}

	// Idempotent: already linked.
	if local, ok := r.cache.LocalByID(identity); ok {
		return &local, nil
	}

	r.inflightMu.Lock()
	if a, ok := r.inflight[identity]; ok {
		r.inflightMu.Unlock()
		select {
		case <-a.done:
			return a.local, a.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a := &acquisition{done: make(chan struct{})}
	r.inflight[identity] = a
	r.inflightMu.Unlock()

	a.local, a.err = r.acquire(ctx, identity)
	close(a.done)

	r.inflightMu.Lock()
	delete(r.inflight, identity)
	r.inflightMu.Unlock()

	return a.local, a.err
}

// acquire performs the actual download. Nothing is linked into the cache
// until every artifact has been fetched and persisted.
func (r *Resolver) acquire(ctx context.Context, id string) (*song.LocalSong, error) {
	job := uuid.NewString()[:8]
	zlog.Debug().Msgf("library: acquiring song: id=%s job=%s", id, job)

	ok, msg, err := r.catalog.Check(ctx, id)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "availability check failed"), ErrAcquisitionFailed)
	}
	if !ok {
		return nil, errors.Mark(errors.Newf("song %s unavailable: %s", id, msg), ErrAcquisitionFailed)
	}

	remote, cached := r.cache.Remote(id)
	if !cached {
		details, err := r.catalog.SongDetail(ctx, []string{id})
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "metadata fetch failed"), ErrAcquisitionFailed)
		}
		if len(details) == 0 {
			return nil, errors.Mark(errors.Newf("no metadata for song %s", id), ErrAcquisitionFailed)
		}
		remote = details[0]
		r.cache.PutRemote(remote)
	}

	mp3URL, err := r.catalog.SongURL(ctx, id, r.config.Quality)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "playback url fetch failed"), ErrAcquisitionFailed)
	}
	lyric, err := r.catalog.Lyric(ctx, id)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "lyric fetch failed"), ErrAcquisitionFailed)
	}

	filename := song.FileName(remote.Name, remote.Artists, id)
	local, err := r.store.DownloadFile(ctx, localstore.Resources{
		MP3URL:    &mp3URL,
		ImageURL:  &remote.ArtworkRef,
		LyricText: &lyric,
	}, filename)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "download failed"), ErrAcquisitionFailed)
	}

	local.CatalogID = id
	if local.Album == "" {
		local.Album = remote.Album
	}
	if local.Duration == 0 {
		local.Duration = remote.Duration
	}
	r.cache.PutLocal(*local)
	r.cache.Link(id, local.Path)

	zlog.Info().Msgf("library: acquired song: id=%s path=%s job=%s", id, local.Path, job)
	return local, nil
}

// DeleteLocal removes the downloaded copy of the identity. Fail-closed: the
// cache keeps its records unless the file deletion confirmed.
func (r *Resolver) DeleteLocal(ctx context.Context, identity string) error {
	path := identity
	if song.IsCatalogID(identity) {
		local, ok := r.cache.LocalByID(identity)
		if !ok {
			return nil // nothing local to delete
		}
		path = local.Path
	}

	if err := r.store.DeleteFile(ctx, path); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to delete %s", path), ErrDeletionFailed)
	}
	r.cache.RemoveLocal(path)
	return nil
}

// Describe returns records for the given identities, local record winning
// over remote per identity. Unknown catalog ids are fetched remotely in one
// batch and cached; identities that still cannot be served are skipped.
func (r *Resolver) Describe(ctx context.Context, identities []string) ([]Resolved, error) {
	missing := lo.Filter(identities, func(id string, _ int) bool {
		if !song.IsCatalogID(id) {
			return false
		}
		if _, ok := r.cache.LocalByID(id); ok {
			return false
		}
		_, ok := r.cache.Remote(id)
		return !ok
	})

	if len(missing) > 0 {
		details, err := r.catalog.SongDetail(ctx, missing)
		if err != nil {
			return nil, errors.Wrap(err, "batch metadata fetch failed")
		}
		for _, rec := range details {
			r.cache.PutRemote(rec)
		}
	}

	out := make([]Resolved, 0, len(identities))
	for _, id := range identities {
		res, err := r.Resolve(ctx, id)
		if err != nil {
			zlog.Debug().Msgf("library: describe skipping %s: %v", id, err)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Locals returns every cached local record.
func (r *Resolver) Locals() []song.LocalSong {
	return r.cache.Locals()
}

// Search queries the catalog and caches the results as remote records.
func (r *Resolver) Search(ctx context.Context, keywords string) ([]song.RemoteSong, error) {
	results, err := r.catalog.Search(ctx, keywords)
	if err != nil {
		return nil, err
	}
	for _, rec := range results {
		r.cache.PutRemote(rec)
	}
	return results, nil
}

// RecommendSongs fetches the daily recommendation list and caches it.
func (r *Resolver) RecommendSongs(ctx context.Context) ([]song.RemoteSong, error) {
	results, err := r.catalog.RecommendSongs(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range results {
		r.cache.PutRemote(rec)
	}
	return results, nil
}

// ScanLocal enumerates the audio directories and loads metadata for paths
// not yet cached. Returns how many records were added.
func (r *Resolver) ScanLocal(ctx context.Context, dirs []string) (int, error) {
	paths, err := r.store.ListFilesInDirectories(ctx, dirs)
	if err != nil {
		return 0, errors.Wrap(err, "directory scan failed")
	}

	known := r.cache.LocalPaths()
	fresh := lo.Filter(paths, func(path string, _ int) bool {
		return !lo.Contains(known, path)
	})
	if len(fresh) == 0 {
		return 0, nil
	}

	records, err := r.store.GetMetadataForPaths(ctx, fresh)
	if err != nil {
		return 0, errors.Wrap(err, "metadata scan failed")
	}
	for _, rec := range records {
		r.cache.PutLocal(rec)
	}

	zlog.Info().Msgf("library: scanned %d directories, added %d songs", len(dirs), len(records))
	return len(records), nil
}
