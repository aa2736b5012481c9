package library

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wymusic/player/internal/domain/song"
	"github.com/wymusic/player/internal/infra/localstore"
)

// fakeCatalog scripts the remote catalog.
type fakeCatalog struct {
	songs       map[string]song.RemoteSong
	unavailable map[string]string
	urlErr      error

	detailCalls atomic.Int32
	urlCalls    atomic.Int32
}

func (f *fakeCatalog) Search(ctx context.Context, keywords string) ([]song.RemoteSong, error) {
	out := make([]song.RemoteSong, 0, len(f.songs))
	for _, s := range f.songs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeCatalog) RecommendSongs(ctx context.Context) ([]song.RemoteSong, error) {
	return f.Search(ctx, "daily")
}

func (f *fakeCatalog) SongDetail(ctx context.Context, ids []string) ([]song.RemoteSong, error) {
	f.detailCalls.Add(1)
	out := make([]song.RemoteSong, 0, len(ids))
	for _, id := range ids {
		if s, ok := f.songs[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) SongURL(ctx context.Context, id, quality string) (string, error) {
	f.urlCalls.Add(1)
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "https://cdn.example/" + id + ".mp3", nil
}

func (f *fakeCatalog) Lyric(ctx context.Context, id string) (string, error) {
	return "[00:00.00] lyric " + id, nil
}

func (f *fakeCatalog) Check(ctx context.Context, id string) (bool, string, error) {
	if msg, bad := f.unavailable[id]; bad {
		return false, msg, nil
	}
	return true, "", nil
}

// fakeStore scripts the native file service.
type fakeStore struct {
	mu            sync.Mutex
	downloadCalls int
	downloadGate  chan struct{} // when set, downloads block until closed
	deleteErr     error
	deleted       []string
	files         map[string]song.LocalSong // by path
	dirFiles      []string
}

func (f *fakeStore) DownloadFile(ctx context.Context, res localstore.Resources, filename string) (*song.LocalSong, error) {
	f.mu.Lock()
	f.downloadCalls++
	gate := f.downloadGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	name, artists, id, _ := song.ParseFileName(filename)
	rec := song.LocalSong{
		Path:      filepath.Join("/music", filename+".mp3"),
		Name:      name,
		Artists:   artists,
		CatalogID: id,
		Duration:  3 * time.Minute,
	}
	if res.LyricText != nil {
		rec.Lyric = *res.LyricText
	}
	return &rec, nil
}

func (f *fakeStore) DeleteFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeStore) ListFilesInDirectories(ctx context.Context, dirs []string) ([]string, error) {
	return f.dirFiles, nil
}

func (f *fakeStore) GetMetadataForPaths(ctx context.Context, paths []string) ([]song.LocalSong, error) {
	out := make([]song.LocalSong, 0, len(paths))
	for _, p := range paths {
		if rec, ok := f.files[p]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func remoteSong(id, name string) song.RemoteSong {
	return song.RemoteSong{ID: id, Name: name, Artists: []string{"Artist"}, Duration: 3 * time.Minute}
}

func newTestResolver(catalog *fakeCatalog, store *fakeStore) (*Resolver, *Cache) {
	cache := NewCache()
	return NewResolver(cache, catalog, store, Config{Quality: "standard"}), cache
}

func TestResolveLocalPath(t *testing.T) {
	r, cache := newTestResolver(&fakeCatalog{}, &fakeStore{})
	cache.PutLocal(song.LocalSong{Path: "/music/a.mp3", Name: "A"})

	res, err := r.Resolve(context.Background(), "/music/a.mp3")
	require.NoError(t, err)
	require.NotNil(t, res.Local)
	assert.Equal(t, "A", res.Local.Name)
	assert.Nil(t, res.Remote)
}

func TestResolveCatalogIDPrefersLinkedLocal(t *testing.T) {
	r, cache := newTestResolver(&fakeCatalog{}, &fakeStore{})
	cache.PutRemote(remoteSong("101", "Remote Name"))
	cache.PutLocal(song.LocalSong{Path: "/music/x.mp3", Name: "Local Name", CatalogID: "101"})
	cache.Link("101", "/music/x.mp3")

	res, err := r.Resolve(context.Background(), "101")
	require.NoError(t, err)
	require.NotNil(t, res.Local)
	assert.Equal(t, "Local Name", res.Local.Name)
	assert.Equal(t, "Local Name", res.Name(), "local record wins the merge")
}

func TestResolveUnknownIsNotFound(t *testing.T) {
	r, _ := newTestResolver(&fakeCatalog{}, &fakeStore{})

	_, err := r.Resolve(context.Background(), "999")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.Resolve(context.Background(), "/nowhere.mp3")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAcquireDownloadsAndLinks(t *testing.T) {
	catalog := &fakeCatalog{songs: map[string]song.RemoteSong{"101": remoteSong("101", "Song")}}
	store := &fakeStore{}
	r, cache := newTestResolver(catalog, store)

	local, err := r.Acquire(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "101", local.CatalogID)
	assert.Contains(t, local.Lyric, "lyric 101")

	remote, ok := cache.Remote("101")
	require.True(t, ok)
	assert.Equal(t, local.Path, remote.LocalPath, "records are cross-linked")

	res, err := r.Resolve(context.Background(), "101")
	require.NoError(t, err)
	assert.NotNil(t, res.Local)
}

func TestAcquireIdempotent(t *testing.T) {
	catalog := &fakeCatalog{songs: map[string]song.RemoteSong{"101": remoteSong("101", "Song")}}
	store := &fakeStore{}
	r, _ := newTestResolver(catalog, store)

	first, err := r.Acquire(context.Background(), "101")
	require.NoError(t, err)
	second, err := r.Acquire(context.Background(), "101")
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, 1, store.downloadCalls, "second acquire is served from the cache")
}

func TestAcquireConcurrentCoalesces(t *testing.T) {
	catalog := &fakeCatalog{songs: map[string]song.RemoteSong{"101": remoteSong("101", "Song")}}
	gate := make(chan struct{})
	store := &fakeStore{downloadGate: gate}
	r, _ := newTestResolver(catalog, store)

	const callers = 5
	results := make([]*song.LocalSong, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Acquire(context.Background(), "101")
		}(i)
	}

	// Let every goroutine reach the in-flight download, then release it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Path, results[i].Path)
	}
	assert.Equal(t, 1, store.downloadCalls, "exactly one underlying download")
}

func TestAcquireUnavailableSong(t *testing.T) {
	catalog := &fakeCatalog{
		songs:       map[string]song.RemoteSong{"101": remoteSong("101", "Song")},
		unavailable: map[string]string{"101": "VIP only"},
	}
	store := &fakeStore{}
	r, cache := newTestResolver(catalog, store)

	_, err := r.Acquire(context.Background(), "101")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAcquisitionFailed))
	assert.Contains(t, err.Error(), "VIP only")

	_, ok := cache.LocalByID("101")
	assert.False(t, ok, "no partial record linked on failure")
	assert.Equal(t, 0, store.downloadCalls)
}

func TestAcquireURLFailureLeavesNoLink(t *testing.T) {
	catalog := &fakeCatalog{
		songs:  map[string]song.RemoteSong{"101": remoteSong("101", "Song")},
		urlErr: errors.New("network down"),
	}
	store := &fakeStore{}
	r, cache := newTestResolver(catalog, store)

	_, err := r.Acquire(context.Background(), "101")
	assert.True(t, errors.Is(err, ErrAcquisitionFailed))

	remote, ok := cache.Remote("101")
	require.True(t, ok, "metadata may be cached")
	assert.Empty(t, remote.LocalPath, "but no local link exists")
}

func TestAcquireLocalPathIdentity(t *testing.T) {
	r, cache := newTestResolver(&fakeCatalog{}, &fakeStore{})
	cache.PutLocal(song.LocalSong{Path: "/music/a.mp3", Name: "A"})

	local, err := r.Acquire(context.Background(), "/music/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "A", local.Name)

	_, err = r.Acquire(context.Background(), "/music/missing.mp3")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteLocalFailClosed(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("device busy")}
	r, cache := newTestResolver(&fakeCatalog{}, store)
	cache.PutLocal(song.LocalSong{Path: "/music/a.mp3", CatalogID: "101"})

	err := r.DeleteLocal(context.Background(), "/music/a.mp3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeletionFailed))

	_, ok := cache.LocalByPath("/music/a.mp3")
	assert.True(t, ok, "record kept when deletion did not confirm")
}

func TestDeleteLocalByCatalogID(t *testing.T) {
	store := &fakeStore{}
	r, cache := newTestResolver(&fakeCatalog{}, store)
	cache.PutRemote(remoteSong("101", "Song"))
	cache.PutLocal(song.LocalSong{Path: "/music/a.mp3", CatalogID: "101"})
	cache.Link("101", "/music/a.mp3")

	require.NoError(t, r.DeleteLocal(context.Background(), "101"))

	assert.Equal(t, []string{"/music/a.mp3"}, store.deleted)
	_, ok := cache.LocalByPath("/music/a.mp3")
	assert.False(t, ok)
	remote, ok := cache.Remote("101")
	require.True(t, ok)
	assert.Empty(t, remote.LocalPath, "remote link severed")
}

func TestDescribeMergesLocalWins(t *testing.T) {
	catalog := &fakeCatalog{songs: map[string]song.RemoteSong{
		"101": remoteSong("101", "Remote 101"),
		"202": remoteSong("202", "Remote 202"),
	}}
	r, cache := newTestResolver(catalog, &fakeStore{})
	cache.PutRemote(remoteSong("101", "Remote 101"))
	cache.PutLocal(song.LocalSong{Path: "/music/x.mp3", Name: "Local 101", CatalogID: "101"})
	cache.Link("101", "/music/x.mp3")

	out, err := r.Describe(context.Background(), []string{"101", "202", "/music/x.mp3"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "Local 101", out[0].Name())
	assert.Equal(t, "Remote 202", out[1].Name())
	assert.Equal(t, int32(1), catalog.detailCalls.Load(), "one batch fetch for the missing id")
}

func TestScanLocalAddsOnlyFresh(t *testing.T) {
	store := &fakeStore{
		dirFiles: []string{"/music/a.mp3", "/music/b.mp3"},
		files: map[string]song.LocalSong{
			"/music/a.mp3": {Path: "/music/a.mp3", Name: "A"},
			"/music/b.mp3": {Path: "/music/b.mp3", Name: "B"},
		},
	}
	r, cache := newTestResolver(&fakeCatalog{}, store)
	cache.PutLocal(song.LocalSong{Path: "/music/a.mp3", Name: "A"})

	added, err := r.ScanLocal(context.Background(), []string{"/music"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	_, ok := cache.LocalByPath("/music/b.mp3")
	assert.True(t, ok)
}

func TestLocalsOrderedByPath(t *testing.T) {
	_, cache := newTestResolver(&fakeCatalog{}, &fakeStore{})
	for _, p := range []string{"/music/c.mp3", "/music/a.mp3", "/music/b.mp3"} {
		cache.PutLocal(song.LocalSong{Path: p})
	}

	locals := cache.Locals()
	require.Len(t, locals, 3)
	assert.Equal(t, "/music/a.mp3", locals[0].Path)
	assert.Equal(t, "/music/b.mp3", locals[1].Path)
	assert.Equal(t, "/music/c.mp3", locals[2].Path)
}

func TestRemoteLastAccessRefreshedOnRead(t *testing.T) {
	_, cache := newTestResolver(&fakeCatalog{}, &fakeStore{})
	cache.PutRemote(remoteSong("101", "Song"))

	first, ok := cache.Remote("101")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)
	second, ok := cache.Remote("101")
	require.True(t, ok)

	assert.True(t, second.LastAccess.After(first.LastAccess))
}
