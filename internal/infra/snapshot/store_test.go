package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playerBlob struct {
	Volume  float64  `json:"volume"`
	Queue   []string `json:"queue"`
	Current string   `json:"current"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), 1)
	require.NoError(t, err)

	in := playerBlob{Volume: 0.42, Queue: []string{"101", "/a.mp3"}, Current: "101"}
	require.NoError(t, store.Save("player", in))

	var out playerBlob
	ok, err := store.Load("player", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestKeyIsVersioned(t *testing.T) {
	store, err := New(t.TempDir(), 3)
	require.NoError(t, err)

	assert.Equal(t, "v3-player", store.Key("player"))

	require.NoError(t, store.Save("player", playerBlob{}))
	_, statErr := os.Stat(filepath.Join(storeDir(store), "v3-player.json"))
	assert.NoError(t, statErr)
}

func storeDir(s *Store) string { return s.dir }

func TestLoadMissingReturnsFalse(t *testing.T) {
	store, err := New(t.TempDir(), 1)
	require.NoError(t, err)

	var out playerBlob
	ok, err := store.Load("player", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadIgnoresOtherVersions(t *testing.T) {
	dir := t.TempDir()
	v1, err := New(dir, 1)
	require.NoError(t, err)
	require.NoError(t, v1.Save("player", playerBlob{Volume: 0.5}))

	v2, err := New(dir, 2)
	require.NoError(t, err)

	var out playerBlob
	ok, err := v2.Load("player", &out)
	require.NoError(t, err)
	assert.False(t, ok, "a version bump orphans older blobs")
}

func TestLoadToleratesExtraFields(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 1)
	require.NoError(t, err)

	body := `{"version": 1, "data": {"volume": 0.7, "queue": ["1"], "legacy_field": true}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v1-player.json"), []byte(body), 0644))

	var out playerBlob
	ok, err := store.Load("player", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.7, out.Volume, 0.001)
	assert.Equal(t, []string{"1"}, out.Queue)
}

func TestSaveRejectsNonObject(t *testing.T) {
	store, err := New(t.TempDir(), 1)
	require.NoError(t, err)

	assert.Error(t, store.Save("player", 42))
}
