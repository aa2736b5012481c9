// Package song provides the song domain entities and identity rules.
package song

import (
	"path/filepath"
	"strings"
	"time"
)

// An Identity is either a catalog id (numeric string) or a local file path
// (anything else). A song has exactly one canonical identity; once downloaded
// the catalog id and local path are linked in the library cache.

// IsCatalogID reports whether the identity addresses the remote catalog.
func IsCatalogID(identity string) bool {
	if identity == "" {
		return false
	}
	for _, r := range identity {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LocalSong represents a downloaded song on disk, keyed by its mp3 path.
type LocalSong struct {
	Path          string        // mp3 file path (unique key)
	Name          string        // display name
	Artists       []string      // artist names, ordered
	Duration      time.Duration // track duration
	Album         string        // album name
	ArtworkBase64 string        // album art, base64 encoded
	Lyric         string        // raw lyric text
	CatalogID     string        // linked catalog id, empty if never linked
}

// Identity returns the canonical identity of the local song.
func (s *LocalSong) Identity() string { return s.Path }

// RemoteSong represents a song known from the remote catalog.
type RemoteSong struct {
	ID         string        // catalog id (unique key)
	Name       string        // display name
	Artists    []string      // artist names, ordered
	Duration   time.Duration // track duration
	Album      string        // album name
	ArtworkRef string        // album art url or base64
	LocalPath  string        // linked local path, empty until downloaded
	LastAccess time.Time     // refreshed on every read
}

// Identity returns the canonical identity of the remote song.
func (s *RemoteSong) Identity() string { return s.ID }

// ArtistLine joins artist names for display and media-session metadata.
func ArtistLine(artists []string) string {
	return strings.Join(artists, ", ")
}

// fileNameSep separates the name, artist and id segments of a managed file.
const fileNameSep = "__"

// FileName builds the managed file name (without extension) for a song.
// The id comes last so it survives separators appearing in song names.
func FileName(name string, artists []string, id string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, string(filepath.Separator), " ")
		return strings.ReplaceAll(s, fileNameSep, "_")
	}
	parts := make([]string, 0, len(artists))
	for _, a := range artists {
		parts = append(parts, clean(a))
	}
	return clean(name) + fileNameSep + strings.Join(parts, ",") + fileNameSep + id
}

// ParseFileName splits a managed file name (with or without extension) back
// into name, artists and catalog id. ok is false for foreign file names.
func ParseFileName(base string) (name string, artists []string, id string, ok bool) {
	base = strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(base, fileNameSep)
	if len(parts) < 3 {
		return "", nil, "", false
	}
	id = parts[len(parts)-1]
	if !IsCatalogID(id) {
		return "", nil, "", false
	}
	rawArtists := parts[len(parts)-2]
	name = strings.Join(parts[:len(parts)-2], fileNameSep)
	if rawArtists != "" {
		artists = strings.Split(rawArtists, ",")
	}
	return name, artists, id, true
}
