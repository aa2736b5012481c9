// Package localstore provides the native file operations backing the local
// song library: downloading song resources into the managed music directory,
// deleting them, enumerating audio directories and reading metadata.
//
// A downloaded song is stored as a sibling set <name>.mp3/<name>.jpg/<name>.txt
// where <name> follows the song file-name convention (name__artists__id).
package localstore

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2/mp3"
	zlog "github.com/rs/zerolog/log"

	"github.com/wymusic/player/internal/domain/song"
)

// Resources names the remote artifacts of one download request. Nil fields
// are skipped, so a lyric can be fetched without re-downloading the audio.
type Resources struct {
	MP3URL    *string
	ImageURL  *string
	LyricText *string
}

// Store manages the local music directory.
type Store struct {
	dir        string
	httpClient *http.Client
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("music directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create music directory")
	}
	return &Store{
		dir:        dir,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Dir returns the managed music directory.
func (s *Store) Dir() string { return s.dir }

// DownloadFile fetches the given resources and persists them under filename
// (no extension). Files that already exist are kept as-is, which makes the
// call idempotent per resource. Returns the assembled local record.
func (s *Store) DownloadFile(ctx context.Context, res Resources, filename string) (*song.LocalSong, error) {
	if filename == "" {
		return nil, errors.New("filename is required")
	}
	base := filepath.Join(s.dir, filename)

	if res.MP3URL != nil && *res.MP3URL != "" {
		if err := s.fetchTo(ctx, *res.MP3URL, base+".mp3"); err != nil {
			return nil, errors.Wrap(err, "failed to download audio")
		}
	}
	if res.ImageURL != nil && *res.ImageURL != "" {
		if err := s.fetchTo(ctx, *res.ImageURL, base+".jpg"); err != nil {
			return nil, errors.Wrap(err, "failed to download artwork")
		}
	}
	if res.LyricText != nil {
		path := base + ".txt"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(*res.LyricText), 0644); err != nil {
				return nil, errors.Wrap(err, "failed to write lyric")
			}
		}
	}

	return s.metadataFor(base + ".mp3")
}

// fetchTo downloads url into path unless path already exists. The write goes
// through a temp file so a failed transfer never leaves a partial artifact.
func (s *Store) fetchTo(ctx context.Context, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to fetch resource")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write resource")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to move resource into place")
	}

	zlog.Debug().Msgf("localstore: saved %s", path)
	return nil
}

// DeleteFile removes the mp3 and its sibling artwork and lyric files.
// Deleting missing files is not an error.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".mp3", ".jpg", ".txt"} {
		if err := os.Remove(base + ext); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to delete %s", base+ext)
		}
	}
	return nil
}

// ListFilesInDirectories returns every mp3 path found under the given
// directories. Missing directories are skipped.
func (s *Store) ListFilesInDirectories(ctx context.Context, dirs []string) ([]string, error) {
	var paths []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".mp3") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s", dir)
		}
	}
	return paths, nil
}

// GetMetadataForPaths assembles local records for the given mp3 paths.
// Unreadable entries are logged and skipped rather than failing the batch.
func (s *Store) GetMetadataForPaths(ctx context.Context, paths []string) ([]song.LocalSong, error) {
	out := make([]song.LocalSong, 0, len(paths))
	for _, path := range paths {
		rec, err := s.metadataFor(path)
		if err != nil {
			zlog.Warn().Msgf("localstore: skipping %s: %v", path, err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// GetImageBase64 returns the artwork next to the given mp3 path as base64.
func (s *Store) GetImageBase64(ctx context.Context, path string) (string, error) {
	jpg := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	data, err := os.ReadFile(jpg)
	if err != nil {
		return "", errors.Wrap(err, "failed to read artwork")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// metadataFor builds the local record for one mp3 path from the file-name
// convention plus the sibling lyric and artwork files.
func (s *Store) metadataFor(path string) (*song.LocalSong, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "missing audio file")
	}

	name, artists, id, ok := song.ParseFileName(filepath.Base(path))
	if !ok {
		// Foreign mp3: keep it addressable by path with the bare file name.
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	rec := &song.LocalSong{
		Path:      path,
		Name:      name,
		Artists:   artists,
		CatalogID: id,
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if lyric, err := os.ReadFile(base + ".txt"); err == nil {
		rec.Lyric = string(lyric)
	}
	if art, err := s.GetImageBase64(context.Background(), path); err == nil {
		rec.ArtworkBase64 = art
	}
	rec.Duration = probeDuration(path)

	return rec, nil
}

// probeDuration decodes the mp3 header to compute the track duration.
// Returns zero when the stream cannot be decoded.
func probeDuration(path string) time.Duration {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return 0
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len())
}
