// Package snapshot provides the versioned key-value blob store used to
// persist player state (volume, queue, local list) between sessions.
//
// Each key is stored as one JSON file named v<version>-<key>.json so a schema
// bump simply orphans the old blobs instead of corrupting loads.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// Store persists versioned snapshot blobs in a directory.
type Store struct {
	dir     string
	version int
}

// blob is the on-disk envelope.
type blob struct {
	Version int            `json:"version"`
	Data    map[string]any `json:"data"`
}

// New creates a snapshot store rooted at dir.
func New(dir string, version int) (*Store, error) {
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if version < 1 {
		version = 1
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot directory")
	}
	return &Store{dir: dir, version: version}, nil
}

// Key returns the versioned key name for a logical key.
func (s *Store) Key(name string) string {
	return fmt.Sprintf("v%d-%s", s.version, name)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, s.Key(name)+".json")
}

// Save writes the value as the blob for name, atomically.
func (s *Store) Save(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot value")
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return errors.Wrap(err, "snapshot value must encode to an object")
	}

	out, err := json.MarshalIndent(blob{Version: s.version, Data: data}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot blob")
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path(name)), "failed to move snapshot into place")
}

// Load reads the blob for name into out. Returns false when no snapshot of
// the current version exists. Decoding tolerates unknown fields so older
// blobs with extra data still load.
func (s *Store) Load(name string, out any) (bool, error) {
	raw, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to read snapshot")
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, errors.Wrap(err, "failed to parse snapshot")
	}
	if b.Version != s.version {
		return false, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to build snapshot decoder")
	}
	if err := decoder.Decode(b.Data); err != nil {
		return false, errors.Wrap(err, "failed to decode snapshot")
	}
	return true, nil
}
