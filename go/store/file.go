package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

// FileStore keeps the snapshot in a local JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load returns (nil, nil) when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (crawler.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Wrapf(err, "read state file %s", s.path)
	}
	snapshot, err := decodeSnapshot(data)
	if err != nil {
		return nil, oops.Wrapf(err, "state file %s", s.path)
	}
	return snapshot, nil
}

// Save replaces the file atomically: readers see either the old or the new
// snapshot, never a partial write.
func (s *FileStore) Save(ctx context.Context, snapshot crawler.Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return oops.Wrapf(err, "create state dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return oops.Wrapf(err, "create temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return oops.Wrapf(err, "write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return oops.Wrapf(err, "sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		return oops.Wrapf(err, "close temp state file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return oops.Wrapf(err, "replace state file %s", s.path)
	}
	return nil
}
