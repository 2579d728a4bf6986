package storage

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

type FSStore struct {
	fs afero.Fs
}

// NewFSStore stores objects below dir on the local disk.
func NewFSStore(dir string) (*FSStore, error) {
	if err := afero.NewOsFs().MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}, nil
}

// NewMemStore is an in-memory store for tests and ephemeral runs.
func NewMemStore() *FSStore {
	return &FSStore{fs: afero.NewMemMapFs()}
}

func NewFSStoreFrom(fsys afero.Fs) *FSStore {
	return &FSStore{fs: fsys}
}

func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) error {
	name := clean(key)
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, name, data, 0o644)
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, clean(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	err := s.fs.Remove(clean(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func clean(key string) string {
	return filepath.FromSlash(path.Clean("/" + key))
}
