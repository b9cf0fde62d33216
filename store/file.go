package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

const (
	fileSecretMode = 0o600
	fileDirMode    = 0o700
)

// FileSecretStore is a SecretStore which keeps each identifier's data in its
// own 0600 file in a directory.
type FileSecretStore struct {
	dir string
}

var _ SecretStore = (*FileSecretStore)(nil)

// NewFileSecretStore creates a FileSecretStore in dir, creating the directory
// if it doesn't exist.
func NewFileSecretStore(dir string) (*FileSecretStore, error) {
	const op = "store.NewFileSecretStore"
	if dir == "" {
		return nil, fmt.Errorf("%s: directory is empty: %w", op, ErrInvalidParameter)
	}
	if err := os.MkdirAll(dir, fileDirMode); err != nil {
		return nil, fmt.Errorf("%s: unable to create %s: %w", op, dir, err)
	}
	return &FileSecretStore{dir: dir}, nil
}

// Get returns the data stored for id or ErrNotFound.
func (s *FileSecretStore) Get(ctx context.Context, id string) ([]byte, error) {
	const op = "store.(FileSecretStore).Get"
	path, err := s.path(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %q: %w", op, id, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// Put writes data for id.  The file is replaced atomically.
func (s *FileSecretStore) Put(ctx context.Context, data []byte, id string) error {
	const op = "store.(FileSecretStore).Put"
	path, err := s.path(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(fileSecretMode); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete removes the file for id.
func (s *FileSecretStore) Delete(ctx context.Context, id string) error {
	const op = "store.(FileSecretStore).Delete"
	path, err := s.path(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// path returns the file for id.  Identifiers are escaped so they can't name
// a file outside the directory.
func (s *FileSecretStore) path(id string) (string, error) {
	name := url.PathEscape(id)
	if id == "" || name == "." || name == ".." {
		return "", fmt.Errorf("id %q is invalid: %w", id, ErrInvalidParameter)
	}
	return filepath.Join(s.dir, name), nil
}
