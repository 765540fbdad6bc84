package blob

import (
	"context"
	"os"
	"path/filepath"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
)

// FSStore keeps blobs as files under a root directory
type FSStore struct {
	root          string
	publicBaseURL string
}

// NewFSStore creates root if needed
func NewFSStore(root, publicBaseURL string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("storage.path cannot be empty for the fs driver")
	}
	if err := os.MkdirAll(root, am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create blob directory %s", root)
	}
	return &FSStore{root: root, publicBaseURL: publicBaseURL}, nil
}

// Put writes the blob atomically through a temp file
func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), am.DefaultDirPermissions); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for %s", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".blob-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "failed to write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close %s", key)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errors.Wrapf(err, "failed to move %s into place", key)
	}

	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, key), nil
	}
	return "file://" + filepath.ToSlash(target), nil
}

// Get reads a blob
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("blob %s not found", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}
	return data, nil
}

// Delete removes a blob; a missing key is not an error
func (s *FSStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}
