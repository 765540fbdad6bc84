// Package blob stores generated image bytes on the local filesystem or in S3.
package blob

import (
	"context"
	"path"
	"strings"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
)

// Store keeps opaque blobs by key
type Store interface {
	// Put writes data under key and returns a URL for it (empty when the
	// store has no public URL)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get reads a blob; a missing key wraps errors.ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New creates the store selected by storage.driver
func New(ctx context.Context, cfg am.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "fs":
		return NewFSStore(am.ExpandPath(cfg.Path), cfg.PublicBaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, errors.Newf("unknown storage driver %q (valid: fs, s3)", cfg.Driver)
	}
}

// cleanKey rejects keys that would escape the store's root
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", errors.NewInvalidRequestError("blob key cannot be empty")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.Contains(key, "..") {
		return "", errors.NewInvalidRequestError("invalid blob key %q", key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + key
}
