// SPDX-License-Identifier: MIT

// Package objectstore stores raw event artifacts under deterministic
// keys so re-upload after a crash or retry is idempotent.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/khaas/earshot/internal/log"
)

// FSStore keeps artifacts on the local filesystem. Writes are atomic:
// fsync before rename, so a crash never leaves a partial artifact under
// a final key.
type FSStore struct {
	root    string
	baseURL string // optional public base; defaults to file:// paths
}

// NewFSStore creates the root directory if needed. baseURL, when set,
// is joined with the key to form the returned reference URL.
func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{root: root, baseURL: baseURL}, nil
}

// Put writes the artifact under its key and returns a reference URL.
// Repeating a Put with the same key replaces the file in place.
func (s *FSStore) Put(ctx context.Context, key string, data []byte, mime string) (string, error) {
	logger := log.WithComponentFromContext(ctx, "objectstore")
	path := filepath.Join(s.root, filepath.Base(key))

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending artifact")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace artifact: %w", err)
	}

	logger.Debug().
		Str(log.FieldPath, path).
		Str("mime", mime).
		Int("bytes", len(data)).
		Msg("artifact stored")

	if s.baseURL != "" {
		u, err := url.JoinPath(s.baseURL, filepath.Base(key))
		if err == nil {
			return u, nil
		}
	}
	return "file://" + path, nil
}
