// SPDX-License-Identifier: MIT

package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPStore uploads artifacts to a bucket-style HTTP endpoint with PUT
// semantics: the same key always maps to the same object URL, so
// repeated uploads overwrite rather than duplicate.
type HTTPStore struct {
	bucketURL string
	token     string
	client    *http.Client
}

// NewHTTPStore builds a store uploading under bucketURL/<key>.
func NewHTTPStore(bucketURL, token string) *HTTPStore {
	return &HTTPStore{bucketURL: bucketURL, token: token, client: &http.Client{}}
}

// Put uploads the artifact and returns its public URL.
func (s *HTTPStore) Put(ctx context.Context, key string, data []byte, mime string) (string, error) {
	target, err := url.JoinPath(s.bucketURL, key)
	if err != nil {
		return "", fmt.Errorf("build object URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mime)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload %s: unexpected status %d", key, resp.StatusCode)
	}
	return target, nil
}
