// SPDX-License-Identifier: MIT

package sensor

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// SnapshotDevice captures stills from a camera exposing an HTTP
// snapshot endpoint. Each ReadStill fetches one fresh image, so
// warm-up reads give the camera time to settle exposure.
type SnapshotDevice struct {
	url    string
	client *http.Client
}

// NewSnapshotDevice builds a still device over a snapshot URL.
func NewSnapshotDevice(url string, timeout time.Duration) *SnapshotDevice {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SnapshotDevice{url: url, client: &http.Client{Timeout: timeout}}
}

// ReadStill fetches one encoded image.
func (d *SnapshotDevice) ReadStill() ([]byte, error) {
	resp, err := d.client.Get(d.url)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot fetch: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot read: empty image")
	}
	return data, nil
}

// Close is a no-op; snapshot devices hold no persistent handle.
func (d *SnapshotDevice) Close() error { return nil }
