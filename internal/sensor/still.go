// SPDX-License-Identifier: MIT

package sensor

import (
	"fmt"

	"github.com/khaas/earshot/internal/log"
)

// StillDevice is a handle to an opened camera. ReadStill blocks until
// one encoded image has been captured.
type StillDevice interface {
	ReadStill() ([]byte, error)
	Close() error
}

// StillOpener opens the camera at the given index.
type StillOpener func(index int) (StillDevice, error)

// OpenStillDevice tries candidate camera indices 0..maxIndex-1 in order
// and returns the first that opens, mirroring how the audio source scans
// device indices.
func OpenStillDevice(open StillOpener, maxIndex int) (StillDevice, error) {
	logger := log.WithComponent("sensor")
	if maxIndex <= 0 {
		maxIndex = 1
	}
	var lastErr error
	for i := 0; i < maxIndex; i++ {
		dev, err := open(i)
		if err != nil {
			logger.Debug().Err(err).Int(log.FieldDevice, i).Msg("camera open failed")
			lastErr = err
			continue
		}
		logger.Info().Int(log.FieldDevice, i).Msg("camera opened")
		return dev, nil
	}
	return nil, fmt.Errorf("%w: no usable camera in 0..%d: %v", ErrSourceFailed, maxIndex-1, lastErr)
}
