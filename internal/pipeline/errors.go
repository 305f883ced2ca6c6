// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"

	"github.com/khaas/earshot/internal/sensor"
)

// sourceFatal distinguishes a dead sensor stream from a per-event
// capture failure. Only the former may terminate the loop.
func sourceFatal(err error) error {
	if errors.Is(err, sensor.ErrSourceFailed) {
		return err
	}
	return nil
}
