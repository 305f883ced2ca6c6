// SPDX-License-Identifier: MIT

package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/khaas/earshot/internal/log"
)

// FrameDevice is a handle to an opened audio input device. ReadFrame
// blocks until a full frame of samples has been captured.
type FrameDevice interface {
	ReadFrame() ([]int16, error)
	Close() error
}

// DeviceOpener opens the audio input device at the given index.
type DeviceOpener func(index int) (FrameDevice, error)

// AudioConfig describes the fixed capture format of an audio source.
type AudioConfig struct {
	SampleRate int // samples per second, e.g. 32000
	FrameSize  int // samples per frame, e.g. 2048

	// MaxDeviceIndex bounds the candidate device indices tried when
	// opening or reopening the device (0..MaxDeviceIndex-1).
	MaxDeviceIndex int
	// MaxReconnects bounds how many times a failed device is reopened
	// before the stream is declared unusable.
	MaxReconnects int
}

// AudioSource reads fixed-size PCM frames from a FrameDevice. The device
// handle is exclusively owned by the caller's listening/capturing path;
// NextFrame must not be called concurrently.
type AudioSource struct {
	cfg    AudioConfig
	open   DeviceOpener
	device FrameDevice

	reconnects int
}

// OpenAudioSource opens the first usable device index and returns a
// source reading from it.
func OpenAudioSource(cfg AudioConfig, open DeviceOpener) (*AudioSource, error) {
	s := &AudioSource{cfg: cfg, open: open}
	if err := s.openDevice(); err != nil {
		return nil, err
	}
	return s, nil
}

// openDevice tries each candidate index in order until one opens.
func (s *AudioSource) openDevice() error {
	logger := log.WithComponent("sensor")
	max := s.cfg.MaxDeviceIndex
	if max <= 0 {
		max = 1
	}
	var lastErr error
	for i := 0; i < max; i++ {
		dev, err := s.open(i)
		if err != nil {
			logger.Debug().Err(err).Int(log.FieldDevice, i).Msg("audio device open failed")
			lastErr = err
			continue
		}
		logger.Info().Int(log.FieldDevice, i).
			Int(log.FieldSampleRate, s.cfg.SampleRate).
			Int("frame_size", s.cfg.FrameSize).
			Msg("audio device opened")
		s.device = dev
		return nil
	}
	return fmt.Errorf("%w: no usable audio device in 0..%d: %v", ErrSourceFailed, max-1, lastErr)
}

// NextFrame blocks until the device delivers the next full frame. Read
// errors trigger bounded reconnection; once MaxReconnects is exhausted
// the returned error wraps ErrSourceFailed.
func (s *AudioSource) NextFrame(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		samples, err := s.device.ReadFrame()
		if err == nil {
			if len(samples) != s.cfg.FrameSize {
				return Frame{}, fmt.Errorf("%w: short frame: got %d samples, want %d",
					ErrSourceFailed, len(samples), s.cfg.FrameSize)
			}
			// A good read clears the budget: MaxReconnects bounds
			// consecutive failures, not the stream's lifetime.
			s.reconnects = 0
			return Frame{CapturedAt: time.Now(), Samples: samples}, nil
		}

		s.reconnects++
		if s.reconnects > s.cfg.MaxReconnects {
			return Frame{}, fmt.Errorf("%w: read failed after %d reconnects: %v",
				ErrSourceFailed, s.cfg.MaxReconnects, err)
		}
		warnLogger := log.WithComponent("sensor")
		warnLogger.Warn().Err(err).
			Int("reconnect", s.reconnects).
			Msg("audio read failed, reopening device")
		_ = s.device.Close()
		if err := s.openDevice(); err != nil {
			return Frame{}, err
		}
	}
}

// Close releases the underlying device.
func (s *AudioSource) Close() error {
	if s.device == nil {
		return nil
	}
	return s.device.Close()
}
