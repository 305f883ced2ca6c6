// SPDX-License-Identifier: MIT

package sensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
)

// ALSADevice captures raw PCM by running arecord and reading fixed
// frames from its stdout. Index selects the ALSA card.
type ALSADevice struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	frameSize int
	buf       []byte
}

// OpenALSADevice starts an arecord process for the given card index,
// mono 16-bit little-endian at the given rate.
func OpenALSADevice(index, sampleRate, frameSize int) (*ALSADevice, error) {
	cmd := exec.Command("arecord",
		"-q",
		"-D", fmt.Sprintf("plughw:%d", index),
		"-f", "S16_LE",
		"-r", fmt.Sprintf("%d", sampleRate),
		"-c", "1",
		"-t", "raw",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("arecord stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start arecord: %w", err)
	}
	return &ALSADevice{
		cmd:       cmd,
		stdout:    stdout,
		frameSize: frameSize,
		buf:       make([]byte, frameSize*2),
	}, nil
}

// ReadFrame blocks until one full frame of samples has been read.
func (d *ALSADevice) ReadFrame() ([]int16, error) {
	if _, err := io.ReadFull(d.stdout, d.buf); err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	samples := make([]int16, d.frameSize)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(d.buf[i*2:]))
	}
	return samples, nil
}

// Close stops the capture process.
func (d *ALSADevice) Close() error {
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	return d.cmd.Wait()
}
