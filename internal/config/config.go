// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration with
// precedence ENV > file > defaults. Components receive explicit config
// structs at construction; there is no process-wide mutable state.
package config

import (
	"fmt"
	"time"
)

// Mode selects which pipeline variant the daemon runs.
type Mode string

const (
	ModeAudio  Mode = "audio"
	ModeCamera Mode = "camera"
)

// Config is the full daemon configuration.
type Config struct {
	Mode     Mode   `yaml:"mode"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`

	Audio      Audio      `yaml:"audio"`
	Camera     Camera     `yaml:"camera"`
	Poll       Poll       `yaml:"poll"`
	Classifier Classifier `yaml:"classifier"`
	Delivery   Delivery   `yaml:"delivery"`
	Email      Email      `yaml:"email"`
	Server     Server     `yaml:"server"`
	Pipeline   Pipeline   `yaml:"pipeline"`
}

// Audio configures the microphone variant.
type Audio struct {
	SampleRate     int           `yaml:"sample_rate"`
	FrameSize      int           `yaml:"frame_size"`
	PeakThreshold  int           `yaml:"peak_threshold"`
	RMSThreshold   float64       `yaml:"rms_threshold"`
	MinGap         time.Duration `yaml:"min_gap"`
	WindowDuration time.Duration `yaml:"window_duration"`
	MaxDeviceIndex int           `yaml:"max_device_index"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

// Camera configures the still-image variant.
type Camera struct {
	SnapshotURL  string        `yaml:"snapshot_url"`
	WarmupFrames int           `yaml:"warmup_frames"`
	WarmupDelay  time.Duration `yaml:"warmup_delay"`
	MinGap       time.Duration `yaml:"min_gap"`
	QuietPeriod  time.Duration `yaml:"quiet_period"`
}

// Poll configures the remote trigger feed (camera variant).
type Poll struct {
	FeedURL  string        `yaml:"feed_url"`
	Field    string        `yaml:"field"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Classifier configures the external classification capability and its
// retry schedule.
type Classifier struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Prompt         string        `yaml:"prompt"`
	Labels         []string      `yaml:"labels"`
	ReferenceDir   string        `yaml:"reference_dir"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxElapsed     time.Duration `yaml:"max_elapsed"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	TopK           int           `yaml:"top_k"`
}

// Delivery configures the sinks and their shared retry policy.
type Delivery struct {
	ArtifactDir     string        `yaml:"artifact_dir"`
	ArtifactBaseURL string        `yaml:"artifact_base_url"`
	BucketURL       string        `yaml:"bucket_url"` // when set, upload over HTTP instead of the local dir
	BucketToken     string        `yaml:"bucket_token"`
	DBPath          string        `yaml:"db_path"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	OpTimeout       time.Duration `yaml:"op_timeout"`
}

// Email configures the best-effort alert channel.
type Email struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	From          string `yaml:"from"`
	Recipient     string `yaml:"recipient"`
	RecordBaseURL string `yaml:"record_base_url"`
}

// Server configures the read API.
type Server struct {
	Listen        string        `yaml:"listen"`
	RateLimitRPM  int           `yaml:"rate_limit_rpm"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	RedisAddr     string        `yaml:"redis_addr"` // empty selects the in-memory cache
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// Pipeline bounds the event lifecycle.
type Pipeline struct {
	EventBudget  time.Duration `yaml:"event_budget"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Default returns the built-in defaults, matching the reference
// deployment: 2048-sample frames at 32 kHz, 2 s window, 300 ms gap.
func Default() Config {
	return Config{
		Mode:     ModeAudio,
		LogLevel: "info",
		DataDir:  "./data",
		Audio: Audio{
			SampleRate:     32000,
			FrameSize:      2048,
			PeakThreshold:  30000,
			RMSThreshold:   7200,
			MinGap:         300 * time.Millisecond,
			WindowDuration: 2 * time.Second,
			MaxDeviceIndex: 3,
			MaxReconnects:  3,
		},
		Camera: Camera{
			WarmupFrames: 10,
			WarmupDelay:  50 * time.Millisecond,
			MinGap:       10 * time.Second,
			QuietPeriod:  10 * time.Second,
		},
		Poll: Poll{
			Field:    "field2",
			Interval: 10 * time.Second,
			Timeout:  10 * time.Second,
		},
		Classifier: Classifier{
			MaxAttempts:    5,
			InitialDelay:   time.Second,
			Multiplier:     2,
			MaxElapsed:     90 * time.Second,
			AttemptTimeout: 30 * time.Second,
			TopK:           3,
		},
		Delivery: Delivery{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			OpTimeout:    15 * time.Second,
		},
		Email: Email{
			Port: 587,
		},
		Server: Server{
			Listen:       ":8080",
			RateLimitRPM: 120,
			CacheTTL:     10 * time.Second,
		},
		Pipeline: Pipeline{
			EventBudget:  2 * time.Minute,
			DrainTimeout: 30 * time.Second,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with. A
// returned error is fatal at startup only.
func (c *Config) Validate() error {
	if c.Mode != ModeAudio && c.Mode != ModeCamera {
		return &Error{Field: "mode", Msg: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	if c.Classifier.Endpoint == "" {
		return &Error{Field: "classifier.endpoint", Msg: "classifier endpoint is required"}
	}
	if c.Delivery.DBPath == "" {
		return &Error{Field: "delivery.db_path", Msg: "record store path is required"}
	}
	if c.Delivery.ArtifactDir == "" && c.Delivery.BucketURL == "" {
		return &Error{Field: "delivery.artifact_dir", Msg: "an artifact dir or bucket URL is required"}
	}
	switch c.Mode {
	case ModeAudio:
		if c.Audio.SampleRate <= 0 || c.Audio.FrameSize <= 0 {
			return &Error{Field: "audio", Msg: "sample_rate and frame_size must be positive"}
		}
		if c.Audio.WindowDuration <= 0 {
			return &Error{Field: "audio.window_duration", Msg: "window duration must be positive"}
		}
		if c.Audio.MinGap <= 0 {
			return &Error{Field: "audio.min_gap", Msg: "min gap must be positive"}
		}
	case ModeCamera:
		if c.Poll.FeedURL == "" {
			return &Error{Field: "poll.feed_url", Msg: "trigger feed URL is required in camera mode"}
		}
		if c.Camera.SnapshotURL == "" {
			return &Error{Field: "camera.snapshot_url", Msg: "camera snapshot URL is required in camera mode"}
		}
	}
	if c.Email.Enabled {
		if c.Email.Host == "" || c.Email.From == "" || c.Email.Recipient == "" {
			return &Error{Field: "email", Msg: "host, from and recipient are required when email is enabled"}
		}
	}
	if c.Classifier.MaxAttempts <= 0 {
		return &Error{Field: "classifier.max_attempts", Msg: "max attempts must be positive"}
	}
	return nil
}

// Error is a fatal configuration error.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}
