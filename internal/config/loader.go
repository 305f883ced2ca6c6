// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// splitLabels parses a comma-separated label list.
func splitLabels(v string) []string {
	parts := strings.Split(v, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	path string // optional YAML file
}

// NewLoader builds a loader. An empty path skips the file layer.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load merges the layers and validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return Config{}, &Error{Field: "file", Msg: fmt.Sprintf("read %s: %v", l.path, err)}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &Error{Field: "file", Msg: fmt.Sprintf("parse %s: %v", l.path, err)}
		}
	}

	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeEnv overlays EARSHOT_* environment variables onto cfg.
func mergeEnv(cfg *Config) {
	cfg.Mode = Mode(ParseString("EARSHOT_MODE", string(cfg.Mode)))
	cfg.LogLevel = ParseString("EARSHOT_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = ParseString("EARSHOT_DATA_DIR", cfg.DataDir)

	cfg.Audio.SampleRate = ParseInt("EARSHOT_AUDIO_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.FrameSize = ParseInt("EARSHOT_AUDIO_FRAME_SIZE", cfg.Audio.FrameSize)
	cfg.Audio.PeakThreshold = ParseInt("EARSHOT_PEAK_THRESHOLD", cfg.Audio.PeakThreshold)
	cfg.Audio.RMSThreshold = ParseFloat("EARSHOT_RMS_THRESHOLD", cfg.Audio.RMSThreshold)
	cfg.Audio.MinGap = ParseDuration("EARSHOT_MIN_GAP", cfg.Audio.MinGap)
	cfg.Audio.WindowDuration = ParseDuration("EARSHOT_WINDOW_DURATION", cfg.Audio.WindowDuration)
	cfg.Audio.MaxDeviceIndex = ParseInt("EARSHOT_AUDIO_MAX_DEVICE_INDEX", cfg.Audio.MaxDeviceIndex)
	cfg.Audio.MaxReconnects = ParseInt("EARSHOT_AUDIO_MAX_RECONNECTS", cfg.Audio.MaxReconnects)

	cfg.Camera.SnapshotURL = ParseString("EARSHOT_CAMERA_SNAPSHOT_URL", cfg.Camera.SnapshotURL)
	cfg.Camera.WarmupFrames = ParseInt("EARSHOT_CAMERA_WARMUP_FRAMES", cfg.Camera.WarmupFrames)
	cfg.Camera.WarmupDelay = ParseDuration("EARSHOT_CAMERA_WARMUP_DELAY", cfg.Camera.WarmupDelay)
	cfg.Camera.MinGap = ParseDuration("EARSHOT_CAMERA_MIN_GAP", cfg.Camera.MinGap)
	cfg.Camera.QuietPeriod = ParseDuration("EARSHOT_CAMERA_QUIET_PERIOD", cfg.Camera.QuietPeriod)

	cfg.Poll.FeedURL = ParseString("EARSHOT_POLL_FEED_URL", cfg.Poll.FeedURL)
	cfg.Poll.Field = ParseString("EARSHOT_POLL_FIELD", cfg.Poll.Field)
	cfg.Poll.Interval = ParseDuration("EARSHOT_POLL_INTERVAL", cfg.Poll.Interval)
	cfg.Poll.Timeout = ParseDuration("EARSHOT_POLL_TIMEOUT", cfg.Poll.Timeout)

	cfg.Classifier.Endpoint = ParseString("EARSHOT_CLASSIFIER_ENDPOINT", cfg.Classifier.Endpoint)
	cfg.Classifier.APIKey = ParseString("EARSHOT_CLASSIFIER_API_KEY", cfg.Classifier.APIKey)
	cfg.Classifier.Prompt = ParseString("EARSHOT_CLASSIFIER_PROMPT", cfg.Classifier.Prompt)
	cfg.Classifier.ReferenceDir = ParseString("EARSHOT_CLASSIFIER_REFERENCE_DIR", cfg.Classifier.ReferenceDir)
	if v := ParseString("EARSHOT_CLASSIFIER_LABELS", ""); v != "" {
		cfg.Classifier.Labels = splitLabels(v)
	}
	cfg.Classifier.MaxAttempts = ParseInt("EARSHOT_CLASSIFIER_MAX_RETRIES", cfg.Classifier.MaxAttempts)
	cfg.Classifier.InitialDelay = ParseDuration("EARSHOT_CLASSIFIER_INITIAL_DELAY", cfg.Classifier.InitialDelay)
	cfg.Classifier.Multiplier = ParseFloat("EARSHOT_CLASSIFIER_MULTIPLIER", cfg.Classifier.Multiplier)
	cfg.Classifier.MaxElapsed = ParseDuration("EARSHOT_CLASSIFIER_MAX_ELAPSED", cfg.Classifier.MaxElapsed)
	cfg.Classifier.AttemptTimeout = ParseDuration("EARSHOT_CLASSIFIER_ATTEMPT_TIMEOUT", cfg.Classifier.AttemptTimeout)
	cfg.Classifier.TopK = ParseInt("EARSHOT_CLASSIFIER_TOP_K", cfg.Classifier.TopK)

	cfg.Delivery.ArtifactDir = ParseString("EARSHOT_ARTIFACT_DIR", cfg.Delivery.ArtifactDir)
	cfg.Delivery.ArtifactBaseURL = ParseString("EARSHOT_ARTIFACT_BASE_URL", cfg.Delivery.ArtifactBaseURL)
	cfg.Delivery.BucketURL = ParseString("EARSHOT_BUCKET_URL", cfg.Delivery.BucketURL)
	cfg.Delivery.BucketToken = ParseString("EARSHOT_BUCKET_TOKEN", cfg.Delivery.BucketToken)
	cfg.Delivery.DBPath = ParseString("EARSHOT_DB_PATH", cfg.Delivery.DBPath)
	cfg.Delivery.MaxAttempts = ParseInt("EARSHOT_DELIVERY_MAX_RETRIES", cfg.Delivery.MaxAttempts)
	cfg.Delivery.InitialDelay = ParseDuration("EARSHOT_DELIVERY_INITIAL_DELAY", cfg.Delivery.InitialDelay)
	cfg.Delivery.OpTimeout = ParseDuration("EARSHOT_DELIVERY_OP_TIMEOUT", cfg.Delivery.OpTimeout)

	cfg.Email.Enabled = ParseBool("EARSHOT_EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.Host = ParseString("EARSHOT_EMAIL_HOST", cfg.Email.Host)
	cfg.Email.Port = ParseInt("EARSHOT_EMAIL_PORT", cfg.Email.Port)
	cfg.Email.Username = ParseString("EARSHOT_EMAIL_USERNAME", cfg.Email.Username)
	cfg.Email.Password = ParseString("EARSHOT_EMAIL_PASSWORD", cfg.Email.Password)
	cfg.Email.From = ParseString("EARSHOT_EMAIL_FROM", cfg.Email.From)
	cfg.Email.Recipient = ParseString("EARSHOT_EMAIL_RECIPIENT", cfg.Email.Recipient)
	cfg.Email.RecordBaseURL = ParseString("EARSHOT_EMAIL_RECORD_BASE_URL", cfg.Email.RecordBaseURL)

	cfg.Server.Listen = ParseString("EARSHOT_LISTEN", cfg.Server.Listen)
	cfg.Server.RateLimitRPM = ParseInt("EARSHOT_RATE_LIMIT_RPM", cfg.Server.RateLimitRPM)
	cfg.Server.CacheTTL = ParseDuration("EARSHOT_CACHE_TTL", cfg.Server.CacheTTL)
	cfg.Server.RedisAddr = ParseString("EARSHOT_REDIS_ADDR", cfg.Server.RedisAddr)
	cfg.Server.RedisPassword = ParseString("EARSHOT_REDIS_PASSWORD", cfg.Server.RedisPassword)
	cfg.Server.RedisDB = ParseInt("EARSHOT_REDIS_DB", cfg.Server.RedisDB)

	cfg.Pipeline.EventBudget = ParseDuration("EARSHOT_EVENT_BUDGET", cfg.Pipeline.EventBudget)
	cfg.Pipeline.DrainTimeout = ParseDuration("EARSHOT_DRAIN_TIMEOUT", cfg.Pipeline.DrainTimeout)
}
