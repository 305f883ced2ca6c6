// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khaas/earshot/internal/api"
	"github.com/khaas/earshot/internal/cache"
	"github.com/khaas/earshot/internal/capture"
	"github.com/khaas/earshot/internal/classify"
	"github.com/khaas/earshot/internal/clock"
	"github.com/khaas/earshot/internal/config"
	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/health"
	eslog "github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/notify"
	"github.com/khaas/earshot/internal/pipeline"
	"github.com/khaas/earshot/internal/sensor"
	"github.com/khaas/earshot/internal/store/objectstore"
	"github.com/khaas/earshot/internal/store/recordstore"
)

// app holds the wired daemon components.
type app struct {
	records  *recordstore.Store
	pipeline *pipeline.Pipeline
	api      *api.Server
	clk      clock.Clock
}

// buildApp constructs every component from explicit configuration.
func buildApp(cfg config.Config, version string) (*app, error) {
	logger := eslog.WithComponent("daemon")
	clk := clock.System()

	if dir := filepath.Dir(cfg.Delivery.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	records, err := recordstore.Open(cfg.Delivery.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	var objects deliver.ObjectStore
	if cfg.Delivery.BucketURL != "" {
		objects = objectstore.NewHTTPStore(cfg.Delivery.BucketURL, cfg.Delivery.BucketToken)
	} else {
		objects, err = objectstore.NewFSStore(cfg.Delivery.ArtifactDir, cfg.Delivery.ArtifactBaseURL)
		if err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
	}

	var notifier deliver.Notifier
	if cfg.Email.Enabled {
		notifier = notify.NewEmailNotifier(notify.EmailConfig{
			Host:          cfg.Email.Host,
			Port:          cfg.Email.Port,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			Recipient:     cfg.Email.Recipient,
			RecordBaseURL: cfg.Email.RecordBaseURL,
		})
	}

	references := classify.LoadReferences(cfg.Classifier.ReferenceDir, cfg.Classifier.Labels)
	dispatcher := classify.NewDispatcher(classify.DispatchConfig{
		MaxAttempts:    cfg.Classifier.MaxAttempts,
		InitialDelay:   cfg.Classifier.InitialDelay,
		Multiplier:     cfg.Classifier.Multiplier,
		MaxElapsed:     cfg.Classifier.MaxElapsed,
		AttemptTimeout: cfg.Classifier.AttemptTimeout,
		TopK:           cfg.Classifier.TopK,
		Prompt:         classifierPrompt(cfg.Classifier),
	}, classify.NewHTTPClassifier(classify.HTTPConfig{
		Endpoint: cfg.Classifier.Endpoint,
		APIKey:   cfg.Classifier.APIKey,
	}), references)

	fanout := deliver.NewFanout(deliver.RetryConfig{
		MaxAttempts:  cfg.Delivery.MaxAttempts,
		InitialDelay: cfg.Delivery.InitialDelay,
		OpTimeout:    cfg.Delivery.OpTimeout,
	}, objects, records, notifier)

	healthMgr := health.NewManager(version)
	healthMgr.Register(health.CheckerFunc{
		CheckName: "record_store",
		Fn: func(ctx context.Context) health.CheckResult {
			if err := records.Ping(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})
	healthMgr.Register(health.CheckerFunc{
		CheckName: "artifact_store",
		Fn: func(ctx context.Context) health.CheckResult {
			if cfg.Delivery.BucketURL != "" {
				return health.CheckResult{Status: health.StatusHealthy, Message: "remote bucket"}
			}
			probe, err := os.CreateTemp(cfg.Delivery.ArtifactDir, ".probe-*")
			if err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			probe.Close()
			os.Remove(probe.Name())
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})
	healthMgr.Register(health.CheckerFunc{
		CheckName: "classifier",
		Fn: func(ctx context.Context) health.CheckResult {
			if cfg.Classifier.Endpoint == "" {
				return health.CheckResult{Status: health.StatusDegraded, Message: "no endpoint configured"}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})

	var apiCache cache.Cache
	if cfg.Server.RedisAddr != "" {
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Server.RedisAddr,
			Password: cfg.Server.RedisPassword,
			DB:       cfg.Server.RedisDB,
		}, eslog.WithComponent("cache"))
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
			apiCache = cache.NewMemory()
		} else {
			apiCache = redisCache
		}
	} else {
		apiCache = cache.NewMemory()
	}

	apiServer := api.NewServer(api.Config{
		Listen:         cfg.Server.Listen,
		RateLimitRPM:   cfg.Server.RateLimitRPM,
		CacheTTL:       cfg.Server.CacheTTL,
		TriggerFeedURL: cfg.Poll.FeedURL,
	}, records, apiCache, healthMgr)

	p := pipeline.New(pipeline.Config{
		EventBudget:  cfg.Pipeline.EventBudget,
		DrainTimeout: cfg.Pipeline.DrainTimeout,
	}, nil, dispatcher, fanout)

	return &app{records: records, pipeline: p, api: apiServer, clk: clk}, nil
}

// runPipeline starts the mode-specific listening loop.
func (a *app) runPipeline(ctx context.Context, cfg config.Config) error {
	switch cfg.Mode {
	case config.ModeAudio:
		return a.runAudio(ctx, cfg)
	case config.ModeCamera:
		return a.runCamera(ctx, cfg)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func (a *app) runAudio(ctx context.Context, cfg config.Config) error {
	source, err := sensor.OpenAudioSource(sensor.AudioConfig{
		SampleRate:     cfg.Audio.SampleRate,
		FrameSize:      cfg.Audio.FrameSize,
		MaxDeviceIndex: cfg.Audio.MaxDeviceIndex,
		MaxReconnects:  cfg.Audio.MaxReconnects,
	}, func(index int) (sensor.FrameDevice, error) {
		return sensor.OpenALSADevice(index, cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	})
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	detector := detect.NewThresholdDetector(detect.Config{
		PeakThreshold: cfg.Audio.PeakThreshold,
		RMSThreshold:  cfg.Audio.RMSThreshold,
		MinGap:        cfg.Audio.MinGap,
	}, a.clk)

	capturer := capture.NewWindowCapturer(capture.WindowConfig{
		Duration:   cfg.Audio.WindowDuration,
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
	}, source)

	a.pipeline.SetCapturer(capturer)
	return a.pipeline.RunAudio(ctx, source, detector)
}

func (a *app) runCamera(ctx context.Context, cfg config.Config) error {
	device, err := sensor.OpenStillDevice(func(int) (sensor.StillDevice, error) {
		return sensor.NewSnapshotDevice(cfg.Camera.SnapshotURL, 10*time.Second), nil
	}, 1)
	if err != nil {
		return err
	}
	defer func() { _ = device.Close() }()

	poller := sensor.NewRemoteTriggerPoller(sensor.PollConfig{
		FeedURL:  cfg.Poll.FeedURL,
		Field:    cfg.Poll.Field,
		Interval: cfg.Poll.Interval,
		Timeout:  cfg.Poll.Timeout,
	})

	detector := detect.NewFlagDetector(cfg.Camera.MinGap, a.clk)

	capturer := capture.NewStillCapturer(capture.StillConfig{
		WarmupFrames: cfg.Camera.WarmupFrames,
		WarmupDelay:  cfg.Camera.WarmupDelay,
	}, device, a.clk)

	a.pipeline.SetCapturer(capturer)
	return a.pipeline.RunPoll(ctx, poller, detector, cfg.Camera.QuietPeriod, a.clk)
}

// Close releases long-lived resources.
func (a *app) Close() {
	if a.records != nil {
		_ = a.records.Close()
	}
}

// classifierPrompt builds the default prompt from the configured labels
// when no explicit prompt is set.
func classifierPrompt(c config.Classifier) string {
	if c.Prompt != "" {
		return c.Prompt
	}
	if len(c.Labels) == 0 {
		return "Classify the attached capture and return ranked labels with confidence scores."
	}
	return fmt.Sprintf(
		"Analyze the attached capture. Which of the following labels best applies: %s? Return ranked labels with confidence scores, or 'NONE' if no label fits.",
		strings.Join(c.Labels, ", "),
	)
}
