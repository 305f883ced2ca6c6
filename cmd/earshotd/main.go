// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/khaas/earshot/internal/config"
	eslog "github.com/khaas/earshot/internal/log"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	eslog.Configure(eslog.Config{
		Level:   os.Getenv("EARSHOT_LOG_LEVEL"),
		Service: "earshot",
		Version: version,
	})
	logger := eslog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("configuration is invalid")
	}

	app, err := buildApp(cfg, version)
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "startup.wiring_failed").
			Msg("could not wire the pipeline")
	}
	defer app.Close()

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("listen", cfg.Server.Listen).
		Msg("earshot starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.api.ListenAndServe(gctx) })
	g.Go(func() error { return app.runPipeline(gctx, cfg) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("earshot exited with error")
	}
	logger.Info().Msg("earshot stopped")
}
