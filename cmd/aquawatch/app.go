package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"aquawatch/pkg/config"
	"aquawatch/pkg/nostrfeed"
	"aquawatch/pkg/relay"
	"aquawatch/pkg/telemetry"
	"aquawatch/pkg/version"
)

// connectRelay is swapped out in tests.
var connectRelay = nostrfeed.Connect

// newApp builds the CLI. out receives command output; in feeds the watch
// command's horizon prompt.
func newApp(out io.Writer, in io.Reader) *cli.App {
	app := &cli.App{
		Name:      config.AppName,
		Usage:     config.AppDescription,
		Version:   version.Info().Version,
		Flags:     config.Flags(),
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			watchCommand(in),
			exportCommand(),
			publishTolerancesCommand(),
			publishSnapshotCommand(),
			versionCommand(),
		},
	}
	app.Description = config.HelpNote
	return app
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			info := version.Info()
			fmt.Fprintf(c.App.Writer, "%s version %s, commit %s, built %s\n", config.AppName, info.Version, info.Commit, info.Built)
			return nil
		},
	}
}

// loadConfig resolves configuration for the running command.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(config.FlagSourceFromContext(c))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}
	return cfg, nil
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "["+config.AppName+"] ", log.LstdFlags)
}

// debugLogger returns logger when debug output is on and a silent logger
// otherwise. Components that log errors get the real logger instead.
func debugLogger(cfg *config.Config, logger *log.Logger) *log.Logger {
	if cfg.Debug {
		return logger
	}
	return log.New(io.Discard, "", 0)
}

func backoff(cfg *config.Config) nostrfeed.Backoff {
	return nostrfeed.Backoff{
		MaxAttempts: cfg.Network.MaxAttempts,
		Initial:     time.Duration(cfg.Network.InitialBackoffSeconds) * time.Second,
		Max:         time.Duration(cfg.Network.MaxBackoffSeconds) * time.Second,
		Jitter:      cfg.Network.BackoffJitter,
	}
}

func dial(ctx context.Context, cfg *config.Config, logger *log.Logger, emit func(telemetry.TelemetryEvent)) (relay.Relay, error) {
	logger.Printf("connecting to %s", cfg.RelayURL)
	r, err := connectRelay(ctx, cfg.RelayURL, backoff(cfg), emit)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Error connecting to relay: %v", err), 1)
	}
	return r, nil
}

// newFeed builds the relay feed. A non-nil redial lets long-running
// subscriptions survive a dropped connection.
func newFeed(r relay.Relay, cfg *config.Config, logger *log.Logger, emit func(telemetry.TelemetryEvent), redial nostrfeed.RedialFunc) *nostrfeed.Feed {
	return nostrfeed.New(r, cfg.DevicePubKeyHex, nostrfeed.Options{
		Catalog:     cfg.Catalog,
		MaxBatch:    cfg.Sync.MaxBatch,
		ExportLimit: cfg.Export.Limit,
		Logger:      logger,
		Debug:       cfg.Debug,
		Emit:        emit,
		RelayURL:    cfg.RelayURL,
		Redial:      redial,
		Backoff:     backoff(cfg),
	})
}

// redialer reconnects with the configured backoff.
func redialer(cfg *config.Config, emit func(telemetry.TelemetryEvent)) nostrfeed.RedialFunc {
	return func(ctx context.Context) (relay.Relay, error) {
		return connectRelay(ctx, cfg.RelayURL, backoff(cfg), emit)
	}
}
