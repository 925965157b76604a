package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"aquawatch/pkg/cache"
	"aquawatch/pkg/config"
	"aquawatch/pkg/export"
	"aquawatch/pkg/feed"
	"aquawatch/pkg/stats"
)

const (
	flagExportAll = "all"
	flagExportOut = "out"
)

// loadPollInterval is how often the export command checks whether the first
// batch has arrived.
var loadPollInterval = 50 * time.Millisecond

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the current window, or the full history with --all, as CSV",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagExportAll,
				Usage: "Fetch every snapshot within the export lookback instead of the current window",
			},
			&cli.StringFlag{
				Name:    flagExportOut,
				Aliases: []string{"o"},
				Usage:   "Output file, - for stdout",
				Value:   export.FileName,
			},
		},
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}

	logger := newLogger()
	ctx := c.Context

	r, err := dial(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	f := newFeed(r, cfg, logger, nil, nil)

	var snapshots []stats.Snapshot
	if c.Bool(flagExportAll) {
		snapshots, err = fetchAll(ctx, f, cfg)
	} else {
		snapshots, err = currentWindow(ctx, f, cfg)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error exporting: %v", err), 1)
	}

	out := c.String(flagExportOut)
	if err := writeExport(c.App.Writer, out, snapshots); err != nil {
		if errors.Is(err, export.ErrNoData) {
			return cli.Exit("Nothing to export: no snapshots in range", 1)
		}
		return cli.Exit(fmt.Sprintf("Error exporting: %v", err), 1)
	}
	if out != "-" {
		logger.Printf("exported %d snapshots to %s", len(snapshots), out)
	}
	return nil
}

func writeExport(stdout io.Writer, out string, snapshots []stats.Snapshot) error {
	if out == "-" {
		if err := export.WriteCSV(stdout, snapshots); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout)
		return err
	}
	return export.WriteFile(out, snapshots)
}

// fetchAll runs the one-shot history query over the export lookback.
func fetchAll(ctx context.Context, fetcher feed.BatchFetcher, cfg *config.Config) ([]stats.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout())
	defer cancel()

	end := time.Now().Unix()
	start := end - int64(cfg.Export.LookbackSeconds)
	if start < 0 {
		start = 0
	}
	return fetcher.FetchRange(ctx, start, end)
}

// currentWindow opens a short-lived stats handle and returns its window once
// the first batch has been applied.
func currentWindow(ctx context.Context, src feed.SnapshotFeed, cfg *config.Config) ([]stats.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.SubscribeTimeout())
	defer cancel()

	h, err := cache.OpenStats(ctx, src, int64(cfg.Window.HorizonSeconds))
	if err != nil {
		return nil, err
	}
	defer h.Close()

	return waitLoaded(ctx, h)
}

func waitLoaded(ctx context.Context, h *cache.StatsHandle) ([]stats.Snapshot, error) {
	ticker := time.NewTicker(loadPollInterval)
	defer ticker.Stop()

	for {
		if state := h.State(); !state.Loading {
			return state.Snapshots, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for snapshots: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
