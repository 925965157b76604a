package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"

	"aquawatch/pkg/config"
	"aquawatch/pkg/nostrfeed"
	"aquawatch/pkg/relay"
	"aquawatch/pkg/stats"
)

const flagTimestamp = "timestamp"

func publishTolerancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish-tolerances",
		Usage:     "Replace the tolerance table",
		ArgsUsage: "KEY=MIN:MAX [KEY=MIN:MAX...]",
		Action: func(c *cli.Context) error {
			table, err := parseTolerances(c.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}
			return publish(c, func(ctx context.Context, p *nostrfeed.Publisher) (nostr.Event, error) {
				return p.PublishTolerances(ctx, table)
			})
		},
	}
}

func publishSnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish-snapshot",
		Usage:     "Publish one snapshot as the device",
		ArgsUsage: "KEY=VALUE [KEY=VALUE...]",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  flagTimestamp,
				Usage: "Snapshot unix time, defaults to now",
			},
		},
		Action: func(c *cli.Context) error {
			ts := c.Int64(flagTimestamp)
			if ts == 0 {
				ts = time.Now().Unix()
			}
			snap, err := parseSnapshot(ts, c.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}
			return publish(c, func(ctx context.Context, p *nostrfeed.Publisher) (nostr.Event, error) {
				return p.PublishSnapshot(ctx, snap)
			})
		},
	}
}

func publish(c *cli.Context, send func(context.Context, *nostrfeed.Publisher) (nostr.Event, error)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigner(); err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}

	logger := newLogger()
	r, err := dial(c.Context, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(c.Context, cfg.PublishTimeout())
	defer cancel()

	event, err := send(ctx, signer(cfg, r, logger))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error publishing: %v", err), 1)
	}
	fmt.Fprintf(c.App.Writer, "Published event %s\n", event.ID)
	return nil
}

func signer(cfg *config.Config, r relay.Relay, logger *log.Logger) *nostrfeed.Publisher {
	return nostrfeed.NewPublisher(r, *cfg.NostrKeyPair, debugLogger(cfg, logger))
}

// parseTolerances reads KEY=MIN:MAX arguments.
func parseTolerances(args []string) (stats.Tolerances, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no tolerances given")
	}
	table := stats.Tolerances{}
	for _, arg := range args {
		key, bounds, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tolerance %q: want KEY=MIN:MAX", arg)
		}
		lo, hi, ok := strings.Cut(bounds, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tolerance %q: want KEY=MIN:MAX", arg)
		}
		minValue, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid minimum for %s: %w", key, err)
		}
		maxValue, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid maximum for %s: %w", key, err)
		}
		if minValue > maxValue {
			return nil, fmt.Errorf("invalid tolerance for %s: minimum %v above maximum %v", key, minValue, maxValue)
		}
		table[key] = stats.Tolerance{Min: minValue, Max: maxValue}
	}
	return table, nil
}

// parseSnapshot reads KEY=VALUE arguments in order. A value of NaN marks a
// failed read.
func parseSnapshot(ts int64, args []string) (stats.Snapshot, error) {
	if len(args) == 0 {
		return stats.Snapshot{}, fmt.Errorf("no readings given")
	}
	snap := stats.Snapshot{Timestamp: ts}
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return stats.Snapshot{}, fmt.Errorf("invalid reading %q: want KEY=VALUE", arg)
		}
		if seen[key] {
			return stats.Snapshot{}, fmt.Errorf("duplicate reading %s", key)
		}
		seen[key] = true

		value := math.NaN()
		if !strings.EqualFold(raw, "nan") {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return stats.Snapshot{}, fmt.Errorf("invalid value for %s: %w", key, err)
			}
			value = v
		}
		snap.Readings = append(snap.Readings, stats.Reading{Key: key, Value: value})
	}
	return snap, nil
}
