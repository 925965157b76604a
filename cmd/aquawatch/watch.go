package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"aquawatch/pkg/cache"
	"aquawatch/pkg/config"
	"aquawatch/pkg/metrics"
	"aquawatch/pkg/stats"
	"aquawatch/pkg/telemetry"
	"aquawatch/pkg/utils"
)

func watchCommand(in io.Reader) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow live telemetry and report status, tolerance violations and bad readings",
		Description: "Type a horizon (1h, 24h, 7d, 30s, all) and press enter to change the window " +
			"while watching.",
		Action: func(c *cli.Context) error {
			return runWatch(c, in)
		},
	}
}

func runWatch(c *cli.Context, in io.Reader) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}

	logger := newLogger()
	if cfg.Debug {
		logger.Printf("configuration: %s sources: %v", cfg, cfg.Origins)
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	aggregator := telemetry.NewAggregator(telemetry.RealClock{}, telemetry.DefaultConfig())
	aggregator.Start(ctx)
	defer aggregator.Stop()

	publishers := telemetry.Fanout{aggregator}
	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		publishers = append(publishers, metrics.New(reg, telemetry.RealClock{}))
		srv := serveMetrics(cfg.MetricsListen, reg, logger)
		defer shutdownServer(srv, logger)
	}

	r, err := dial(ctx, cfg, logger, publishers.Publish)
	if err != nil {
		return err
	}
	f := newFeed(r, cfg, logger, publishers.Publish, redialer(cfg, publishers.Publish))
	defer func() {
		_ = f.Close()
		publishers.Publish(telemetry.NewConnectionStatusChanged(cfg.RelayURL, false))
	}()

	tracker := cache.NewTracker(f, f,
		cache.WithPruneInterval(cfg.PruneInterval()),
		cache.WithLogger(logger),
		cache.WithDebug(cfg.Debug),
		cache.WithTelemetry(publishers),
	)
	if err := tracker.Start(ctx, int64(cfg.Window.HorizonSeconds)); err != nil {
		return cli.Exit(fmt.Sprintf("Error subscribing: %v", err), 1)
	}
	defer tracker.Close()

	w := NewWatcher(tracker, aggregator, publishers, cfg, logger, c.App.Writer)
	if in != nil {
		go w.ReadHorizons(ctx, in)
	}
	return w.Run(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Printf("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("metrics server shutdown: %v", err)
	}
}

// StateSource is the part of cache.Tracker the watcher reads and steers.
type StateSource interface {
	State() cache.State
	SetHorizon(ctx context.Context, horizonSeconds int64) error
}

// Watcher prints periodic status for a tracked window.
type Watcher struct {
	source    StateSource
	telemetry telemetry.TelemetryReader
	publisher telemetry.TelemetryPublisher
	config    *config.Config
	logger    *log.Logger
	out       io.Writer

	// State
	lastSnapshot   telemetry.Snapshot
	printedOnce    bool
	degraded       bool
	lastViolations string
}

func NewWatcher(source StateSource, reader telemetry.TelemetryReader, publisher telemetry.TelemetryPublisher, cfg *config.Config, logger *log.Logger, out io.Writer) *Watcher {
	return &Watcher{
		source:    source,
		telemetry: reader,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		out:       out,
	}
}

// Run prints status until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Printf("Watching %s", w.config.String())

	ticker := time.NewTicker(w.config.StatusInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("Shutting down...")
			return nil
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick evaluates the current state once.
func (w *Watcher) Tick() {
	state := w.source.State()
	w.checkDegraded(state)
	w.printStatus(state)
	w.printViolations(state)
}

// ReadHorizons applies horizons typed one per line until in is exhausted.
func (w *Watcher) ReadHorizons(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		horizon, err := parseHorizon(line)
		if err != nil {
			fmt.Fprintf(w.out, "ERROR: %v\n", err)
			continue
		}
		if err := w.source.SetHorizon(ctx, horizon); err != nil {
			fmt.Fprintf(w.out, "ERROR: %v\n", err)
			continue
		}
		fmt.Fprintf(w.out, "Horizon set to %s\n", utils.HorizonLabel(horizon))
	}
}

func (w *Watcher) checkDegraded(state cache.State) {
	degraded := state.Degraded()
	if degraded == w.degraded {
		return
	}
	w.degraded = degraded
	w.publisher.Publish(telemetry.NewDegradedChanged(degraded))
	if degraded {
		fmt.Fprintln(w.out, "WARNING: sensor readings are missing or failed, check the device")
	} else {
		fmt.Fprintln(w.out, "Sensor readings recovered")
	}
}

func (w *Watcher) printStatus(state cache.State) {
	snapshot := w.telemetry.Snapshot()

	if !w.shouldPrintStatus(snapshot) {
		w.lastSnapshot = snapshot
		return
	}
	w.printedOnce = true

	last := "Data not retrieved."
	if state.Loading {
		last = "Loading..."
	} else if t, ok := stats.LastRetrieved(state.Snapshots); ok {
		last = "Last Retrieved: " + t.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w.out, "Status - %s window=%s snapshots=%d tolerances=%d batches=%s rate=%.2f/s\n",
		last,
		utils.HorizonLabel(snapshot.HorizonSeconds),
		len(state.Snapshots),
		len(state.Tolerances),
		utils.FormatNumber(snapshot.BatchesReceived),
		snapshot.BatchesPerSecond)

	fmt.Fprintf(w.out, "Connection - relay: %t, subscriptions: %d\n",
		snapshot.RelayConnected,
		snapshot.ActiveSubscriptions)

	if snapshot.ErrorsTotal > w.lastSnapshot.ErrorsTotal {
		var parts []string
		for _, cc := range utils.SortContextsByCount(snapshot.ErrorsByContext) {
			parts = append(parts, fmt.Sprintf("%s=%d", cc.Context, cc.Count))
		}
		fmt.Fprintf(w.out, "Errors - total=%d %s\n", snapshot.ErrorsTotal, strings.Join(parts, " "))
		if len(snapshot.RecentErrors) > 0 {
			fmt.Fprintf(w.out, "Last error: %s\n", snapshot.RecentErrors[0])
		}
	}

	w.lastSnapshot = snapshot
}

// shouldPrintStatus determines if we should print a status update
func (w *Watcher) shouldPrintStatus(snapshot telemetry.Snapshot) bool {
	if !w.printedOnce {
		return true
	}
	if snapshot.BatchesReceived != w.lastSnapshot.BatchesReceived ||
		snapshot.SnapshotsPruned != w.lastSnapshot.SnapshotsPruned ||
		snapshot.ToleranceUpdates != w.lastSnapshot.ToleranceUpdates {
		return true
	}
	if snapshot.ErrorsTotal > w.lastSnapshot.ErrorsTotal {
		return true
	}
	if snapshot.RelayConnected != w.lastSnapshot.RelayConnected ||
		snapshot.HorizonSeconds != w.lastSnapshot.HorizonSeconds {
		return true
	}
	return false
}

func (w *Watcher) printViolations(state cache.State) {
	if state.Loading || len(state.Snapshots) == 0 {
		return
	}
	newest := state.Snapshots[len(state.Snapshots)-1]
	violations := stats.Evaluate(newest, state.Tolerances, w.config.Catalog)

	var lines []string
	for _, v := range violations {
		lines = append(lines, formatViolation(v))
	}
	summary := strings.Join(lines, "\n")
	if summary == w.lastViolations {
		return
	}
	w.lastViolations = summary
	if summary == "" {
		fmt.Fprintln(w.out, "All metrics within tolerance")
		return
	}
	fmt.Fprintln(w.out, summary)
}

func formatViolation(v stats.Violation) string {
	name := v.Metric.Name
	if name == "" {
		name = v.Metric.Key
	}
	if v.Kind == stats.ViolationFailed {
		return fmt.Sprintf("ALERT: %s reading failed", name)
	}
	return fmt.Sprintf("ALERT: %s is %s tolerance: %s%s (range %s to %s)",
		name, v.Kind, strconv.FormatFloat(v.Value, 'f', -1, 64), v.Metric.Unit,
		strconv.FormatFloat(v.Tolerance.Min, 'f', -1, 64),
		strconv.FormatFloat(v.Tolerance.Max, 'f', -1, 64))
}

// parseHorizon accepts "all" for unbounded, plain seconds, or a number with
// an s, m, h, d or w suffix.
func parseHorizon(in string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(in))
	if s == "all" || s == "0" {
		return 0, nil
	}

	unit := int64(1)
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'w':
			unit = 7 * 86400
		case 'd':
			unit = 86400
		case 'h':
			unit = 3600
		case 'm':
			unit = 60
		}
		if strings.ContainsRune("wdhms", rune(s[n-1])) {
			s = s[:n-1]
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid horizon %q", in)
	}
	return n * unit, nil
}
