package telemetry

import (
	"context"
	"sync"
	"time"
)

// Clock interface allows for deterministic testing
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Config for telemetry settings
type Config struct {
	BufferSize        int
	MaxRecentErrors   int
	RateWindowSeconds int
}

func DefaultConfig() Config {
	return Config{
		BufferSize:        1000,
		MaxRecentErrors:   50,
		RateWindowSeconds: 60,
	}
}

// Aggregator is the core stateful component that processes telemetry events
type Aggregator struct {
	mu    sync.RWMutex
	clock Clock
	cfg   Config

	// Core counters
	batchesReceived  uint64
	snapshotsPruned  uint64
	toleranceUpdates uint64
	errorsTotal      uint64

	// Error breakdown
	errorsByContext  map[string]uint64
	errorsBySeverity map[ErrorSeverity]uint64

	// Rate calculations
	batchTimes []time.Time

	// Current state
	snapshotsInWindow int
	windowFrom        int64
	windowTo          int64
	horizonSeconds    int64
	tolerancesLoaded  int
	degraded          bool
	relayConnected    bool
	activeStreams     map[string]bool

	// Recent errors (ring buffer)
	recentErrors []string
	errorIndex   int

	// Control channels
	eventCh  chan TelemetryEvent
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	startTime time.Time
}

// NewAggregator creates a new telemetry aggregator
func NewAggregator(clock Clock, cfg Config) *Aggregator {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.MaxRecentErrors <= 0 {
		cfg.MaxRecentErrors = DefaultConfig().MaxRecentErrors
	}
	if cfg.RateWindowSeconds <= 0 {
		cfg.RateWindowSeconds = DefaultConfig().RateWindowSeconds
	}

	return &Aggregator{
		clock:            clock,
		cfg:              cfg,
		errorsByContext:  make(map[string]uint64),
		errorsBySeverity: make(map[ErrorSeverity]uint64),
		activeStreams:    make(map[string]bool),
		recentErrors:     make([]string, cfg.MaxRecentErrors),
		eventCh:          make(chan TelemetryEvent, cfg.BufferSize),
		done:             make(chan struct{}),
		startTime:        clock.Now(),
	}
}

// Start begins processing telemetry events
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.processEvents(ctx)
}

// Stop gracefully shuts down the aggregator. Safe to call more than once.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
	a.wg.Wait()
}

// Publish implements TelemetryPublisher interface
func (a *Aggregator) Publish(event TelemetryEvent) {
	select {
	case a.eventCh <- event:
	default:
		// drop when full so feed callbacks never block on telemetry
	}
}

// Snapshot implements TelemetryReader interface
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.clock.Now()

	lag := 0.0
	if a.windowTo > 0 {
		lag = now.Sub(time.Unix(a.windowTo, 0)).Seconds()
	}

	utilization := 0.0
	if cap(a.eventCh) > 0 {
		utilization = float64(len(a.eventCh)) / float64(cap(a.eventCh)) * 100
	}

	// Copy maps to prevent data races
	byContext := make(map[string]uint64, len(a.errorsByContext))
	for k, v := range a.errorsByContext {
		byContext[k] = v
	}
	bySeverity := make(map[ErrorSeverity]uint64, len(a.errorsBySeverity))
	for k, v := range a.errorsBySeverity {
		bySeverity[k] = v
	}

	active := 0
	for _, on := range a.activeStreams {
		if on {
			active++
		}
	}

	// newest first
	recent := make([]string, 0)
	for i := 0; i < len(a.recentErrors); i++ {
		idx := (a.errorIndex - i - 1 + len(a.recentErrors)) % len(a.recentErrors)
		if a.recentErrors[idx] != "" {
			recent = append(recent, a.recentErrors[idx])
		}
	}

	return Snapshot{
		BatchesReceived:     a.batchesReceived,
		SnapshotsPruned:     a.snapshotsPruned,
		ToleranceUpdates:    a.toleranceUpdates,
		ErrorsTotal:         a.errorsTotal,
		SnapshotsInWindow:   a.snapshotsInWindow,
		WindowFrom:          a.windowFrom,
		WindowTo:            a.windowTo,
		LagSeconds:          lag,
		HorizonSeconds:      a.horizonSeconds,
		TolerancesLoaded:    a.tolerancesLoaded,
		Degraded:            a.degraded,
		RelayConnected:      a.relayConnected,
		ActiveSubscriptions: active,
		BatchesPerSecond:    a.calculateRate(a.batchTimes, now),
		UptimeSeconds:       now.Sub(a.startTime).Seconds(),
		ChannelUtilization:  utilization,
		ErrorsByContext:     byContext,
		ErrorsBySeverity:    bySeverity,
		RecentErrors:        recent,
	}
}

func (a *Aggregator) processEvents(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case event := <-a.eventCh:
			a.handleEvent(event)
		}
	}
}

func (a *Aggregator) handleEvent(event TelemetryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()

	switch e := event.(type) {
	case SnapshotsReceived:
		a.batchesReceived++
		a.snapshotsInWindow = e.Count
		a.windowFrom = e.From
		a.windowTo = e.To
		a.addBatchTime(now)

	case SnapshotsPruned:
		a.snapshotsPruned += uint64(e.Removed)
		a.snapshotsInWindow = e.Remaining
		if e.Remaining == 0 {
			a.windowFrom, a.windowTo = 0, 0
		}

	case TolerancesUpdated:
		a.toleranceUpdates++
		a.tolerancesLoaded = e.Count

	case SubscriptionChanged:
		a.activeStreams[e.Stream] = e.Active
		if e.Stream == StreamStats && e.Active {
			a.horizonSeconds = e.HorizonSeconds
		}

	case ConnectionStatusChanged:
		a.relayConnected = e.Connected

	case FeedError:
		a.errorsTotal++
		a.errorsByContext[e.Context]++
		a.errorsBySeverity[e.Severity]++
		if e.Err != nil {
			a.addRecentError(e.Err.Error())
		}

	case DegradedChanged:
		a.degraded = e.Degraded
	}
}

func (a *Aggregator) addBatchTime(t time.Time) {
	cutoff := t.Add(-time.Duration(a.cfg.RateWindowSeconds) * time.Second)

	// Remove old entries
	for len(a.batchTimes) > 0 && a.batchTimes[0].Before(cutoff) {
		a.batchTimes = a.batchTimes[1:]
	}

	a.batchTimes = append(a.batchTimes, t)
}

func (a *Aggregator) addRecentError(err string) {
	a.recentErrors[a.errorIndex] = err
	a.errorIndex = (a.errorIndex + 1) % len(a.recentErrors)
}

func (a *Aggregator) calculateRate(times []time.Time, now time.Time) float64 {
	if len(times) == 0 {
		return 0.0
	}

	cutoff := now.Add(-time.Duration(a.cfg.RateWindowSeconds) * time.Second)
	count := 0
	for _, t := range times {
		if t.After(cutoff) {
			count++
		}
	}

	return float64(count) / float64(a.cfg.RateWindowSeconds)
}
