// Package nostrfeed serves snapshots and tolerance tables from a nostr relay.
package nostrfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"aquawatch/pkg/feed"
	"aquawatch/pkg/relay"
	"aquawatch/pkg/stats"
	"aquawatch/pkg/telemetry"
)

// ErrSubscriptionClosed is reported through onError when the relay ends a
// subscription the caller did not release.
var ErrSubscriptionClosed = errors.New("subscription closed by relay")

const (
	DefaultMaxBatch    = 1000
	DefaultExportLimit = 5000
)

// RedialFunc opens a fresh relay connection after the current one drops.
type RedialFunc func(ctx context.Context) (relay.Relay, error)

// Options tunes a Feed. Zero values fall back to defaults.
type Options struct {
	Catalog     stats.Catalog
	MaxBatch    int
	ExportLimit int
	Logger      *log.Logger
	Debug       bool
	Emit        func(telemetry.TelemetryEvent)

	// RelayURL labels connection telemetry.
	RelayURL string
	// Redial replaces the relay when a subscription is lost. Without it the
	// feed resubscribes on the relay it already has.
	Redial RedialFunc
	// Backoff paces resubscribe attempts.
	Backoff Backoff
}

// Feed implements feed.SnapshotFeed, feed.ToleranceFeed and
// feed.BatchFetcher over one relay and one device author.
type Feed struct {
	author      string
	catalog     stats.Catalog
	maxBatch    int
	exportLimit int
	logger      *log.Logger
	debug       bool
	emit        func(telemetry.TelemetryEvent)
	relayURL    string
	redial      RedialFunc
	backoff     Backoff

	mu    sync.Mutex
	relay relay.Relay
}

var (
	_ feed.SnapshotFeed  = (*Feed)(nil)
	_ feed.ToleranceFeed = (*Feed)(nil)
	_ feed.BatchFetcher  = (*Feed)(nil)
)

func New(r relay.Relay, authorPubHex string, opts Options) *Feed {
	f := &Feed{
		relay:       r,
		author:      authorPubHex,
		catalog:     opts.Catalog,
		maxBatch:    opts.MaxBatch,
		exportLimit: opts.ExportLimit,
		logger:      opts.Logger,
		debug:       opts.Debug,
		emit:        opts.Emit,
		relayURL:    opts.RelayURL,
		redial:      opts.Redial,
		backoff:     opts.Backoff,
	}
	if f.maxBatch <= 0 {
		f.maxBatch = DefaultMaxBatch
	}
	if f.exportLimit <= 0 {
		f.exportLimit = DefaultExportLimit
	}
	if f.logger == nil {
		f.logger = log.New(io.Discard, "", 0)
	}
	if f.backoff.Initial <= 0 {
		f.backoff = DefaultBackoff()
	}
	return f
}

// Close closes the relay the feed currently uses.
func (f *Feed) Close() error {
	return f.current().Close()
}

func (f *Feed) current() relay.Relay {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relay
}

// SubscribeSnapshots streams every snapshot newer than q.Since. Each onData
// call carries the whole accumulated result set, sorted ascending and capped
// at the newest MaxBatch snapshots. The first call happens at EOSE.
func (f *Feed) SubscribeSnapshots(ctx context.Context, q feed.Query, onData func([]stats.Snapshot), onError func(error)) (feed.Subscription, error) {
	filter := nostr.Filter{
		Kinds:   []int{StatsEventKind},
		Authors: []string{f.author},
		Limit:   f.maxBatch,
	}
	if q.Since > 0 {
		since := nostr.Timestamp(q.Since + 1)
		filter.Since = &since
	}

	st, err := f.open(ctx, "snapshot", nostr.Filters{filter})
	if err != nil {
		f.emitErr(err, "stats_subscribe", telemetry.ErrorSeverityError)
		return nil, fmt.Errorf("failed to subscribe to snapshot events: %w", err)
	}

	acc := newAccumulator(q.Since, f.maxBatch)
	go f.pump(st, func(ev *nostr.Event) bool {
		snap, err := DecodeSnapshot(ev, f.catalog)
		if err != nil {
			f.logger.Printf("skipping snapshot event %s: %v", ev.ID, err)
			return false
		}
		return acc.add(ev.ID, snap)
	}, func() {
		onData(acc.batch())
	}, onError)

	return st.release(), nil
}

// SubscribeTolerances streams the tolerance table. Only an event newer than
// the last one applied replaces it. An empty table is delivered at EOSE when
// none exists yet.
func (f *Feed) SubscribeTolerances(ctx context.Context, onData func(stats.Tolerances), onError func(error)) (feed.Subscription, error) {
	filter := nostr.Filter{
		Kinds:   []int{ToleranceEventKind},
		Authors: []string{f.author},
		Tags:    nostr.TagMap{"d": []string{ToleranceDTag}},
	}

	st, err := f.open(ctx, "tolerance", nostr.Filters{filter})
	if err != nil {
		f.emitErr(err, "tolerance_subscribe", telemetry.ErrorSeverityError)
		return nil, fmt.Errorf("failed to subscribe to tolerance events: %w", err)
	}

	var (
		current  = stats.Tolerances{}
		latest   nostr.Timestamp
		latestID string
		seen     bool
	)
	go f.pump(st, func(ev *nostr.Event) bool {
		if seen && !replaces(ev, latest, latestID) {
			return false
		}
		table, err := DecodeTolerances(ev)
		if err != nil {
			f.logger.Printf("skipping tolerance event %s: %v", ev.ID, err)
			return false
		}
		current, latest, latestID, seen = table, ev.CreatedAt, ev.ID, true
		return true
	}, func() {
		onData(current.Clone())
	}, onError)

	return st.release(), nil
}

// replaces reports whether ev supersedes the table applied from the event
// (createdAt, id). Same-second ties go to the lower id.
func replaces(ev *nostr.Event, createdAt nostr.Timestamp, id string) bool {
	if ev.CreatedAt != createdAt {
		return ev.CreatedAt > createdAt
	}
	return ev.ID < id
}

// FetchRange runs a one-shot query for snapshots with start <= ts <= end.
func (f *Feed) FetchRange(ctx context.Context, start, end int64) ([]stats.Snapshot, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range: end %d before start %d", end, start)
	}
	since := nostr.Timestamp(start)
	until := nostr.Timestamp(end)
	filter := nostr.Filter{
		Kinds:   []int{StatsEventKind},
		Authors: []string{f.author},
		Since:   &since,
		Until:   &until,
		Limit:   f.exportLimit,
	}

	events, err := f.current().QuerySync(ctx, filter)
	if err != nil {
		f.emitErr(err, "fetch_range", telemetry.ErrorSeverityError)
		return nil, fmt.Errorf("failed to query snapshot events: %w", err)
	}

	acc := newAccumulator(start-1, f.exportLimit)
	for _, ev := range events {
		snap, err := DecodeSnapshot(ev, f.catalog)
		if err != nil || snap.Timestamp > end {
			continue
		}
		acc.add(ev.ID, snap)
	}
	f.debugf("fetched %d snapshots in [%d, %d]", acc.len(), start, end)
	return acc.batch(), nil
}

// stream is one logical subscription. It outlives the relay subscriptions
// that back it: when the relay drops one, the feed opens a replacement with
// the same filters.
type stream struct {
	name    string
	filters nostr.Filters
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	relay   relay.Relay
	sub     *nostr.Subscription
	stopped bool
	once    sync.Once
}

func (f *Feed) open(ctx context.Context, name string, filters nostr.Filters) (*stream, error) {
	r := f.current()
	subCtx, cancel := context.WithCancel(ctx)
	sub, err := r.Subscribe(subCtx, filters)
	if err != nil {
		cancel()
		return nil, err
	}
	return &stream{name: name, filters: filters, ctx: subCtx, cancel: cancel, relay: r, sub: sub}, nil
}

func (s *stream) current() (relay.Relay, *nostr.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay, s.sub
}

// swap installs a replacement subscription unless the stream was released.
func (s *stream) swap(r relay.Relay, sub *nostr.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.relay, s.sub = r, sub
	return true
}

func (s *stream) release() feed.Subscription {
	return feed.SubscriptionFunc(func() {
		s.once.Do(func() {
			s.cancel()
			s.mu.Lock()
			s.stopped = true
			sub := s.sub
			s.mu.Unlock()
			safeUnsub(sub)
		})
	})
}

// pump drains a stream until it is released. apply reports whether an event
// changed the result set; deliver runs at the first EOSE and after every
// later change. A subscription the relay ends is reported through onError
// and replaced; the result set carries over.
func (f *Feed) pump(st *stream, apply func(*nostr.Event) bool, deliver func(), onError func(error)) {
	live := false
	for {
		_, sub := st.current()
		err := follow(st.ctx, sub, st.name, apply, deliver, &live)
		if err == nil {
			return
		}
		f.logger.Printf("%s subscription lost: %v", st.name, err)
		f.emitErr(err, st.name+"_subscription", telemetry.ErrorSeverityWarning)
		onError(err)

		if !f.resubscribe(st) {
			return
		}
	}
}

// follow reads one relay subscription. It returns nil once ctx is done and
// an error when the relay ends the subscription.
func follow(ctx context.Context, sub *nostr.Subscription, name string, apply func(*nostr.Event) bool, deliver func(), live *bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-sub.ClosedReason:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrSubscriptionClosed, reason)
		case <-sub.EndOfStoredEvents:
			if !*live {
				*live = true
				drainStored(sub, apply)
				deliver()
			}
		case ev, ok := <-sub.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %s event channel closed", ErrSubscriptionClosed, name)
			}
			if ev == nil {
				continue
			}
			if apply(ev) && *live {
				deliver()
			}
		}
	}
}

// drainStored applies events already buffered when EOSE arrives so the first
// delivery holds the complete stored set.
func drainStored(sub *nostr.Subscription, apply func(*nostr.Event) bool) {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if ev != nil {
				apply(ev)
			}
		default:
			return
		}
	}
}

// resubscribe reopens st, redialing first when a Redial is configured, and
// retries with backoff until it succeeds or st is released.
func (f *Feed) resubscribe(st *stream) bool {
	failed, _ := st.current()
	for attempt := 1; ; attempt++ {
		r, err := f.reconnect(st.ctx, failed)
		if err == nil {
			var sub *nostr.Subscription
			sub, err = r.Subscribe(st.ctx, st.filters)
			if err == nil {
				if !st.swap(r, sub) {
					safeUnsub(sub)
					return false
				}
				f.debugf("%s subscription restored after %d attempt(s)", st.name, attempt)
				return true
			}
			failed = r
		}
		if st.ctx.Err() != nil {
			return false
		}
		f.logger.Printf("%s resubscribe attempt %d failed: %v", st.name, attempt, err)
		f.emitErr(err, st.name+"_resubscribe", telemetry.ErrorSeverityError)

		select {
		case <-st.ctx.Done():
			return false
		case <-time.After(f.backoff.jittered(attempt)):
		}
	}
}

// reconnect returns the relay to resubscribe on. When failed is still the
// feed's relay and a Redial is set, the relay is replaced and the old one
// closed, so every other stream moves over too. Streams that lose their
// subscription to that close find the new relay already in place.
func (f *Feed) reconnect(ctx context.Context, failed relay.Relay) (relay.Relay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redial == nil || f.relay != failed {
		return f.relay, nil
	}

	if f.emit != nil {
		f.emit(telemetry.NewConnectionStatusChanged(f.relayURL, false))
	}
	r, err := f.redial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reconnect: %w", err)
	}
	old := f.relay
	f.relay = r
	_ = old.Close()
	f.logger.Printf("reconnected to %s", f.relayURL)
	return r, nil
}

func (f *Feed) debugf(format string, args ...interface{}) {
	if f.debug {
		f.logger.Printf(format, args...)
	}
}

func (f *Feed) emitErr(err error, where string, severity telemetry.ErrorSeverity) {
	if f.emit != nil {
		f.emit(telemetry.NewFeedError(err, where, severity))
	}
}

// safeUnsub tolerates subscriptions whose relay is already gone.
func safeUnsub(sub *nostr.Subscription) {
	defer func() { _ = recover() }()
	sub.Unsub()
}

// accumulator keeps a deduplicated, ascending run of snapshots newer than
// since, bounded to the newest limit entries.
type accumulator struct {
	since int64
	limit int
	ids   map[string]struct{}
	snaps []stats.Snapshot
}

func newAccumulator(since int64, limit int) *accumulator {
	return &accumulator{since: since, limit: limit, ids: make(map[string]struct{})}
}

func (a *accumulator) add(id string, snap stats.Snapshot) bool {
	if snap.Timestamp <= a.since {
		return false
	}
	if _, dup := a.ids[id]; dup {
		return false
	}
	a.ids[id] = struct{}{}

	i := sort.Search(len(a.snaps), func(i int) bool { return a.snaps[i].Timestamp > snap.Timestamp })
	a.snaps = append(a.snaps, stats.Snapshot{})
	copy(a.snaps[i+1:], a.snaps[i:])
	a.snaps[i] = snap

	if a.limit > 0 && len(a.snaps) > a.limit {
		a.snaps = a.snaps[len(a.snaps)-a.limit:]
	}
	return true
}

func (a *accumulator) len() int { return len(a.snaps) }

func (a *accumulator) batch() []stats.Snapshot {
	out := make([]stats.Snapshot, len(a.snaps))
	copy(out, a.snaps)
	return out
}
