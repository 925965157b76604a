package nostrfeed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"aquawatch/pkg/relay"
	"aquawatch/pkg/telemetry"
)

// Backoff controls relay connection retries.
type Backoff struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Jitter      float64 // fraction of the delay, 0..1
}

func DefaultBackoff() Backoff {
	return Backoff{MaxAttempts: 3, Initial: time.Second, Max: 30 * time.Second, Jitter: 0.2}
}

// Delay returns the wait before the given retry (1-based), before jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

func (b Backoff) jittered(attempt int) time.Duration {
	d := b.Delay(attempt)
	if b.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// DialFunc opens one relay connection.
type DialFunc func(ctx context.Context, url string) (relay.Relay, error)

func dialNostr(ctx context.Context, url string) (relay.Relay, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Connect dials url until it succeeds or the attempts run out.
func Connect(ctx context.Context, url string, b Backoff, emit func(telemetry.TelemetryEvent)) (relay.Relay, error) {
	return ConnectWith(ctx, dialNostr, url, b, emit)
}

// ConnectWith is Connect with a custom dialer.
func ConnectWith(ctx context.Context, dial DialFunc, url string, b Backoff, emit func(telemetry.TelemetryEvent)) (relay.Relay, error) {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		r, err := dial(ctx, url)
		if err == nil {
			if emit != nil {
				emit(telemetry.NewConnectionStatusChanged(url, true))
			}
			return r, nil
		}
		lastErr = err
		if emit != nil {
			emit(telemetry.NewFeedError(fmt.Errorf("attempt %d/%d to %s: %w", attempt, attempts, url, err), "relay_connect", telemetry.ErrorSeverityError))
			emit(telemetry.NewConnectionStatusChanged(url, false))
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.jittered(attempt)):
		}
	}
	return nil, fmt.Errorf("failed to connect to relay %s after %d attempts: %w", url, attempts, lastErr)
}
