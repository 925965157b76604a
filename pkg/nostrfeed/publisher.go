package nostrfeed

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/nbd-wtf/go-nostr"

	"aquawatch/pkg/crypto"
	"aquawatch/pkg/relay"
	"aquawatch/pkg/stats"
)

// Publisher writes device-side events: snapshots and the tolerance table.
type Publisher struct {
	relay   relay.Relay
	keyPair crypto.KeyPair
	logger  *log.Logger
}

func NewPublisher(r relay.Relay, keyPair crypto.KeyPair, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Publisher{relay: r, keyPair: keyPair, logger: logger}
}

// PublishSnapshot signs and publishes one snapshot event.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap stats.Snapshot) (nostr.Event, error) {
	event := EncodeSnapshot(snap)
	if err := p.signAndPublish(ctx, &event); err != nil {
		return event, fmt.Errorf("snapshot %d: %w", snap.Timestamp, err)
	}
	p.logger.Printf("published snapshot %d with %d readings (id: %s)", snap.Timestamp, len(snap.Readings), event.ID)
	return event, nil
}

// PublishTolerances replaces the tolerance table on the relay.
func (p *Publisher) PublishTolerances(ctx context.Context, table stats.Tolerances) (nostr.Event, error) {
	event := EncodeTolerances(table)
	if err := p.signAndPublish(ctx, &event); err != nil {
		return event, fmt.Errorf("tolerance table: %w", err)
	}
	p.logger.Printf("published tolerance table with %d metrics (id: %s)", len(table), event.ID)
	return event, nil
}

func (p *Publisher) signAndPublish(ctx context.Context, event *nostr.Event) error {
	event.PubKey = p.keyPair.PublicKeyHex
	if err := event.Sign(p.keyPair.PrivateKeyHex); err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}
	if err := p.relay.Publish(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
