package config

import (
	"errors"
	"fmt"

	"aquawatch/pkg/crypto"
	"aquawatch/pkg/utils"
)

var (
	ErrMissingRelayURL     = errors.New(KeyRelayURL + " is required")
	ErrMissingDevicePubKey = errors.New(KeyDevicePubKey + " is required")
	ErrMissingSecretKey    = errors.New(KeyNostrSecretKey + " is required")
)

// Validate checks what reading from the relay needs and decodes the device
// public key. When only a secret key is given, the device key is derived
// from it.
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return ErrMissingRelayURL
	}

	switch {
	case c.DevicePubKey != "":
		pkHex, err := crypto.DecodePublicKey(c.DevicePubKey)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", KeyDevicePubKey, err)
		}
		c.DevicePubKeyHex = pkHex
	case c.NostrSecretKey != "":
		if err := c.deriveKeyPair(); err != nil {
			return err
		}
		c.DevicePubKeyHex = c.NostrKeyPair.PublicKeyHex
	default:
		return ErrMissingDevicePubKey
	}

	if c.Window.HorizonSeconds < 0 {
		return fmt.Errorf("%s must not be negative", KeyHorizonSeconds)
	}
	positive := map[string]int{
		KeyPruneIntervalSeconds:         c.Window.PruneIntervalSeconds,
		KeyStatusIntervalSeconds:        c.Window.StatusIntervalSeconds,
		KeySyncMaxBatch:                 c.Sync.MaxBatch,
		KeyExportLimit:                  c.Export.Limit,
		KeyExportLookbackSeconds:        c.Export.LookbackSeconds,
		KeyNetworkMaxAttempts:           c.Network.MaxAttempts,
		KeyNetworkInitialBackoffSeconds: c.Network.InitialBackoffSeconds,
		KeyNetworkMaxBackoffSeconds:     c.Network.MaxBackoffSeconds,
		KeyTimeoutPublishSeconds:        c.Timeouts.PublishSeconds,
		KeyTimeoutSubscribeSeconds:      c.Timeouts.SubscribeSeconds,
		KeyTimeoutFetchSeconds:          c.Timeouts.FetchSeconds,
	}
	for _, key := range utils.SortedKeys(positive) {
		if positive[key] <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, positive[key])
		}
	}
	if c.Network.BackoffJitter < 0 || c.Network.BackoffJitter > 1 {
		return fmt.Errorf("%s must be between 0 and 1", KeyNetworkBackoffJitter)
	}
	if len(c.Catalog) == 0 {
		return errors.New("metric catalog is empty")
	}
	return nil
}

// ValidateSigner checks what publishing needs and derives the key pair.
func (c *Config) ValidateSigner() error {
	if c.RelayURL == "" {
		return ErrMissingRelayURL
	}
	if c.NostrSecretKey == "" {
		return ErrMissingSecretKey
	}
	return c.deriveKeyPair()
}

func (c *Config) deriveKeyPair() error {
	if c.NostrKeyPair != nil {
		return nil
	}
	keyPair, err := crypto.DeriveKeyPair(c.NostrSecretKey)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", KeyNostrSecretKey, err)
	}
	c.NostrKeyPair = keyPair
	return nil
}
