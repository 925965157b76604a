package config

import (
	"fmt"
	"time"

	"aquawatch/pkg/crypto"
	"aquawatch/pkg/stats"
)

type Config struct {
	RelayURL        string
	DevicePubKey    string // as given, npub or hex
	DevicePubKeyHex string
	NostrSecretKey  string
	NostrKeyPair    *crypto.KeyPair // nil unless a secret key was given
	ConfigFile      string          // file actually read, empty when none
	Debug           bool
	MetricsListen   string
	Catalog         stats.Catalog
	Origins         map[string]string // key to the source that set it
	Window          WindowConfig
	Sync            SyncConfig
	Export          ExportConfig
	Network         NetworkConfig
	Timeouts        TimeoutConfig
}

type WindowConfig struct {
	HorizonSeconds        int
	PruneIntervalSeconds  int
	StatusIntervalSeconds int
}

type SyncConfig struct {
	MaxBatch int
}

type ExportConfig struct {
	Limit           int
	LookbackSeconds int
}

type NetworkConfig struct {
	MaxAttempts           int
	InitialBackoffSeconds int
	MaxBackoffSeconds     int
	BackoffJitter         float64
}

type TimeoutConfig struct {
	PublishSeconds   int
	SubscribeSeconds int
	FetchSeconds     int
}

// Load resolves configuration with precedence: CLI flags > environment
// variables > config file > defaults. A nil flagSource means no flags. Load
// does not validate; commands call Validate or ValidateSigner for what they
// need.
func Load(flagSource *FlagSource) (*Config, error) {
	if flagSource == nil {
		flagSource = NewFlagSource()
	}
	env := &EnvSource{}

	path := NewConfigResolver(flagSource, env).ResolveString(KeyConfigFile, "")
	file, err := NewFileSource(path)
	if err != nil {
		return nil, err
	}

	resolver := NewConfigResolver(flagSource, env, file)

	cfg := &Config{
		RelayURL:       resolver.ResolveString(KeyRelayURL, ""),
		DevicePubKey:   resolver.ResolveString(KeyDevicePubKey, ""),
		NostrSecretKey: resolver.ResolveString(KeyNostrSecretKey, ""),
		ConfigFile:     file.Used(),
		Debug:          resolver.ResolveBool(KeyDebug, false),
		MetricsListen:  resolver.ResolveString(KeyMetricsListen, ""),
		Window: WindowConfig{
			HorizonSeconds:        resolver.ResolveInt(KeyHorizonSeconds, DefaultHorizonSeconds),
			PruneIntervalSeconds:  resolver.ResolveInt(KeyPruneIntervalSeconds, DefaultPruneIntervalSeconds),
			StatusIntervalSeconds: resolver.ResolveInt(KeyStatusIntervalSeconds, DefaultStatusIntervalSeconds),
		},
		Sync: SyncConfig{
			MaxBatch: resolver.ResolveInt(KeySyncMaxBatch, DefaultSyncMaxBatch),
		},
		Export: ExportConfig{
			Limit:           resolver.ResolveInt(KeyExportLimit, DefaultExportLimit),
			LookbackSeconds: resolver.ResolveInt(KeyExportLookbackSeconds, DefaultExportLookbackSeconds),
		},
		Network: NetworkConfig{
			MaxAttempts:           resolver.ResolveInt(KeyNetworkMaxAttempts, DefaultNetworkMaxAttempts),
			InitialBackoffSeconds: resolver.ResolveInt(KeyNetworkInitialBackoffSeconds, DefaultNetworkInitialBackoffSeconds),
			MaxBackoffSeconds:     resolver.ResolveInt(KeyNetworkMaxBackoffSeconds, DefaultNetworkMaxBackoffSeconds),
			BackoffJitter:         resolver.ResolveFloat(KeyNetworkBackoffJitter, DefaultNetworkBackoffJitter),
		},
		Timeouts: TimeoutConfig{
			PublishSeconds:   resolver.ResolveInt(KeyTimeoutPublishSeconds, DefaultTimeoutPublishSeconds),
			SubscribeSeconds: resolver.ResolveInt(KeyTimeoutSubscribeSeconds, DefaultTimeoutSubscribeSeconds),
			FetchSeconds:     resolver.ResolveInt(KeyTimeoutFetchSeconds, DefaultTimeoutFetchSeconds),
		},
	}

	catalog, err := resolver.ResolveCatalog(KeyMetricsCatalog, stats.DefaultCatalog())
	if err != nil {
		return nil, err
	}
	cfg.Catalog = catalog
	cfg.Origins = resolver.Origins()

	return cfg, nil
}

// PruneInterval returns the prune cadence as a duration.
func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.Window.PruneIntervalSeconds) * time.Second
}

func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Window.StatusIntervalSeconds) * time.Second
}

func (c *Config) SubscribeTimeout() time.Duration {
	return time.Duration(c.Timeouts.SubscribeSeconds) * time.Second
}

func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.Timeouts.PublishSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Timeouts.FetchSeconds) * time.Second
}

// String summarises the effective configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("relay=%s device=%s horizon=%ds prune=%ds max_batch=%d metrics=%q file=%q",
		c.RelayURL, c.DevicePubKeyHex, c.Window.HorizonSeconds, c.Window.PruneIntervalSeconds,
		c.Sync.MaxBatch, c.MetricsListen, c.ConfigFile)
}
