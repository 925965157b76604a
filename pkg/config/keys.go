package config

// Configuration key constants
// These constants centralize all environment variable and configuration key names
// to eliminate magic strings and improve maintainability.

const (
	// Core service configuration keys
	KeyRelayURL       = "RELAY_URL"
	KeyDevicePubKey   = "DEVICE_PUBKEY"
	KeyNostrSecretKey = "NOSTR_SECKEY"
	KeyConfigFile     = "CONFIG_FILE"
	KeyDebug          = "DEBUG"

	// Window configuration keys
	KeyHorizonSeconds        = "HORIZON_SECONDS"
	KeyPruneIntervalSeconds  = "PRUNE_INTERVAL_SECONDS"
	KeyStatusIntervalSeconds = "STATUS_INTERVAL_SECONDS"

	// Sync and export configuration keys
	KeySyncMaxBatch          = "SYNC_MAX_BATCH"
	KeyExportLimit           = "EXPORT_LIMIT"
	KeyExportLookbackSeconds = "EXPORT_LOOKBACK_SECONDS"

	// Network configuration keys
	KeyNetworkMaxAttempts           = "NETWORK_MAX_ATTEMPTS"
	KeyNetworkInitialBackoffSeconds = "NETWORK_INITIAL_BACKOFF_SECONDS"
	KeyNetworkMaxBackoffSeconds     = "NETWORK_MAX_BACKOFF_SECONDS"
	KeyNetworkBackoffJitter         = "NETWORK_BACKOFF_JITTER"

	// Timeout configuration keys
	KeyTimeoutPublishSeconds   = "TIMEOUT_PUBLISH_SECONDS"
	KeyTimeoutSubscribeSeconds = "TIMEOUT_SUBSCRIBE_SECONDS"
	KeyTimeoutFetchSeconds     = "TIMEOUT_FETCH_SECONDS"

	// Metrics endpoint
	KeyMetricsListen = "METRICS_LISTEN"

	// Config file only: metric catalog override
	KeyMetricsCatalog = "metrics"
)

// Default values for configuration
const (
	// Window defaults
	DefaultHorizonSeconds        = 3600
	DefaultPruneIntervalSeconds  = 60
	DefaultStatusIntervalSeconds = 10

	// Sync and export defaults
	DefaultSyncMaxBatch          = 1000
	DefaultExportLimit           = 5000
	DefaultExportLookbackSeconds = 365 * 24 * 60 * 60

	// Network defaults
	DefaultNetworkMaxAttempts           = 3
	DefaultNetworkInitialBackoffSeconds = 1
	DefaultNetworkMaxBackoffSeconds     = 30
	DefaultNetworkBackoffJitter         = 0.2

	// Timeout defaults
	DefaultTimeoutPublishSeconds   = 10
	DefaultTimeoutSubscribeSeconds = 10
	DefaultTimeoutFetchSeconds     = 30

	// Config file lookup when CONFIG_FILE is unset
	DefaultConfigName = "aquawatch"
	DefaultConfigType = "yaml"
)

// CLI flag name constants
const (
	// CLI flag names (kebab-case for command line)
	FlagRelayURL                     = "relay-url"
	FlagDevicePubKey                 = "device-pubkey"
	FlagNostrSecretKey               = "nostr-secret-key"
	FlagConfigFile                   = "config"
	FlagDebug                        = "debug"
	FlagHorizonSeconds               = "horizon-seconds"
	FlagPruneIntervalSeconds         = "prune-interval-seconds"
	FlagStatusIntervalSeconds        = "status-interval-seconds"
	FlagSyncMaxBatch                 = "sync-max-batch"
	FlagExportLimit                  = "export-limit"
	FlagExportLookbackSeconds        = "export-lookback-seconds"
	FlagNetworkMaxAttempts           = "network-max-attempts"
	FlagNetworkInitialBackoffSeconds = "network-initial-backoff-seconds"
	FlagNetworkMaxBackoffSeconds     = "network-max-backoff-seconds"
	FlagNetworkBackoffJitter         = "network-backoff-jitter"
	FlagTimeoutPublishSeconds        = "timeout-publish-seconds"
	FlagTimeoutSubscribeSeconds      = "timeout-subscribe-seconds"
	FlagTimeoutFetchSeconds          = "timeout-fetch-seconds"
	FlagMetricsListen                = "metrics-listen"
)

// Help message constants
const (
	AppName        = "aquawatch"
	AppDescription = "Watch aquaponics telemetry from a nostr relay"

	// Help descriptions
	HelpRelayURL                     = "Relay URL (required)"
	HelpDevicePubKey                 = "Device public key, npub or hex (required to read)"
	HelpNostrSecretKey               = "Device secret key, nsec or hex (required to publish)"
	HelpConfigFile                   = "Path to a YAML config file"
	HelpDebug                        = "Verbose logging"
	HelpHorizonSeconds               = "Look-back window in seconds, 0 for unbounded"
	HelpPruneIntervalSeconds         = "Seconds between window prunes"
	HelpStatusIntervalSeconds        = "Seconds between status lines"
	HelpSyncMaxBatch                 = "Max snapshots held per subscription"
	HelpExportLimit                  = "Max snapshots fetched by a full export"
	HelpExportLookbackSeconds        = "How far back a full export reaches"
	HelpNetworkMaxAttempts           = "Relay connection attempts"
	HelpNetworkInitialBackoffSeconds = "Initial backoff in seconds"
	HelpNetworkMaxBackoffSeconds     = "Max backoff in seconds"
	HelpNetworkBackoffJitter         = "Backoff jitter"
	HelpTimeoutPublishSeconds        = "Publish timeout in seconds"
	HelpTimeoutSubscribeSeconds      = "Time to wait for the first batch in seconds"
	HelpTimeoutFetchSeconds          = "Full export fetch timeout in seconds"
	HelpMetricsListen                = "Address for the Prometheus /metrics endpoint, empty to disable"

	HelpNote = "CLI options override environment variables, which override the config file"
)
