package config

import (
	"github.com/urfave/cli/v2"
)

type flagKind int

const (
	kindString flagKind = iota
	kindInt
	kindFloat
	kindBool
)

type flagDef struct {
	name  string
	key   string
	usage string
	kind  flagKind
}

var flagDefs = []flagDef{
	{FlagRelayURL, KeyRelayURL, HelpRelayURL, kindString},
	{FlagDevicePubKey, KeyDevicePubKey, HelpDevicePubKey, kindString},
	{FlagNostrSecretKey, KeyNostrSecretKey, HelpNostrSecretKey, kindString},
	{FlagConfigFile, KeyConfigFile, HelpConfigFile, kindString},
	{FlagDebug, KeyDebug, HelpDebug, kindBool},
	{FlagHorizonSeconds, KeyHorizonSeconds, HelpHorizonSeconds, kindInt},
	{FlagPruneIntervalSeconds, KeyPruneIntervalSeconds, HelpPruneIntervalSeconds, kindInt},
	{FlagStatusIntervalSeconds, KeyStatusIntervalSeconds, HelpStatusIntervalSeconds, kindInt},
	{FlagSyncMaxBatch, KeySyncMaxBatch, HelpSyncMaxBatch, kindInt},
	{FlagExportLimit, KeyExportLimit, HelpExportLimit, kindInt},
	{FlagExportLookbackSeconds, KeyExportLookbackSeconds, HelpExportLookbackSeconds, kindInt},
	{FlagNetworkMaxAttempts, KeyNetworkMaxAttempts, HelpNetworkMaxAttempts, kindInt},
	{FlagNetworkInitialBackoffSeconds, KeyNetworkInitialBackoffSeconds, HelpNetworkInitialBackoffSeconds, kindInt},
	{FlagNetworkMaxBackoffSeconds, KeyNetworkMaxBackoffSeconds, HelpNetworkMaxBackoffSeconds, kindInt},
	{FlagNetworkBackoffJitter, KeyNetworkBackoffJitter, HelpNetworkBackoffJitter, kindFloat},
	{FlagTimeoutPublishSeconds, KeyTimeoutPublishSeconds, HelpTimeoutPublishSeconds, kindInt},
	{FlagTimeoutSubscribeSeconds, KeyTimeoutSubscribeSeconds, HelpTimeoutSubscribeSeconds, kindInt},
	{FlagTimeoutFetchSeconds, KeyTimeoutFetchSeconds, HelpTimeoutFetchSeconds, kindInt},
	{FlagMetricsListen, KeyMetricsListen, HelpMetricsListen, kindString},
}

// Flags returns the global CLI flags. Defaults are not set here; unset flags
// fall through to the environment, the config file and then the defaults.
func Flags() []cli.Flag {
	flags := make([]cli.Flag, 0, len(flagDefs))
	for _, s := range flagDefs {
		usage := s.usage + " [" + s.key + "]"
		switch s.kind {
		case kindString:
			flags = append(flags, &cli.StringFlag{Name: s.name, Usage: usage})
		case kindInt:
			flags = append(flags, &cli.IntFlag{Name: s.name, Usage: usage})
		case kindFloat:
			flags = append(flags, &cli.Float64Flag{Name: s.name, Usage: usage})
		case kindBool:
			flags = append(flags, &cli.BoolFlag{Name: s.name, Usage: usage})
		}
	}
	return flags
}

// FlagSourceFromContext collects the flags the user actually set.
func FlagSourceFromContext(c *cli.Context) *FlagSource {
	flagSource := NewFlagSource()
	for _, s := range flagDefs {
		if !c.IsSet(s.name) {
			continue
		}
		switch s.kind {
		case kindString:
			flagSource.Set(s.key, c.String(s.name))
		case kindInt:
			flagSource.Set(s.key, c.Int(s.name))
		case kindFloat:
			flagSource.Set(s.key, c.Float64(s.name))
		case kindBool:
			flagSource.Set(s.key, c.Bool(s.name))
		}
	}
	return flagSource
}
