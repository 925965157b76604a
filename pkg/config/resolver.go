package config

import (
	"fmt"

	"aquawatch/pkg/stats"
)

// Origin names where a resolved value came from.
const (
	OriginFlag    = "flag"
	OriginEnv     = "env"
	OriginFile    = "file"
	OriginDefault = "default"
)

// StructuredSource is a ConfigSource that can also decode nested values.
// Only the config file is one.
type StructuredSource interface {
	UnmarshalKey(key string, out interface{}) (bool, error)
}

// ConfigResolver walks its sources in precedence order and remembers which
// one supplied each key.
type ConfigResolver struct {
	sources []ConfigSource
	origins map[string]string
}

func NewConfigResolver(sources ...ConfigSource) *ConfigResolver {
	return &ConfigResolver{sources: sources, origins: make(map[string]string)}
}

func resolve[T any](r *ConfigResolver, key string, defaultValue T, get func(ConfigSource) (T, bool)) T {
	for _, source := range r.sources {
		if value, found := get(source); found {
			r.origins[key] = originOf(source)
			return value
		}
	}
	r.origins[key] = OriginDefault
	return defaultValue
}

func (r *ConfigResolver) ResolveString(key, defaultValue string) string {
	return resolve(r, key, defaultValue, func(s ConfigSource) (string, bool) { return s.GetString(key) })
}

func (r *ConfigResolver) ResolveInt(key string, defaultValue int) int {
	return resolve(r, key, defaultValue, func(s ConfigSource) (int, bool) { return s.GetInt(key) })
}

func (r *ConfigResolver) ResolveFloat(key string, defaultValue float64) float64 {
	return resolve(r, key, defaultValue, func(s ConfigSource) (float64, bool) { return s.GetFloat(key) })
}

func (r *ConfigResolver) ResolveBool(key string, defaultValue bool) bool {
	return resolve(r, key, defaultValue, func(s ConfigSource) (bool, bool) { return s.GetBool(key) })
}

// ResolveCatalog decodes the metric catalog from the first structured source
// that sets key. Every metric needs a key and keys must be unique.
func (r *ConfigResolver) ResolveCatalog(key string, defaultValue stats.Catalog) (stats.Catalog, error) {
	for _, source := range r.sources {
		structured, ok := source.(StructuredSource)
		if !ok {
			continue
		}
		var catalog stats.Catalog
		found, err := structured.UnmarshalKey(key, &catalog)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if err := checkCatalog(catalog); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		r.origins[key] = originOf(source)
		return catalog, nil
	}
	r.origins[key] = OriginDefault
	return defaultValue, nil
}

// Origin reports which source supplied key, empty if key was never resolved.
func (r *ConfigResolver) Origin(key string) string {
	return r.origins[key]
}

// Origins returns a copy of every resolved key's origin.
func (r *ConfigResolver) Origins() map[string]string {
	out := make(map[string]string, len(r.origins))
	for k, v := range r.origins {
		out[k] = v
	}
	return out
}

func originOf(source ConfigSource) string {
	switch source.(type) {
	case *FlagSource:
		return OriginFlag
	case *EnvSource:
		return OriginEnv
	case *FileSource:
		return OriginFile
	default:
		return fmt.Sprintf("%T", source)
	}
}

func checkCatalog(catalog stats.Catalog) error {
	seen := make(map[string]bool, len(catalog))
	for i, m := range catalog {
		if m.Key == "" {
			return fmt.Errorf("metric %d has no key", i)
		}
		if seen[m.Key] {
			return fmt.Errorf("duplicate metric %s", m.Key)
		}
		seen[m.Key] = true
	}
	return nil
}
