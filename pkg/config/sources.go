package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents a source of configuration values
type ConfigSource interface {
	GetString(key string) (string, bool)
	GetInt(key string) (int, bool)
	GetFloat(key string) (float64, bool)
	GetBool(key string) (bool, bool)
}

// EnvSource implements ConfigSource for environment variables
type EnvSource struct{}

func (e *EnvSource) GetString(key string) (string, bool) {
	value := os.Getenv(key)
	return value, value != ""
}

func (e *EnvSource) GetInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i, true
	}
	return 0, false
}

func (e *EnvSource) GetFloat(key string) (float64, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f, true
	}
	return 0, false
}

func (e *EnvSource) GetBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b, true
	}
	return false, false
}

// FlagSource implements ConfigSource for command-line flags
type FlagSource struct {
	values map[string]interface{}
}

func NewFlagSource() *FlagSource {
	return &FlagSource{values: make(map[string]interface{})}
}

func (f *FlagSource) Set(key string, value interface{}) {
	f.values[key] = value
}

func (f *FlagSource) GetString(key string) (string, bool) {
	if value, exists := f.values[key]; exists {
		if str, ok := value.(string); ok && str != "" {
			return str, true
		}
	}
	return "", false
}

func (f *FlagSource) GetInt(key string) (int, bool) {
	if value, exists := f.values[key]; exists {
		if i, ok := value.(int); ok {
			return i, true
		}
	}
	return 0, false
}

func (f *FlagSource) GetFloat(key string) (float64, bool) {
	if value, exists := f.values[key]; exists {
		if fl, ok := value.(float64); ok {
			return fl, true
		}
	}
	return 0, false
}

func (f *FlagSource) GetBool(key string) (bool, bool) {
	if value, exists := f.values[key]; exists {
		if b, ok := value.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// FileSource implements ConfigSource for a YAML config file read by viper.
// Keys are matched case-insensitively, so RELAY_URL reads relay_url.
type FileSource struct {
	v *viper.Viper
}

// NewFileSource reads path, or searches the working directory and
// $HOME/.config/aquawatch for aquawatch.yaml when path is empty. A missing
// file is only an error when path was given explicitly.
func NewFileSource(path string) (*FileSource, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/aquawatch")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return &FileSource{v: v}, nil
}

// Used returns the config file that was read, empty when none was found.
func (f *FileSource) Used() string { return f.v.ConfigFileUsed() }

// UnmarshalKey decodes a nested value such as the metric catalog.
func (f *FileSource) UnmarshalKey(key string, out interface{}) (bool, error) {
	if !f.v.IsSet(key) {
		return false, nil
	}
	if err := f.v.UnmarshalKey(key, out); err != nil {
		return false, fmt.Errorf("unable to decode %s: %w", key, err)
	}
	return true, nil
}

func (f *FileSource) GetString(key string) (string, bool) {
	if !f.v.IsSet(key) {
		return "", false
	}
	value := f.v.GetString(key)
	return value, value != ""
}

func (f *FileSource) GetInt(key string) (int, bool) {
	if !f.v.IsSet(key) {
		return 0, false
	}
	if i, err := strconv.Atoi(strings.TrimSpace(f.v.GetString(key))); err == nil {
		return i, true
	}
	return 0, false
}

func (f *FileSource) GetFloat(key string) (float64, bool) {
	if !f.v.IsSet(key) {
		return 0, false
	}
	if fl, err := strconv.ParseFloat(strings.TrimSpace(f.v.GetString(key)), 64); err == nil {
		return fl, true
	}
	return 0, false
}

func (f *FileSource) GetBool(key string) (bool, bool) {
	if !f.v.IsSet(key) {
		return false, false
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(f.v.GetString(key))); err == nil {
		return b, true
	}
	return false, false
}
