package config

import "time"

// Options configures the config loader.
type Options struct {
	// YAMLPath is the path to the primary YAML config file.
	YAMLPath string

	// EnvPath is the path to the fallback .env file, used only when YAML is absent.
	EnvPath string
}

// ConfigProvider is the interface consumers depend on for reading the
// daemon's own configuration. Implementations must be safe for concurrent use.
type ConfigProvider interface {
	// GetString returns the value associated with the key as a string.
	GetString(key string) string

	// GetInt returns the value associated with the key as an int.
	GetInt(key string) int

	// GetInt64 returns the value associated with the key as an int64.
	GetInt64(key string) int64

	// GetBool returns the value associated with the key as a bool.
	GetBool(key string) bool

	// GetDuration returns the value associated with the key as a time.Duration.
	GetDuration(key string) time.Duration

	// GetStringSlice returns the value associated with the key as a slice of strings.
	GetStringSlice(key string) []string

	// IsSet checks whether the key is set in the config.
	IsSet(key string) bool

	// UnmarshalKey decodes the subtree at key into out using `mapstructure` tags.
	UnmarshalKey(key string, out any) error

	// Source returns which config source is active: "yaml" or "env".
	Source() string

	// File returns the path of the loaded file.
	File() string
}
