// Package config loads the fieldjson command line tool configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/maruel/fieldjson/internal/fieldjson"
)

// DefaultPath is the configuration file looked up in the working directory.
const DefaultPath = "fieldjson.json"

// Config stores all tool-wide configuration.
// Loaded from a JSON file, defaults apply when the file is missing.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// Conflict is the exclusive-create race policy: skip or error.
	Conflict string `json:"conflict"`

	// Workers > 1 writes field files concurrently.
	Workers int `json:"workers"`

	// ReadOnly marks newly created field files read-only.
	ReadOnly bool `json:"read_only"`

	// Git controls committing new field files.
	Git GitConfig `json:"git"`

	// WatchInterval is the minimum delay between two reloads in watch mode.
	WatchInterval Duration `json:"watch_interval"`
}

// GitConfig configures the commit history of record directories.
type GitConfig struct {
	// Enabled commits newly created field files after each write.
	Enabled     bool   `json:"enabled"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
}

// Duration is a time.Duration encoded as a string like "250ms".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Conflict: "skip",
		Workers:  1,
		ReadOnly: true,
		Git: GitConfig{
			AuthorName:  "fieldjson",
			AuthorEmail: "fieldjson@localhost",
		},
		WatchInterval: Duration(250 * time.Millisecond),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := ParseConflict(c.Conflict); err != nil {
		return err
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.WatchInterval < 0 {
		return errors.New("watch_interval must be non-negative")
	}
	if c.Git.Enabled && (c.Git.AuthorName == "" || c.Git.AuthorEmail == "") {
		return errors.New("git: author_name and author_email are required when enabled")
	}
	return nil
}

// Load loads configuration from path.
// Returns the defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-specified config path
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Codec returns a codec configured from c.
func (c *Config) Codec(logger *slog.Logger) (*fieldjson.Codec, error) {
	policy, err := ParseConflict(c.Conflict)
	if err != nil {
		return nil, err
	}
	codec := &fieldjson.Codec{
		Conflict: policy,
		Workers:  c.Workers,
		Logger:   logger,
	}
	if !c.ReadOnly {
		codec.ReadOnly = func(string) error { return nil }
	}
	return codec, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

// ParseConflict maps a policy name to a fieldjson.ConflictPolicy.
func ParseConflict(s string) (fieldjson.ConflictPolicy, error) {
	switch s {
	case "skip":
		return fieldjson.ConflictSkip, nil
	case "error":
		return fieldjson.ConflictError, nil
	default:
		return 0, fmt.Errorf("unknown conflict policy: %q", s)
	}
}
