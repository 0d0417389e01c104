// Package config loads the server configuration from, in order of
// precedence: command-line flags, STUDYDECK_-prefixed environment
// variables, and an optional YAML file.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "STUDYDECK_"

// Config holds everything the binary needs to run.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string `koanf:"listen_addr" validate:"required"`
	// DatabasePath is the SQLite file holding decks and cards.
	DatabasePath string `koanf:"database_path" validate:"required"`
	// SessionLimit caps the number of due cards handed out per study
	// session when the request does not specify one.
	SessionLimit int `koanf:"session_limit" validate:"gt=0"`
	// ReposDir is where imported git repositories are checked out.
	ReposDir string `koanf:"repos_dir" validate:"required"`
	// BaseURL is used to build share links; falls back to the request
	// host when empty.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
}

// Flags defines the command-line flags mirroring the config keys.
// Flag defaults double as the configuration defaults.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("studydeck", pflag.ContinueOnError)
	f.String("config", "", "path to a YAML config file")
	f.String("listen_addr", ":8080", "address for the HTTP server")
	f.String("database_path", "studydeck.db", "path to the SQLite database file")
	f.Int("session_limit", 20, "default number of due cards per study session")
	f.String("repos_dir", "repos", "directory for imported git repositories")
	f.String("base_url", "", "external base URL for share links")
	f.String("log_level", "info", "log level (debug, info, warn, error)")
	return f
}

// Load layers the file, environment, and flag providers and validates
// the result. Flags win over environment variables, which win over the
// file; flag defaults fill whatever remains.
func Load(f *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
