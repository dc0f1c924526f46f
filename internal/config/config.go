// Package config loads playnext settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults
//  2. an optional YAML file (explicit path, $PLAYNEXT_CONFIG, or
//     playnext.yaml / playnext.yml in the working directory)
//  3. PLAYNEXT_* environment variables
//
// Command-line flags are applied on top by the caller, which then calls
// Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/chriscorrea/playnext/internal/recommend"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PLAYNEXT_"

// PathEnvVar overrides the config file location.
const PathEnvVar = EnvPrefix + "CONFIG"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{"playnext.yaml", "playnext.yml"}

// Config holds every playnext setting.
type Config struct {
	Source      string `koanf:"source" validate:"required"`                 // file path, http(s) URL, or "-" for stdin
	Format      string `koanf:"format" validate:"oneof=auto json csv"`      // source layout
	SnapshotDir string `koanf:"snapshot_dir"`                               // processed catalog store; empty disables it
	Output      string `koanf:"output" validate:"oneof=text markdown json"` // result format
	TopN        int    `koanf:"top_n" validate:"gt=0"`
	QuitCommand string `koanf:"quit_command" validate:"required"`
	Debug       bool   `koanf:"debug"`
	Quiet       bool   `koanf:"quiet"`

	Engine recommend.Config `koanf:"engine"`
	Fetch  FetchConfig      `koanf:"fetch"`
	Server ServerConfig     `koanf:"server"`
}

// FetchConfig bounds catalog downloads.
type FetchConfig struct {
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxBytes int64         `koanf:"max_bytes" validate:"gt=0"`
}

// ServerConfig configures `playnext serve`.
type ServerConfig struct {
	Addr         string        `koanf:"addr" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	RateLimit    int           `koanf:"rate_limit" validate:"gte=0"` // requests per minute per client IP; 0 disables
	CORSOrigins  []string      `koanf:"cors_origins"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Source:      "data/raw/games.json",
		Format:      "auto",
		SnapshotDir: "data/processed/catalog",
		Output:      "text",
		TopN:        10,
		QuitCommand: "q",
		Engine:      recommend.DefaultConfig(),
		Fetch: FetchConfig{
			Timeout:  2 * time.Minute,
			MaxBytes: 512 << 20,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    120,
		},
	}
}

// envKeys maps environment variable suffixes to config keys. Keys contain
// underscores, so the mapping is explicit rather than derived.
var envKeys = map[string]string{
	"source":               "source",
	"format":               "format",
	"snapshot_dir":         "snapshot_dir",
	"output":               "output",
	"top_n":                "top_n",
	"quit_command":         "quit_command",
	"debug":                "debug",
	"quiet":                "quiet",
	"engine_alpha":         "engine.alpha",
	"engine_epsilon":       "engine.epsilon",
	"engine_max_features":  "engine.max_features",
	"engine_stem":          "engine.stem",
	"engine_suggestions":   "engine.suggestions",
	"fetch_timeout":        "fetch.timeout",
	"fetch_max_bytes":      "fetch.max_bytes",
	"server_addr":          "server.addr",
	"server_rate_limit":    "server.rate_limit",
	"server_cors_origins":  "server.cors_origins",
	"server_read_timeout":  "server.read_timeout",
	"server_write_timeout": "server.write_timeout",
}

// envKey maps PLAYNEXT_ENGINE_ALPHA to engine.alpha; unknown variables map
// to "" and are ignored.
func envKey(name string) string {
	suffix := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return envKeys[suffix]
}

// Load layers defaults, the config file (if any) and environment variables.
// path may be empty. The result is not validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the file to load. An explicit path or
// $PLAYNEXT_CONFIG must exist; the default paths are optional.
func findConfigFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %q: %w", path, err)
		}
		return path, nil
	}

	for _, candidate := range DefaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file %q: %w", candidate, err)
		}
	}
	return "", nil
}

var configValidator = validator.New()

// Validate checks every setting, engine parameters included.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
