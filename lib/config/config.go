// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the streamfleet
// daemon.
//
// Configuration is loaded from a single YAML file specified by:
//   - STREAMFLEET_CONFIG environment variable, or
//   - --config flag passed to streamfleetd
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PrimaryClientID is the client identifier of the mandatory primary
// bot client. The configuration must always contain an entry for it.
const PrimaryClientID = 0

// Config is the master configuration for streamfleet.
type Config struct {
	// APIBaseURL is the base URL of the Bot API endpoint all clients
	// connect to (e.g., "https://api.telegram.org").
	APIBaseURL string `yaml:"api_base_url"`

	// Clients maps a client identifier to its connection parameters.
	// Identifier 0 is the primary client and is required; all other
	// identifiers denote optional secondary clients.
	Clients map[int]ClientConfig `yaml:"clients"`

	// OperatorChatID is the chat that receives operational
	// notifications (startup, crash, shutdown). Zero disables chat
	// notifications; they are then written to the log only.
	OperatorChatID int64 `yaml:"operator_chat_id"`

	// Storage configures the SQLite metadata store.
	Storage StorageConfig `yaml:"storage"`

	// Web configures the HTTP status server.
	Web WebConfig `yaml:"web"`

	// Cache configures the background cache refresher.
	Cache CacheConfig `yaml:"cache"`

	// Timeouts bounds individual client start/stop attempts.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Logging configures the log sinks.
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig holds the connection parameters for one bot client.
type ClientConfig struct {
	// APIID is the application identifier issued by the platform.
	APIID int `yaml:"api_id"`

	// APIHash is the application secret paired with APIID.
	APIHash string `yaml:"api_hash"`

	// BotToken authenticates the bot account itself.
	BotToken string `yaml:"bot_token"`
}

// StorageConfig configures the persistent metadata store.
type StorageConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist. Required.
	Path string `yaml:"path"`

	// PoolSize is the SQLite connection pool size. Zero selects the
	// store's default.
	PoolSize int `yaml:"pool_size"`
}

// WebConfig configures the HTTP status server.
type WebConfig struct {
	// Address is the TCP listen address (e.g., ":8080"). Empty
	// disables the web server.
	Address string `yaml:"address"`
}

// CacheConfig configures the cache refresher.
type CacheConfig struct {
	// RefreshInterval is how often the cache reloads hot file
	// metadata from storage. Default: 5m.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// HotLimit is the maximum number of entries held in memory.
	// Default: 1024.
	HotLimit int `yaml:"hot_limit"`
}

// TimeoutsConfig bounds individual client operations. A hung client
// start or stop delays only its own settlement, never the others, but
// overall readiness and shutdown wait for the slowest attempt — these
// timeouts put an upper bound on that wait.
type TimeoutsConfig struct {
	// ClientStart bounds one client start attempt. Default: 30s.
	ClientStart Duration `yaml:"client_start"`

	// ClientStop bounds one client stop attempt. Default: 15s.
	ClientStop Duration `yaml:"client_stop"`
}

// LoggingConfig configures the log sinks.
type LoggingConfig struct {
	// FilePath is the durable log sink. Entries are written to this
	// file and to stderr simultaneously. Empty disables the file
	// sink.
	FilePath string `yaml:"file_path"`

	// Level is the minimum level: "debug", "info", "warn", "error".
	// Default: "info".
	Level string `yaml:"level"`
}

// Duration is a time.Duration that unmarshals from a YAML string in
// time.ParseDuration syntax (e.g., "30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback -
// the config file is required.
func Default() *Config {
	return &Config{
		APIBaseURL: "https://api.telegram.org",
		Clients:    map[int]ClientConfig{},
		Storage: StorageConfig{
			Path: "streamfleet.db",
		},
		Web: WebConfig{
			Address: ":8080",
		},
		Cache: CacheConfig{
			RefreshInterval: Duration(5 * time.Minute),
			HotLimit:        1024,
		},
		Timeouts: TimeoutsConfig{
			ClientStart: Duration(30 * time.Second),
			ClientStop:  Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			FilePath: "log.txt",
			Level:    "info",
		},
	}
}

// Load loads configuration from the STREAMFLEET_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults - if STREAMFLEET_CONFIG is
// not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("STREAMFLEET_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("STREAMFLEET_CONFIG environment variable not set; " +
			"set it to the path of your streamfleet.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors. The primary client
// entry is mandatory: without it no other component can operate, so
// its absence fails validation before any network activity happens.
func (c *Config) Validate() error {
	var errs []error

	if c.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("api_base_url is required"))
	}

	if _, ok := c.Clients[PrimaryClientID]; !ok {
		errs = append(errs, fmt.Errorf("clients must contain an entry for the primary client (id %d)", PrimaryClientID))
	}

	for id, client := range c.Clients {
		if id < 0 {
			errs = append(errs, fmt.Errorf("client %d: identifier must be non-negative", id))
		}
		if client.BotToken == "" {
			errs = append(errs, fmt.Errorf("client %d: bot_token is required", id))
		}
		if client.APIHash == "" {
			errs = append(errs, fmt.Errorf("client %d: api_hash is required", id))
		}
	}

	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}

	if c.Cache.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache.refresh_interval must be positive"))
	}
	if c.Cache.HotLimit <= 0 {
		errs = append(errs, fmt.Errorf("cache.hot_limit must be positive"))
	}

	if c.Timeouts.ClientStart <= 0 {
		errs = append(errs, fmt.Errorf("timeouts.client_start must be positive"))
	}
	if c.Timeouts.ClientStop <= 0 {
		errs = append(errs, fmt.Errorf("timeouts.client_stop must be positive"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of: debug, info, warn, error"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
