// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the backend operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the -mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	AuthDBDriver *string
	AuthDBURL    *string
	TokenSecret  *string
	LoggingLevel *string
}

// fileConfig mirrors Config with pointer sections to detect presence.
type fileConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`

	Server  *serverSection  `toml:"server"`
	Broker  *brokerSection  `toml:"broker"`
	Token   *tokenSection   `toml:"token"`
	AuthDB  *authdbSection  `toml:"authdb"`
	Cache   *cacheSection   `toml:"cache"`
	Logging *loggingSection `toml:"logging"`
}

type serverSection struct {
	TrustedProxies        []string `toml:"trusted_proxies"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	MaxConnections        *int     `toml:"max_connections"`
}

type brokerSection struct {
	DefaultVhost       string           `toml:"default_vhost"`
	PushExchangePrefix string           `toml:"push_exchange_prefix"`
	AutogenQueuePrefix string           `toml:"autogen_queue_prefix"`
	SharedResources    []SharedResource `toml:"shared_resources"`
}

type tokenSection struct {
	ServerSecret string `toml:"server_secret"`
}

type authdbSection struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

type cacheSection struct {
	Enabled    *bool          `toml:"enabled"`
	Driver     string         `toml:"driver"`
	TTLSeconds int            `toml:"ttl_seconds"`
	Drivers    map[string]any `toml:"drivers"`
}

type loggingSection struct {
	Level string `toml:"level"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: -mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enums and mandatory fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "prod"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// presetForMode returns the defaults for the given mode.
func presetForMode(mode Mode) *Config {
	switch mode {
	case ModeDev:
		return DevConfig()
	default:
		return ProdConfig()
	}
}

// ProdConfig returns production mode defaults.
func ProdConfig() *Config {
	return &Config{
		Mode:       string(ModeProd),
		ListenAddr: ":8042",
		Server: ServerConfig{
			TrustedProxies:        []string{"127.0.0.0/8", "::1/128"},
			RequestTimeoutSeconds: 5,
			MaxConnections:        512,
		},
		Broker: BrokerConfig{
			DefaultVhost:       "/",
			PushExchangePrefix: "_push",
			AutogenQueuePrefix: "stomp",
		},
		AuthDB: AuthDBConfig{
			Driver: "gorm",
		},
		Cache: CacheConfig{
			Enabled:    false,
			Driver:     "memory",
			TTLSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevConfig returns development mode defaults: local listener, static
// fixture driver, debug logging.
func DevConfig() *Config {
	return &Config{
		Mode:       string(ModeDev),
		ListenAddr: "127.0.0.1:8042",
		Server: ServerConfig{
			TrustedProxies:        []string{"127.0.0.0/8", "::1/128"},
			RequestTimeoutSeconds: 5,
			MaxConnections:        128,
		},
		Broker: BrokerConfig{
			DefaultVhost:       "/",
			PushExchangePrefix: "_push",
			AutogenQueuePrefix: "stomp",
		},
		AuthDB: AuthDBConfig{
			Driver: "static",
		},
		Cache: CacheConfig{
			Enabled:    false,
			Driver:     "memory",
			TTLSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "debug",
		},
	}
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if len(fc.Server.TrustedProxies) > 0 {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
		if fc.Server.RequestTimeoutSeconds != 0 {
			cfg.Server.RequestTimeoutSeconds = fc.Server.RequestTimeoutSeconds
		}
		if fc.Server.MaxConnections != nil {
			cfg.Server.MaxConnections = *fc.Server.MaxConnections
		}
	}

	if fc.Broker != nil {
		if fc.Broker.DefaultVhost != "" {
			cfg.Broker.DefaultVhost = fc.Broker.DefaultVhost
		}
		if fc.Broker.PushExchangePrefix != "" {
			cfg.Broker.PushExchangePrefix = fc.Broker.PushExchangePrefix
		}
		if fc.Broker.AutogenQueuePrefix != "" {
			cfg.Broker.AutogenQueuePrefix = fc.Broker.AutogenQueuePrefix
		}
		if len(fc.Broker.SharedResources) > 0 {
			cfg.Broker.SharedResources = fc.Broker.SharedResources
		}
	}

	if fc.Token != nil {
		if fc.Token.ServerSecret != "" {
			cfg.Token.ServerSecret = fc.Token.ServerSecret
		}
	}

	if fc.AuthDB != nil {
		if fc.AuthDB.Driver != "" {
			cfg.AuthDB.Driver = fc.AuthDB.Driver
		}
		if len(fc.AuthDB.Drivers) > 0 {
			cfg.AuthDB.Drivers = fc.AuthDB.Drivers
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Enabled != nil {
			cfg.Cache.Enabled = *fc.Cache.Enabled
		}
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.TTLSeconds != 0 {
			cfg.Cache.TTLSeconds = fc.Cache.TTLSeconds
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.AuthDBDriver != nil && *f.AuthDBDriver != "" {
		cfg.AuthDB.Driver = *f.AuthDBDriver
	}
	if f.AuthDBURL != nil && *f.AuthDBURL != "" {
		setDriverLocator(cfg, *f.AuthDBURL)
	}
	if f.TokenSecret != nil && *f.TokenSecret != "" {
		cfg.Token.ServerSecret = *f.TokenSecret
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

// setDriverLocator writes the -authdb-url flag into the selected
// driver's option map, under the key that driver reads.
func setDriverLocator(cfg *Config, locator string) {
	key := "url"
	if cfg.AuthDB.Driver == "static" {
		key = "path"
	}
	if cfg.AuthDB.Drivers == nil {
		cfg.AuthDB.Drivers = make(map[string]any)
	}
	opts := DriverOptions(cfg.AuthDB.Drivers, cfg.AuthDB.Driver)
	opts[key] = locator
	cfg.AuthDB.Drivers[cfg.AuthDB.Driver] = opts
}

// validate checks enum fields and mandatory settings. A failure here
// aborts startup.
func validate(cfg *Config) error {
	// authdb.driver
	switch cfg.AuthDB.Driver {
	case "gorm", "static":
		// valid
	default:
		return fmt.Errorf("invalid authdb.driver %q: must be one of gorm, static", cfg.AuthDB.Driver)
	}

	// cache.driver (empty defaults to memory)
	switch cfg.Cache.Driver {
	case "", "memory", "valkey":
		// valid
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, valkey", cfg.Cache.Driver)
	}

	// logging.level
	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	// broker.shared_resources kinds
	for _, res := range cfg.Broker.SharedResources {
		switch res.Kind {
		case "exchange", "queue":
			// valid
		default:
			return fmt.Errorf("invalid broker.shared_resources kind %q for %q: must be exchange or queue", res.Kind, res.Name)
		}
		if res.Name == "" {
			return fmt.Errorf("broker.shared_resources entry with kind %q has an empty name", res.Kind)
		}
	}

	if cfg.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be positive, got %d", cfg.Server.RequestTimeoutSeconds)
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive, got %d", cfg.Cache.TTLSeconds)
	}

	// Mandatory settings; the broker contract fails closed, startup
	// fails loudly.
	if cfg.Broker.DefaultVhost == "" {
		return fmt.Errorf("broker.default_vhost must not be empty")
	}
	if cfg.Token.ServerSecret == "" {
		return fmt.Errorf("token.server_secret must be set; the same secret is configured on the token issuer")
	}

	switch cfg.AuthDB.Driver {
	case "gorm":
		if optString(cfg.AuthDB.Drivers, "gorm", "url") == "" {
			return fmt.Errorf("authdb.drivers.gorm.url must be set when authdb.driver is gorm")
		}
	case "static":
		if optString(cfg.AuthDB.Drivers, "static", "path") == "" {
			return fmt.Errorf("authdb.drivers.static.path must be set when authdb.driver is static")
		}
	}

	return nil
}

// optString reads a string option from a driver section, "" when absent.
func optString(drivers map[string]any, driver, key string) string {
	if v, ok := DriverOptions(drivers, driver)[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
