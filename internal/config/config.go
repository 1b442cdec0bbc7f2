// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds the backend configuration. Built once at startup,
// immutable afterwards.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address the HTTP listener binds.
	// Example: ":8042"
	ListenAddr string `toml:"listen_addr"`

	// Server holds listener-level settings.
	Server ServerConfig `toml:"server"`

	// Broker holds the broker-facing policy settings.
	Broker BrokerConfig `toml:"broker"`

	// Token holds API-token verification settings.
	Token TokenConfig `toml:"token"`

	// AuthDB selects and configures the auth data-source driver.
	AuthDB AuthDBConfig `toml:"authdb"`

	// Cache configures the optional read-through lookup cache.
	Cache CacheConfig `toml:"cache"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds listener-level settings.
type ServerConfig struct {
	// TrustedProxies lists CIDRs allowed to set X-Forwarded-For /
	// X-Real-IP for the logged client address.
	TrustedProxies []string `toml:"trusted_proxies"`

	// RequestTimeoutSeconds bounds each decision request; on expiry
	// the handler answers deny. Default: 5.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	// MaxConnections caps concurrently accepted connections.
	// 0 disables the cap. Default: 512.
	MaxConnections int `toml:"max_connections"`
}

// BrokerConfig holds the broker-facing policy settings.
type BrokerConfig struct {
	// DefaultVhost is the single accepted vhost string. Mandatory.
	// Default: "/".
	DefaultVhost string `toml:"default_vhost"`

	// PushExchangePrefix forms per-organization push-exchange names as
	// "<prefix>.<org_id>". Default: "_push".
	PushExchangePrefix string `toml:"push_exchange_prefix"`

	// AutogenQueuePrefix identifies private auto-generated client
	// queues. Default: "stomp".
	AutogenQueuePrefix string `toml:"autogen_queue_prefix"`

	// SharedResources lists broker-wide plumbing resources that
	// non-admin components may use.
	SharedResources []SharedResource `toml:"shared_resources"`
}

// SharedResource is one configured shared-infrastructure resource.
type SharedResource struct {
	// Kind is "exchange" or "queue".
	Kind string `toml:"kind"`

	// Name is the broker-visible resource name.
	Name string `toml:"name"`
}

// TokenConfig holds API-token verification settings.
type TokenConfig struct {
	// ServerSecret is the HMAC secret shared with the token issuer.
	// Mandatory; an empty secret refuses to start.
	ServerSecret string `toml:"server_secret"`
}

// AuthDBConfig selects and configures the auth data-source driver.
type AuthDBConfig struct {
	// Driver is the data-source driver name: gorm or static.
	// Default: gorm in prod mode, static in dev mode.
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration, decoded by the selected
	// driver. Example: [authdb.drivers.gorm] url = "mysql://..."
	Drivers map[string]any `toml:"drivers"`
}

// CacheConfig holds the optional lookup-cache settings.
type CacheConfig struct {
	// Enabled turns the cross-request lookup cache on. Default: false.
	Enabled bool `toml:"enabled"`

	// Driver is the cache driver name: memory or valkey.
	// Empty defaults to memory.
	Driver string `toml:"driver"`

	// TTLSeconds bounds how long lookups (hits and misses) are served
	// from cache; it also bounds revocation latency. Default: 30.
	TTLSeconds int `toml:"ttl_seconds"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.valkey] addr = "127.0.0.1:6379"
	Drivers map[string]any `toml:"drivers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in prod mode, debug in dev mode.
	Level string `toml:"level"`
}

// RequestTimeout returns the per-request deadline as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the lookup-cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// DriverOptions returns the raw option map for the named driver
// section, never nil.
func DriverOptions(drivers map[string]any, name string) map[string]any {
	if raw, ok := drivers[name]; ok {
		if m, ok := raw.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}

// Redacted returns a string representation of the config with secrets
// redacted. Driver option values are summarized as key lists because
// they may embed credentials (database URLs).
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString("  Server: {\n")
	sb.WriteString(fmt.Sprintf("    TrustedProxies: %v,\n", c.Server.TrustedProxies))
	sb.WriteString(fmt.Sprintf("    RequestTimeoutSeconds: %d,\n", c.Server.RequestTimeoutSeconds))
	sb.WriteString(fmt.Sprintf("    MaxConnections: %d,\n", c.Server.MaxConnections))
	sb.WriteString("  },\n")
	sb.WriteString("  Broker: {\n")
	sb.WriteString(fmt.Sprintf("    DefaultVhost: %q,\n", c.Broker.DefaultVhost))
	sb.WriteString(fmt.Sprintf("    PushExchangePrefix: %q,\n", c.Broker.PushExchangePrefix))
	sb.WriteString(fmt.Sprintf("    AutogenQueuePrefix: %q,\n", c.Broker.AutogenQueuePrefix))
	sb.WriteString(fmt.Sprintf("    SharedResourcesCount: %d,\n", len(c.Broker.SharedResources)))
	sb.WriteString("  },\n")
	sb.WriteString("  Token: {\n")
	sb.WriteString("    ServerSecret: [REDACTED],\n")
	sb.WriteString("  },\n")
	sb.WriteString("  AuthDB: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.AuthDB.Driver))
	sb.WriteString(fmt.Sprintf("    Drivers: %s,\n", redactedDriverMap(c.AuthDB.Drivers)))
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Enabled: %v,\n", c.Cache.Enabled))
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString(fmt.Sprintf("    TTLSeconds: %d,\n", c.Cache.TTLSeconds))
	sb.WriteString(fmt.Sprintf("    Drivers: %s,\n", redactedDriverMap(c.Cache.Drivers)))
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}

// redactedDriverMap renders driver sections as sorted option-key lists.
func redactedDriverMap(drivers map[string]any) string {
	if len(drivers) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("{")
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		opts := DriverOptions(drivers, name)
		keys := make([]string, 0, len(opts))
		for k := range opts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(fmt.Sprintf("%s: %v", name, keys))
	}
	sb.WriteString("}")
	return sb.String()
}
