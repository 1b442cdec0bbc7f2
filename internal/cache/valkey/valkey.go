// Package valkey provides a cache driver backed by a Valkey or Redis
// server, for deployments that run more than one backend replica.
package valkey

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/brokerauth-go/internal/cache"
	"github.com/MahdiBaghbani/brokerauth-go/internal/cfg"
	"github.com/MahdiBaghbani/brokerauth-go/internal/logutil"
)

func init() {
	cache.RegisterDriver("valkey", func(opts map[string]any, logger *slog.Logger) (cache.Cache, error) {
		return New(opts, logger)
	})
}

// options is the [cache.drivers.valkey] section.
type options struct {
	// Addr is the server address, host:port.
	Addr string `mapstructure:"addr"`

	// Password is sent on connect when non-empty.
	Password string `mapstructure:"password"`

	// DB selects the logical database.
	DB int `mapstructure:"db"`

	// DialTimeoutSeconds bounds the initial connection attempt.
	DialTimeoutSeconds int `mapstructure:"dial_timeout_seconds"`

	// DefaultTTLSeconds applies when Set is called with a zero TTL.
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`
}

func (o *options) ApplyDefaults() {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}
	if o.DialTimeoutSeconds == 0 {
		o.DialTimeoutSeconds = 5
	}
	if o.DefaultTTLSeconds == 0 {
		o.DefaultTTLSeconds = int(cache.DefaultLookupTTL / time.Second)
	}
}

// Valkey is the server-backed cache.
type Valkey struct {
	client     valkeygo.Client
	defaultTTL time.Duration

	mu     sync.Mutex
	closed bool
}

var _ cache.Cache = (*Valkey)(nil)

// New connects to the configured server and pings it, so a bad address
// or credential is reported at startup rather than on first lookup.
func New(raw map[string]any, logger *slog.Logger) (*Valkey, error) {
	logger = logutil.NoopIfNil(logger)

	var opts options
	if err := cfg.Decode(raw, &opts); err != nil {
		return nil, err
	}
	dialTimeout := time.Duration(opts.DialTimeoutSeconds) * time.Second

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
		Dialer:      net.Dialer{Timeout: dialTimeout},
		// Entries are short-lived lookup results; server-assisted
		// client caching would only add invalidation traffic.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey: connect %s: %w", opts.Addr, err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey: ping %s: %w", opts.Addr, err)
	}

	logger.Debug("valkey cache ready", "addr", opts.Addr, "db", opts.DB)
	return &Valkey{
		client:     client,
		defaultTTL: time.Duration(opts.DefaultTTLSeconds) * time.Second,
	}, nil
}

// Get retrieves a value by key.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, error) {
	if v.isClosed() {
		return nil, cache.ErrClosed
	}

	b, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("valkey: get %q: %w", key, err)
	}
	return b, nil
}

// Set stores a value under key for ttl.
func (v *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if v.isClosed() {
		return cache.ErrClosed
	}
	if ttl <= 0 {
		ttl = v.defaultTTL
	}

	cmd := v.client.B().Set().Key(key).Value(valkeygo.BinaryString(value)).Ex(ttl).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey: set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	if v.isClosed() {
		return cache.ErrClosed
	}

	if err := v.client.Do(ctx, v.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("valkey: del %q: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (v *Valkey) Exists(ctx context.Context, key string) (bool, error) {
	if v.isClosed() {
		return false, cache.ErrClosed
	}

	n, err := v.client.Do(ctx, v.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Close shuts the client down. Safe to call twice.
func (v *Valkey) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.client.Close()
	return nil
}

func (v *Valkey) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
