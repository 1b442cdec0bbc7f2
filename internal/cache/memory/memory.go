// Package memory provides an in-process cache driver with TTL
// expiry and a background janitor.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/brokerauth-go/internal/cache"
	"github.com/MahdiBaghbani/brokerauth-go/internal/cfg"
	"github.com/MahdiBaghbani/brokerauth-go/internal/logutil"
)

func init() {
	cache.RegisterDriver("memory", func(opts map[string]any, logger *slog.Logger) (cache.Cache, error) {
		return New(opts, logger)
	})
}

// options is the [cache.drivers.memory] section.
type options struct {
	// DefaultTTLSeconds applies when Set is called with a zero TTL.
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`

	// CleanupIntervalSeconds is the janitor sweep interval.
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

func (o *options) ApplyDefaults() {
	if o.DefaultTTLSeconds == 0 {
		o.DefaultTTLSeconds = int(cache.DefaultLookupTTL / time.Second)
	}
	if o.CleanupIntervalSeconds == 0 {
		o.CleanupIntervalSeconds = 60
	}
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the in-process cache.
type Memory struct {
	mu         sync.RWMutex
	items      map[string]item
	defaultTTL time.Duration
	closed     bool

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

var _ cache.Cache = (*Memory)(nil)

// New builds the driver from its raw option section.
func New(raw map[string]any, logger *slog.Logger) (*Memory, error) {
	logger = logutil.NoopIfNil(logger)

	var opts options
	if err := cfg.Decode(raw, &opts); err != nil {
		return nil, err
	}

	m := &Memory{
		items:       make(map[string]item),
		defaultTTL:  time.Duration(opts.DefaultTTLSeconds) * time.Second,
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go m.janitor(time.Duration(opts.CleanupIntervalSeconds) * time.Second)

	logger.Debug("memory cache ready",
		"default_ttl_seconds", opts.DefaultTTLSeconds,
		"cleanup_interval_seconds", opts.CleanupIntervalSeconds)
	return m, nil
}

// Get retrieves a value by key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, cache.ErrClosed
	}
	it, ok := m.items[key]
	if !ok || time.Now().After(it.expiresAt) {
		return nil, cache.ErrNotFound
	}

	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

// Set stores a value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return cache.ErrClosed
	}
	m.items[key] = item{value: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return cache.ErrClosed
	}
	delete(m.items, key)
	return nil
}

// Exists reports whether key is present and unexpired.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, cache.ErrClosed
	}
	it, ok := m.items[key]
	return ok && !time.Now().After(it.expiresAt), nil
}

// Close stops the janitor and drops all entries. Safe to call twice.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.items = nil
	m.mu.Unlock()

	close(m.stopJanitor)
	<-m.janitorDone
	return nil
}

// janitor evicts expired entries on a fixed interval so idle keys do
// not pin memory until their next Get.
func (m *Memory) janitor(interval time.Duration) {
	defer close(m.janitorDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopJanitor:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, it := range m.items {
				if now.After(it.expiresAt) {
					delete(m.items, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
