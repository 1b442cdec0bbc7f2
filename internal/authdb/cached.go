package authdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/brokerauth-go/internal/cache"
	"github.com/MahdiBaghbani/brokerauth-go/internal/logutil"
)

// CachedSource wraps a Source with a read-through cache. Hits and
// misses are both cached, so the TTL bounds how long a revoked
// credential keeps authenticating and how long a freshly provisioned
// one keeps being denied. Source outages are never cached.
type CachedSource struct {
	src    Source
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource builds the decorator. A non-positive ttl falls back
// to cache.DefaultLookupTTL.
func NewCachedSource(src Source, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = cache.DefaultLookupTTL
	}
	return &CachedSource{
		src:    src,
		cache:  c,
		ttl:    ttl,
		logger: logutil.NoopIfNil(logger),
	}
}

// envelope distinguishes a cached miss from an absent cache entry.
type envelope[T any] struct {
	Found  bool `json:"found"`
	Record *T   `json:"record,omitempty"`
}

// LookupUser implements Source.
func (cs *CachedSource) LookupUser(ctx context.Context, login, orgID string) (*UserRecord, error) {
	return lookupThrough(ctx, cs, userKey(login, orgID), func(ctx context.Context) (*UserRecord, error) {
		return cs.src.LookupUser(ctx, login, orgID)
	})
}

// LookupComponent implements Source.
func (cs *CachedSource) LookupComponent(ctx context.Context, login string) (*ComponentRecord, error) {
	return lookupThrough(ctx, cs, componentKey(login), func(ctx context.Context) (*ComponentRecord, error) {
		return cs.src.LookupComponent(ctx, login)
	})
}

// OrgStreamAPIEnabled implements Source.
func (cs *CachedSource) OrgStreamAPIEnabled(ctx context.Context, orgID string) (bool, error) {
	enabled, err := lookupThrough(ctx, cs, orgKey(orgID), func(ctx context.Context) (*bool, error) {
		v, err := cs.src.OrgStreamAPIEnabled(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return &v, nil
	})
	if err != nil {
		return false, err
	}
	return *enabled, nil
}

// lookupThrough serves key from the cache when possible, falling back
// to fetch. Undecodable cache entries are treated as absent.
func lookupThrough[T any](ctx context.Context, cs *CachedSource, key string, fetch func(context.Context) (*T, error)) (*T, error) {
	raw, err := cs.cache.Get(ctx, key)
	if err == nil {
		var env envelope[T]
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil {
			if !env.Found {
				return nil, ErrNotFound
			}
			if env.Record != nil {
				return env.Record, nil
			}
		}
	} else if !errors.Is(err, cache.ErrNotFound) {
		cs.logger.Debug("cache read failed, falling through", "key", key, "error", err)
	}

	rec, err := fetch(ctx)
	switch {
	case err == nil:
		cs.store(ctx, key, envelope[T]{Found: true, Record: rec})
		return rec, nil
	case errors.Is(err, ErrNotFound):
		cs.store(ctx, key, envelope[T]{Found: false})
		return nil, err
	default:
		return nil, err
	}
}

// store writes best-effort. A failed write only costs the next lookup
// a trip to the source.
func (cs *CachedSource) store(ctx context.Context, key string, env any) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := cs.cache.Set(ctx, key, raw, cs.ttl); err != nil {
		cs.logger.Debug("cache write failed", "key", key, "error", err)
	}
}

// userKey quotes both parts so a login or org containing the
// separator cannot alias another pair's entry.
func userKey(login, orgID string) string {
	return fmt.Sprintf("authdb:user:%q:%q", orgID, login)
}

func componentKey(login string) string {
	return fmt.Sprintf("authdb:component:%q", login)
}

func orgKey(orgID string) string {
	return fmt.Sprintf("authdb:org:%q", orgID)
}
