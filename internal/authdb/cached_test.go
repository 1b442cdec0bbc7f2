package authdb_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MahdiBaghbani/brokerauth-go/internal/authdb"
	"github.com/MahdiBaghbani/brokerauth-go/internal/cache/memory"
)

type pair struct{ login, orgID string }

// countingSource records how often each lookup reaches the backend.
type countingSource struct {
	users      map[pair]*authdb.UserRecord
	components map[string]*authdb.ComponentRecord
	orgs       map[string]bool
	failWith   error

	userCalls      int
	componentCalls int
	orgCalls       int
}

func (s *countingSource) LookupUser(_ context.Context, login, orgID string) (*authdb.UserRecord, error) {
	s.userCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	rec, ok := s.users[pair{login, orgID}]
	if !ok {
		return nil, authdb.ErrNotFound
	}
	return rec, nil
}

func (s *countingSource) LookupComponent(_ context.Context, login string) (*authdb.ComponentRecord, error) {
	s.componentCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	rec, ok := s.components[login]
	if !ok {
		return nil, authdb.ErrNotFound
	}
	return rec, nil
}

func (s *countingSource) OrgStreamAPIEnabled(_ context.Context, orgID string) (bool, error) {
	s.orgCalls++
	if s.failWith != nil {
		return false, s.failWith
	}
	return s.orgs[orgID], nil
}

func newTestCache(t *testing.T) *memory.Memory {
	t.Helper()

	c, err := memory.New(nil, nil)
	if err != nil {
		t.Fatalf("memory.New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCachedSource_ServesUserFromCache(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{
		users: map[pair]*authdb.UserRecord{
			{"alice", "example.org"}: {Login: "alice", OrgID: "example.org", Tags: []string{"management"}},
		},
	}
	cs := authdb.NewCachedSource(src, newTestCache(t), time.Minute, nil)

	first, err := cs.LookupUser(ctx, "alice", "example.org")
	if err != nil {
		t.Fatalf("first LookupUser failed: %v", err)
	}
	second, err := cs.LookupUser(ctx, "alice", "example.org")
	if err != nil {
		t.Fatalf("second LookupUser failed: %v", err)
	}

	if src.userCalls != 1 {
		t.Errorf("expected 1 backend call, got %d", src.userCalls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached record differs: first %+v, second %+v", first, second)
	}
	if second.Login != "alice" || second.OrgID != "example.org" {
		t.Errorf("unexpected record: %+v", second)
	}
	if !reflect.DeepEqual(second.Tags, []string{"management"}) {
		t.Errorf("tags did not survive the cache: %v", second.Tags)
	}
}

func TestCachedSource_CachesMisses(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{}
	cs := authdb.NewCachedSource(src, newTestCache(t), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := cs.LookupUser(ctx, "ghost", "example.org")
		if !errors.Is(err, authdb.ErrNotFound) {
			t.Fatalf("lookup %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if src.userCalls != 1 {
		t.Errorf("miss should be cached, backend called %d times", src.userCalls)
	}
}

func TestCachedSource_DoesNotCacheOutages(t *testing.T) {
	ctx := context.Background()
	outage := errors.New("connection refused")
	src := &countingSource{failWith: outage}
	cs := authdb.NewCachedSource(src, newTestCache(t), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := cs.LookupUser(ctx, "alice", "example.org")
		if !errors.Is(err, outage) {
			t.Fatalf("lookup %d: expected the outage error, got %v", i, err)
		}
		if errors.Is(err, authdb.ErrNotFound) {
			t.Fatalf("outage must not look like a miss")
		}
	}
	if src.userCalls != 2 {
		t.Errorf("outages must reach the backend every time, got %d calls", src.userCalls)
	}
}

func TestCachedSource_ExpiryRefetches(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{
		users: map[pair]*authdb.UserRecord{
			{"alice", "example.org"}: {Login: "alice", OrgID: "example.org"},
		},
	}
	cs := authdb.NewCachedSource(src, newTestCache(t), 15*time.Millisecond, nil)

	if _, err := cs.LookupUser(ctx, "alice", "example.org"); err != nil {
		t.Fatalf("LookupUser failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := cs.LookupUser(ctx, "alice", "example.org"); err != nil {
		t.Fatalf("LookupUser after expiry failed: %v", err)
	}

	if src.userCalls != 2 {
		t.Errorf("expected refetch after TTL, got %d backend calls", src.userCalls)
	}
}

func TestCachedSource_KeysDistinguishPairs(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{
		users: map[pair]*authdb.UserRecord{
			{"b:evil", "a"}: {Login: "b:evil", OrgID: "a"},
		},
	}
	cs := authdb.NewCachedSource(src, newTestCache(t), time.Minute, nil)

	// Prime the cache with the real pair.
	rec, err := cs.LookupUser(ctx, "b:evil", "a")
	if err != nil {
		t.Fatalf("LookupUser failed: %v", err)
	}
	if rec.OrgID != "a" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// A different pair whose parts concatenate identically must not
	// be served the cached record.
	if _, err := cs.LookupUser(ctx, "evil", "a:b"); !errors.Is(err, authdb.ErrNotFound) {
		t.Fatalf("colliding pair should miss, got err %v", err)
	}
}

func TestCachedSource_ComponentRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{
		components: map[string]*authdb.ComponentRecord{
			"svc-pipeline": {Login: "svc-pipeline", SecretHash: "$2a$10$abcdefg", Tags: []string{"administrator"}},
		},
	}
	cs := authdb.NewCachedSource(src, newTestCache(t), time.Minute, nil)

	for i := 0; i < 2; i++ {
		rec, err := cs.LookupComponent(ctx, "svc-pipeline")
		if err != nil {
			t.Fatalf("LookupComponent %d failed: %v", i, err)
		}
		if rec.SecretHash != "$2a$10$abcdefg" {
			t.Errorf("secret hash did not survive the cache: %q", rec.SecretHash)
		}
		if !reflect.DeepEqual(rec.Tags, []string{"administrator"}) {
			t.Errorf("tags did not survive the cache: %v", rec.Tags)
		}
	}
	if src.componentCalls != 1 {
		t.Errorf("expected 1 backend call, got %d", src.componentCalls)
	}
}

func TestCachedSource_OrgFlagCached(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{orgs: map[string]bool{"example.org": true}}
	cs := authdb.NewCachedSource(src, newTestCache(t), time.Minute, nil)

	for i := 0; i < 2; i++ {
		enabled, err := cs.OrgStreamAPIEnabled(ctx, "example.org")
		if err != nil {
			t.Fatalf("OrgStreamAPIEnabled %d failed: %v", i, err)
		}
		if !enabled {
			t.Error("expected stream api enabled")
		}
	}
	if src.orgCalls != 1 {
		t.Errorf("expected 1 backend call, got %d", src.orgCalls)
	}

	// An unknown org reports false without an error, and that answer
	// is cached too.
	for i := 0; i < 2; i++ {
		enabled, err := cs.OrgStreamAPIEnabled(ctx, "unknown.example")
		if err != nil {
			t.Fatalf("OrgStreamAPIEnabled unknown org failed: %v", err)
		}
		if enabled {
			t.Error("unknown org must report false")
		}
	}
	if src.orgCalls != 2 {
		t.Errorf("expected 2 backend calls total, got %d", src.orgCalls)
	}
}

func TestCachedSource_FallsThroughWhenCacheDown(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{
		users: map[pair]*authdb.UserRecord{
			{"alice", "example.org"}: {Login: "alice", OrgID: "example.org"},
		},
	}
	c := newTestCache(t)
	cs := authdb.NewCachedSource(src, c, time.Minute, nil)
	_ = c.Close()

	for i := 0; i < 2; i++ {
		rec, err := cs.LookupUser(ctx, "alice", "example.org")
		if err != nil {
			t.Fatalf("LookupUser %d with dead cache failed: %v", i, err)
		}
		if rec.Login != "alice" {
			t.Errorf("unexpected record: %+v", rec)
		}
	}
	if src.userCalls != 2 {
		t.Errorf("dead cache should fall through to the backend, got %d calls", src.userCalls)
	}
}
