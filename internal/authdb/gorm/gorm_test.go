package gorm_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/brokerauth-go/internal/authdb"
	gormdriver "github.com/MahdiBaghbani/brokerauth-go/internal/authdb/gorm"
)

// seedDatabase creates the schema and fixture rows the way the
// external admin tooling would, through a separate handle.
func seedDatabase(t *testing.T, path string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open seed database: %v", err)
	}

	if err := db.AutoMigrate(&gormdriver.OrgRow{}, &gormdriver.UserRow{}, &gormdriver.ComponentRow{}); err != nil {
		t.Fatalf("migrate seed database: %v", err)
	}

	rows := []any{
		&gormdriver.OrgRow{OrgID: "example.org", StreamAPIEnabled: true},
		&gormdriver.OrgRow{OrgID: "quiet.example", StreamAPIEnabled: false},
		&gormdriver.UserRow{Login: "alice", OrgID: "example.org"},
		&gormdriver.UserRow{Login: "bob", OrgID: "example.org", Tags: "management"},
		&gormdriver.ComponentRow{
			Login:        "svc-pipeline",
			PasswordHash: "$2a$04$N9qo8uLOickgx2ZMRZoMye.IjZAgcfl7p92ldGxad68LJZdL17lhW",
			Tags:         "administrator system",
		},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed row %+v: %v", row, err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("seed database handle: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close seed database: %v", err)
	}
}

func newSeededDriver(t *testing.T) authdb.Driver {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth.db")
	seedDatabase(t, path)

	drv, err := authdb.New(&authdb.DriverConfig{
		Driver:  "gorm",
		Options: map[string]any{"url": "sqlite://" + path},
	})
	if err != nil {
		t.Fatalf("authdb.New failed: %v", err)
	}
	if err := drv.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

func TestDriver_LookupUser(t *testing.T) {
	drv := newSeededDriver(t)
	ctx := context.Background()

	rec, err := drv.LookupUser(ctx, "bob", "example.org")
	if err != nil {
		t.Fatalf("LookupUser failed: %v", err)
	}
	if rec.Login != "bob" || rec.OrgID != "example.org" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"management"}) {
		t.Errorf("expected tags [management], got %v", rec.Tags)
	}

	rec, err = drv.LookupUser(ctx, "alice", "example.org")
	if err != nil {
		t.Fatalf("LookupUser alice failed: %v", err)
	}
	if len(rec.Tags) != 0 {
		t.Errorf("expected no tags for alice, got %v", rec.Tags)
	}

	// The pair has to match, not just the login.
	if _, err := drv.LookupUser(ctx, "alice", "quiet.example"); !errors.Is(err, authdb.ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong org, got %v", err)
	}
	if _, err := drv.LookupUser(ctx, "ghost", "example.org"); !errors.Is(err, authdb.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown login, got %v", err)
	}
}

func TestDriver_LookupComponent(t *testing.T) {
	drv := newSeededDriver(t)
	ctx := context.Background()

	rec, err := drv.LookupComponent(ctx, "svc-pipeline")
	if err != nil {
		t.Fatalf("LookupComponent failed: %v", err)
	}
	if !strings.HasPrefix(rec.SecretHash, "$2a$") {
		t.Errorf("expected bcrypt hash, got %q", rec.SecretHash)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"administrator", "system"}) {
		t.Errorf("expected split tags, got %v", rec.Tags)
	}

	if _, err := drv.LookupComponent(ctx, "svc-unknown"); !errors.Is(err, authdb.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDriver_OrgStreamAPIEnabled(t *testing.T) {
	drv := newSeededDriver(t)
	ctx := context.Background()

	tests := []struct {
		orgID string
		want  bool
	}{
		{"example.org", true},
		{"quiet.example", false},
		{"missing.example", false},
	}
	for _, tt := range tests {
		got, err := drv.OrgStreamAPIEnabled(ctx, tt.orgID)
		if err != nil {
			t.Fatalf("OrgStreamAPIEnabled(%q) failed: %v", tt.orgID, err)
		}
		if got != tt.want {
			t.Errorf("OrgStreamAPIEnabled(%q) = %v, want %v", tt.orgID, got, tt.want)
		}
	}
}

func TestDriver_DataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	seedDatabase(t, path)
	ctx := context.Background()

	open := func() authdb.Driver {
		drv, err := authdb.New(&authdb.DriverConfig{
			Driver:  "gorm",
			Options: map[string]any{"url": "sqlite://" + path},
		})
		if err != nil {
			t.Fatalf("authdb.New failed: %v", err)
		}
		if err := drv.Init(ctx); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		return drv
	}

	first := open()
	if _, err := first.LookupUser(ctx, "bob", "example.org"); err != nil {
		t.Fatalf("LookupUser before reopen failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := open()
	defer second.Close()
	if _, err := second.LookupUser(ctx, "bob", "example.org"); err != nil {
		t.Fatalf("LookupUser after reopen failed: %v", err)
	}
}

func TestNewDriver_RequiresURL(t *testing.T) {
	_, err := authdb.New(&authdb.DriverConfig{
		Driver:  "gorm",
		Options: map[string]any{},
	})
	if err == nil {
		t.Fatal("expected error for missing url")
	}
	if !strings.Contains(err.Error(), "url") {
		t.Errorf("error should mention the url option, got: %v", err)
	}
}

func TestDriver_InitFailsOnUnusablePath(t *testing.T) {
	// A regular file in the middle of the path blocks creation for
	// any user, root included.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	drv, err := authdb.New(&authdb.DriverConfig{
		Driver:  "gorm",
		Options: map[string]any{"url": "sqlite://" + filepath.Join(blocker, "auth.db")},
	})
	if err != nil {
		t.Fatalf("authdb.New failed: %v", err)
	}
	if err := drv.Init(context.Background()); err == nil {
		drv.Close()
		t.Fatal("Init should fail when the database path is unusable")
	}
}

func TestDriver_Name(t *testing.T) {
	drv, err := authdb.New(&authdb.DriverConfig{
		Driver:  "gorm",
		Options: map[string]any{"url": "sqlite://ignored.db"},
	})
	if err != nil {
		t.Fatalf("authdb.New failed: %v", err)
	}
	if got := drv.Name(); got != "gorm" {
		t.Errorf("Name() = %q, want %q", got, "gorm")
	}
}
