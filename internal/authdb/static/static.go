// Package static implements a read-only authdb driver backed by a
// JSON fixture file, for development and tests.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/MahdiBaghbani/brokerauth-go/internal/authdb"
	"github.com/MahdiBaghbani/brokerauth-go/internal/cfg"
)

func init() {
	authdb.Register("static", NewDriver)
}

// options is the [authdb.drivers.static] section.
type options struct {
	// Path locates the JSON fixture file.
	Path string `mapstructure:"path"`
}

// fixture is the on-disk document shape.
type fixture struct {
	Orgs       []orgEntry               `json:"orgs"`
	Users      []authdb.UserRecord      `json:"users"`
	Components []authdb.ComponentRecord `json:"components"`
}

type orgEntry struct {
	OrgID            string `json:"org_id"`
	StreamAPIEnabled bool   `json:"stream_api_enabled"`
}

type userKey struct{ login, orgID string }

// Driver implements the authdb.Driver interface on in-memory maps
// loaded once at Init.
type Driver struct {
	path string

	mu     sync.RWMutex
	closed bool

	users      map[userKey]*authdb.UserRecord
	components map[string]*authdb.ComponentRecord
	orgs       map[string]bool
}

// NewDriver creates a new static driver instance.
func NewDriver(dc *authdb.DriverConfig) (authdb.Driver, error) {
	var opts options
	if err := cfg.Decode(dc.Options, &opts); err != nil {
		return nil, err
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("path is required for static driver")
	}

	return &Driver{
		path:       opts.Path,
		users:      make(map[userKey]*authdb.UserRecord),
		components: make(map[string]*authdb.ComponentRecord),
		orgs:       make(map[string]bool),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "static"
}

// Init loads the fixture file. Duplicates and missing identifiers are
// authoring mistakes and abort startup.
func (d *Driver) Init(ctx context.Context) error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("failed to parse fixture %s: %w", d.path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range fx.Orgs {
		org := fx.Orgs[i]
		if org.OrgID == "" {
			return fmt.Errorf("fixture %s: org without org_id", d.path)
		}
		if _, exists := d.orgs[org.OrgID]; exists {
			return fmt.Errorf("fixture %s: duplicate org %q", d.path, org.OrgID)
		}
		d.orgs[org.OrgID] = org.StreamAPIEnabled
	}

	for i := range fx.Users {
		user := fx.Users[i]
		if user.Login == "" || user.OrgID == "" {
			return fmt.Errorf("fixture %s: user without login or org_id", d.path)
		}
		key := userKey{user.Login, user.OrgID}
		if _, exists := d.users[key]; exists {
			return fmt.Errorf("fixture %s: duplicate user %q in org %q", d.path, user.Login, user.OrgID)
		}
		d.users[key] = &user
	}

	for i := range fx.Components {
		component := fx.Components[i]
		if component.Login == "" {
			return fmt.Errorf("fixture %s: component without login", d.path)
		}
		if _, exists := d.components[component.Login]; exists {
			return fmt.Errorf("fixture %s: duplicate component %q", d.path, component.Login)
		}
		d.components[component.Login] = &component
	}

	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// LookupUser returns the user with the given login and organization.
func (d *Driver) LookupUser(ctx context.Context, login, orgID string) (*authdb.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, authdb.ErrClosed
	}

	rec, ok := d.users[userKey{login, orgID}]
	if !ok {
		return nil, authdb.ErrNotFound
	}
	out := *rec
	out.Tags = append([]string(nil), rec.Tags...)
	return &out, nil
}

// LookupComponent returns the component with the given login.
func (d *Driver) LookupComponent(ctx context.Context, login string) (*authdb.ComponentRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, authdb.ErrClosed
	}

	rec, ok := d.components[login]
	if !ok {
		return nil, authdb.ErrNotFound
	}
	out := *rec
	out.Tags = append([]string(nil), rec.Tags...)
	return &out, nil
}

// OrgStreamAPIEnabled reports the organization's stream-API agreement.
// A missing organization reports false without error.
func (d *Driver) OrgStreamAPIEnabled(ctx context.Context, orgID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false, authdb.ErrClosed
	}
	return d.orgs[orgID], nil
}

// Compile-time interface checks
var _ authdb.Driver = (*Driver)(nil)
var _ authdb.Source = (*Driver)(nil)
