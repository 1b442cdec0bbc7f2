// Package authdb is the read-only projection of the external auth
// database: users, organizations, components, and stream-API
// agreements. Drivers provide the storage; all mutation happens
// through out-of-scope administrative tooling.
package authdb

import (
	"context"
	"errors"
)

// Common errors for data-source operations.
var (
	// ErrNotFound means the looked-up record does not exist. Callers
	// map it to an authentication failure, never to an outage.
	ErrNotFound = errors.New("authdb: not found")

	// ErrClosed means the driver was closed.
	ErrClosed = errors.New("authdb: closed")
)

// UserRecord is a human account bound to exactly one organization.
type UserRecord struct {
	Login string   `json:"login"`
	OrgID string   `json:"org_id"`
	Tags  []string `json:"tags,omitempty"`
}

// ComponentRecord is a service account (pipeline daemons, internal
// tooling) with a hashed secret and role tags.
type ComponentRecord struct {
	Login      string   `json:"login"`
	SecretHash string   `json:"secret_hash"`
	Tags       []string `json:"tags,omitempty"`
}

// Source is the lookup interface the decision pipeline consumes.
// Implementations must be safe for concurrent callers.
type Source interface {
	// LookupUser returns the user with the given login inside the
	// given organization, or ErrNotFound.
	LookupUser(ctx context.Context, login, orgID string) (*UserRecord, error)

	// LookupComponent returns the component with the given login,
	// or ErrNotFound.
	LookupComponent(ctx context.Context, login string) (*ComponentRecord, error)

	// OrgStreamAPIEnabled reports whether the organization has
	// stream-API consumption enabled. A missing organization reports
	// false without error; errors are transport failures only.
	OrgStreamAPIEnabled(ctx context.Context, orgID string) (bool, error)
}

// PushExchangeName derives the per-organization push-exchange name.
// Pure; no data-source round-trip.
func PushExchangeName(prefix, orgID string) string {
	return prefix + "." + orgID
}

// Driver is a constructed data-source backend with a lifecycle.
type Driver interface {
	Source

	// Init prepares the driver: opens pools, pings the database,
	// loads fixtures.
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the registered driver name.
	Name() string
}
