// Package identity resolves broker credentials into principals.
package identity

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrUnknownIdentity means no user pair or component matched the
	// presented login.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrBadCredential means an identity matched but its credential
	// was rejected.
	ErrBadCredential = errors.New("bad credential")
)

// Principal kinds.
const (
	KindComponent = "component"
	KindUser      = "user"
)

// TagAdministrator marks a component with unrestricted broker access.
const TagAdministrator = "administrator"

// Principal is a resolved broker identity with everything the policy
// decisions need, so no further lookups happen after resolution.
type Principal struct {
	// Kind is component or user.
	Kind string

	// Login is the name exactly as the broker presented it.
	Login string

	// OrgID is the user's organization; empty for components.
	OrgID string

	// Tags are the stored role tags.
	Tags []string

	// StreamAPI reports the user org's stream-API agreement.
	StreamAPI bool

	// PushExchange is the user org's push exchange name.
	PushExchange string
}

// IsComponent returns true for service accounts.
func (p *Principal) IsComponent() bool {
	return p.Kind == KindComponent
}

// IsAdministrator returns true for components carrying the
// administrator tag. Users never get the shortcut.
func (p *Principal) IsAdministrator() bool {
	return p.Kind == KindComponent && slices.Contains(p.Tags, TagAdministrator)
}

// ParseSubject splits a user login of the form cn@org at the last
// '@', so a cn containing '@' still resolves.
func ParseSubject(login string) (cn, orgID string, ok bool) {
	i := strings.LastIndex(login, "@")
	if i < 0 {
		return "", "", false
	}
	return login[:i], login[i+1:], true
}
