package identity

import (
	"context"
	"errors"

	"github.com/MahdiBaghbani/brokerauth-go/internal/authdb"
	"github.com/MahdiBaghbani/brokerauth-go/internal/token"
)

// Resolver turns broker credentials into principals against the auth
// database.
type Resolver struct {
	source     authdb.Source
	verifier   *token.Verifier
	pushPrefix string
}

// NewResolver builds a Resolver.
func NewResolver(source authdb.Source, verifier *token.Verifier, pushPrefix string) *Resolver {
	return &Resolver{
		source:     source,
		verifier:   verifier,
		pushPrefix: pushPrefix,
	}
}

// ResolveUser authenticates a login/password pair for the user check.
// Resolution tries, in order: the user pair encoded in the login, the
// signed token carried in the password, and finally the component
// secret. The first step that fully succeeds wins; a step that does
// not apply or does not match falls through to the next.
func (r *Resolver) ResolveUser(ctx context.Context, username, password string) (*Principal, error) {
	credentialRejected := false

	// A login of the form cn@org authenticates by pair existence
	// alone. The broker has already verified the client certificate
	// carrying that subject, so the password is not consulted.
	if cn, orgID, ok := ParseSubject(username); ok {
		rec, err := r.source.LookupUser(ctx, cn, orgID)
		switch {
		case err == nil:
			return r.userPrincipal(ctx, username, rec)
		case !errors.Is(err, authdb.ErrNotFound):
			return nil, err
		}
	}

	// A password shaped like a signed token goes through the
	// verifier. The pair named in the token must still exist, so
	// deleting it from the database revokes every token issued for
	// it without any token-side state.
	if token.LooksSigned(password) {
		id, err := r.verifier.Verify(password)
		if err == nil && tokenMatchesLogin(username, id) {
			rec, lookupErr := r.source.LookupUser(ctx, id.Login, id.OrgID)
			switch {
			case lookupErr == nil:
				return r.userPrincipal(ctx, username, rec)
			case !errors.Is(lookupErr, authdb.ErrNotFound):
				return nil, lookupErr
			}
		}
		credentialRejected = true
	}

	// Finally the login may be a component authenticating with its
	// stored secret.
	rec, err := r.source.LookupComponent(ctx, username)
	switch {
	case err == nil:
		if verifySecret(rec.SecretHash, password) {
			return componentPrincipal(username, rec), nil
		}
		return nil, ErrBadCredential
	case !errors.Is(err, authdb.ErrNotFound):
		return nil, err
	}

	if credentialRejected {
		return nil, ErrBadCredential
	}
	return nil, ErrUnknownIdentity
}

// ResolvePrincipal resolves a login the broker has already
// authenticated, for the vhost, resource, and topic checks. Logins
// with an '@' resolve as user pairs, bare logins as components.
func (r *Resolver) ResolvePrincipal(ctx context.Context, username string) (*Principal, error) {
	if cn, orgID, ok := ParseSubject(username); ok {
		rec, err := r.source.LookupUser(ctx, cn, orgID)
		switch {
		case err == nil:
			return r.userPrincipal(ctx, username, rec)
		case errors.Is(err, authdb.ErrNotFound):
			return nil, ErrUnknownIdentity
		default:
			return nil, err
		}
	}

	rec, err := r.source.LookupComponent(ctx, username)
	switch {
	case err == nil:
		return componentPrincipal(username, rec), nil
	case errors.Is(err, authdb.ErrNotFound):
		return nil, ErrUnknownIdentity
	default:
		return nil, err
	}
}

// tokenMatchesLogin pins the presented login to the token's subject:
// either the full login equals the token's, or it splits into exactly
// the token's cn and org.
func tokenMatchesLogin(username string, id *token.Identity) bool {
	if username == id.Login {
		return true
	}
	if cn, orgID, ok := ParseSubject(username); ok {
		return cn == id.Login && orgID == id.OrgID
	}
	return false
}

// userPrincipal finishes user resolution with the org projection, so
// later policy decisions need no further lookups.
func (r *Resolver) userPrincipal(ctx context.Context, presented string, rec *authdb.UserRecord) (*Principal, error) {
	streamAPI, err := r.source.OrgStreamAPIEnabled(ctx, rec.OrgID)
	if err != nil {
		return nil, err
	}

	return &Principal{
		Kind:         KindUser,
		Login:        presented,
		OrgID:        rec.OrgID,
		Tags:         rec.Tags,
		StreamAPI:    streamAPI,
		PushExchange: authdb.PushExchangeName(r.pushPrefix, rec.OrgID),
	}, nil
}

func componentPrincipal(presented string, rec *authdb.ComponentRecord) *Principal {
	return &Principal{
		Kind:  KindComponent,
		Login: presented,
		Tags:  rec.Tags,
	}
}
