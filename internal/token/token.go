// Package token implements the API-token credential: an HMAC-signed
// bearer carrying a (login, org_id) identity.
//
// Tokens are HS256 JWS compact serializations. The verifier and the
// issuer share one pre-configured secret; there is no expiry claim.
// Revocation happens by deleting the user from the auth data source,
// which the resolver re-checks on every request.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNoSecret means the verifier or issuer was built without a
	// server secret; every token is rejected.
	ErrNoSecret = errors.New("token: no server secret configured")

	// ErrMalformed means the credential does not have the structure
	// of a signed token, or its payload is incomplete.
	ErrMalformed = errors.New("token: malformed")

	// ErrVerification means the signature or claims failed to verify.
	ErrVerification = errors.New("token: verification failed")
)

// segments is the number of dot-separated parts of a compact JWS.
const segments = 3

// LooksSigned reports whether a password field has the structural
// shape of a signed token. The resolver uses this to route
// credentials without attempting verification.
func LooksSigned(s string) bool {
	if s == "" {
		return false
	}
	return strings.Count(s, ".") == segments-1
}

// Identity is the verified payload of an API token.
type Identity struct {
	Login    string
	OrgID    string
	IssuedAt time.Time
}

type claims struct {
	Login string `json:"login"`
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// Verifier checks API tokens against the pre-shared server secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns a verifier bound to the server secret. An empty
// secret produces a verifier that rejects every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
		),
	}
}

// Verify checks the token structure, recomputes the MAC over the
// signing input (constant-time comparison inside the HMAC method),
// and returns the embedded identity. Any failure is terminal; the
// caller treats all failures alike.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}
	if !LooksSigned(raw) {
		return nil, ErrMalformed
	}

	var c claims
	tok, err := v.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerification, err)
	}
	if !tok.Valid {
		return nil, ErrVerification
	}
	if c.Login == "" || c.OrgID == "" {
		return nil, ErrMalformed
	}

	id := &Identity{Login: c.Login, OrgID: c.OrgID}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	return id, nil
}

// Issuer mints API tokens. It lives here so the test suite and the
// out-of-scope issuing service share one canonical serialization.
type Issuer struct {
	secret []byte
}

// NewIssuer returns an issuer signing with the server secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue signs a token for (login, orgID) with the given issue time
// and a fresh token id.
func (i *Issuer) Issue(login, orgID string, now time.Time) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSecret
	}
	if login == "" || orgID == "" {
		return "", ErrMalformed
	}

	c := claims{
		Login: login,
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now.UTC()),
			ID:       uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
}
