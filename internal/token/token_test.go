package token_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MahdiBaghbani/brokerauth-go/internal/token"
)

const testSecret = "unit-test-secret"

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer := token.NewIssuer(testSecret)
	verifier := token.NewVerifier(testSecret)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw, err := issuer.Issue("alice", "example.org", issuedAt)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !token.LooksSigned(raw) {
		t.Fatalf("issued token %q does not look signed", raw)
	}

	id, err := verifier.Verify(raw)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.Login != "alice" {
		t.Errorf("Login = %q, want alice", id.Login)
	}
	if id.OrgID != "example.org" {
		t.Errorf("OrgID = %q, want example.org", id.OrgID)
	}
	if !id.IssuedAt.Equal(issuedAt) {
		t.Errorf("IssuedAt = %v, want %v", id.IssuedAt, issuedAt)
	}
}

func TestVerify_CorruptionFails(t *testing.T) {
	issuer := token.NewIssuer(testSecret)
	verifier := token.NewVerifier(testSecret)

	raw, err := issuer.Issue("alice", "example.org", time.Now())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}

	// Corrupt each segment in turn; every corruption must fail verification.
	for seg := range parts {
		corrupted := make([]string, 3)
		copy(corrupted, parts)
		b := []byte(corrupted[seg])
		if b[0] == 'A' {
			b[0] = 'B'
		} else {
			b[0] = 'A'
		}
		corrupted[seg] = string(b)

		if _, err := verifier.Verify(strings.Join(corrupted, ".")); err == nil {
			t.Errorf("corrupted segment %d verified", seg)
		}
	}
}

func TestVerify_WrongSecretFails(t *testing.T) {
	issuer := token.NewIssuer(testSecret)
	verifier := token.NewVerifier("a-different-secret")

	raw, err := issuer.Issue("alice", "example.org", time.Now())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := verifier.Verify(raw); !errors.Is(err, token.ErrVerification) {
		t.Errorf("expected ErrVerification, got %v", err)
	}
}

func TestVerify_EmptySecretRejectsEverything(t *testing.T) {
	issuer := token.NewIssuer(testSecret)
	raw, err := issuer.Issue("alice", "example.org", time.Now())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	verifier := token.NewVerifier("")
	if _, err := verifier.Verify(raw); !errors.Is(err, token.ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestIssue_EmptySecretFails(t *testing.T) {
	issuer := token.NewIssuer("")
	if _, err := issuer.Issue("alice", "example.org", time.Now()); !errors.Is(err, token.ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestVerify_MalformedStructure(t *testing.T) {
	verifier := token.NewVerifier(testSecret)

	for _, raw := range []string{"", "password", "a.b", "a.b.c.d"} {
		if _, err := verifier.Verify(raw); !errors.Is(err, token.ErrMalformed) {
			t.Errorf("Verify(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestVerify_MissingClaimsRejected(t *testing.T) {
	verifier := token.NewVerifier(testSecret)

	// Correctly signed but missing org_id.
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"login": "alice",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := verifier.Verify(raw); !errors.Is(err, token.ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing org_id, got %v", err)
	}
}

func TestVerify_RejectsUnsignedAlgorithm(t *testing.T) {
	verifier := token.NewVerifier(testSecret)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"login":  "alice",
		"org_id": "example.org",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := verifier.Verify(raw); err == nil {
		t.Error("token with alg=none verified")
	}
}

func TestLooksSigned(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"plain-password", false},
		{"a.b", false},
		{"a.b.c", true},
		{"a.b.c.d", false},
		{"header.payload.signature", true},
	}
	for _, tt := range tests {
		if got := token.LooksSigned(tt.in); got != tt.want {
			t.Errorf("LooksSigned(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
