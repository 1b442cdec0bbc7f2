package identity

import (
	"golang.org/x/crypto/bcrypt"
)

// HashSecret creates a bcrypt hash of a component secret. Intended
// for provisioning tooling and test fixtures. Cost should be at
// least 10 for production.
func HashSecret(secret string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifySecret reports whether secret matches the stored bcrypt hash.
// Empty secrets and empty hashes never match, even each other.
func verifySecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
