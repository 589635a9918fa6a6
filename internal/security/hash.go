package security

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// HashRefreshToken derives a slow one-way hash for server-side storage.
// The raw JWT is pre-hashed with SHA-256 because bcrypt only consumes the
// first 72 bytes of its input and refresh tokens are much longer.
func HashRefreshToken(raw string, cost int) (string, error) {
	sum := sha256.Sum256([]byte(raw))
	h, err := bcrypt.GenerateFromPassword(sum[:], cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CompareRefreshToken reports whether raw matches a stored hash.
func CompareRefreshToken(storedHash, raw string) bool {
	sum := sha256.Sum256([]byte(raw))
	return bcrypt.CompareHashAndPassword([]byte(storedHash), sum[:]) == nil
}
