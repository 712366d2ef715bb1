package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost factor used for admin secret hashes
const DefaultCost = bcrypt.DefaultCost

// HashSecret generates a bcrypt hash suitable for auth.admin_secret_hash
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// IsHash reports whether stored looks like a bcrypt hash.
func IsHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// CheckSecret compares secret with stored, which is either a bcrypt hash
// or a plaintext value.
func CheckSecret(secret, stored string) bool {
	if stored == "" {
		return false
	}
	if IsHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(stored)) == 1
}
