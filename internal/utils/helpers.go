package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes a secret with bcrypt at the given cost
func HashSecret(secret string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, err
	}
	return hashed, nil
}

// IsBcryptHash reports whether value already looks like a bcrypt hash
func IsBcryptHash(value string) bool {
	if len(value) != 60 {
		return false
	}
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

// EnsureHashed returns value unchanged if it is a bcrypt hash, otherwise hashes it
func EnsureHashed(value string, cost int) ([]byte, error) {
	if IsBcryptHash(value) {
		return []byte(value), nil
	}
	return HashSecret(value, cost)
}

// ValidateSecret validates a secret against its bcrypt hash
func ValidateSecret(secret string, hashedSecret []byte) bool {
	return bcrypt.CompareHashAndPassword(hashedSecret, []byte(secret)) == nil
}
