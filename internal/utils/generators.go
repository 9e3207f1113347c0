package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// handleBytes is the entropy of reference and refresh token handles
const handleBytes = 32

// GenerateHandle returns an unpadded base64url encoding of 32 random bytes,
// used for reference and refresh token handles.
func GenerateHandle() (string, error) {
	buf := make([]byte, handleBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
