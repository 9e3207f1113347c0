package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// SecretManager seals data at rest with AES-256-GCM
type SecretManager struct {
	aead cipher.AEAD
	err  error
}

// NewSecretManager creates a SecretManager for a 32 byte master key.
// A bad key surfaces as an error on the first Seal or Open.
func NewSecretManager(masterKey []byte) *SecretManager {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return &SecretManager{err: fmt.Errorf("failed to create cipher: %w", err)}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return &SecretManager{err: fmt.Errorf("failed to create GCM: %w", err)}
	}
	return &SecretManager{aead: gcm}
}

// Seal encrypts plaintext with a random nonce; additionalData binds the
// ciphertext to its record.
func (sm *SecretManager) Seal(plaintext, additionalData []byte) (string, error) {
	if sm.err != nil {
		return "", sm.err
	}

	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := sm.aead.Seal(nonce, nonce, plaintext, additionalData)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal
func (sm *SecretManager) Open(sealed string, additionalData []byte) ([]byte, error) {
	if sm.err != nil {
		return nil, sm.err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := sm.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := ciphertext[:nonceSize]
	ciphertext = ciphertext[nonceSize:]

	plaintext, err := sm.aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}
