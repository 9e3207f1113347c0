package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
)

// ComputeKIDFromPublicKey computes a kid for an RSA public key using
// base64url(sha256(n || e)).
func ComputeKIDFromPublicKey(pub *rsa.PublicKey) string {
	eBig := big.NewInt(int64(pub.E))
	thumbSrc := append(pub.N.Bytes(), eBig.Bytes()...)
	thumb := sha256.Sum256(thumbSrc)
	return base64.RawURLEncoding.EncodeToString(thumb[:])
}

// ComputeKIDFromSecret derives a kid for a symmetric key without revealing it
func ComputeKIDFromSecret(secret []byte) string {
	thumb := sha256.Sum256(secret)
	return base64.RawURLEncoding.EncodeToString(thumb[:8])
}

// LoadRSAPrivateKey reads a PKCS#1 or PKCS#8 PEM encoded RSA key
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return ParseRSAPrivateKey(data)
}

// ParseRSAPrivateKey decodes a PEM encoded RSA private key
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is not an RSA key")
	}
	return key, nil
}

// GenerateRSAKey creates an ephemeral 2048 bit key
func GenerateRSAKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}
