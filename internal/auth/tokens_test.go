package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestHMACSignVerify(t *testing.T) {
	signer := NewHMACSigner("https://idsvr4", []byte("0123456789abcdef0123456789abcdef"), "")
	now := time.Now().Unix()

	token, err := signer.Sign(map[string]interface{}{
		"iss":   "https://idsvr4",
		"iat":   now,
		"nbf":   now,
		"exp":   now + 3600,
		"scope": []string{"api1"},
	}, TypeAccessToken)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	if !LooksLikeJWT(token) {
		t.Fatalf("Expected compact JWS, got %s", token)
	}

	header, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[0])
	if err != nil {
		t.Fatalf("Failed to decode header: %v", err)
	}
	var h map[string]interface{}
	if err := json.Unmarshal(header, &h); err != nil {
		t.Fatalf("Failed to parse header: %v", err)
	}
	if h["typ"] != TypeAccessToken || h["alg"] != "HS256" || h["kid"] == "" {
		t.Errorf("Unexpected header: %v", h)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if claims["iss"] != "https://idsvr4" {
		t.Errorf("Unexpected iss: %v", claims["iss"])
	}
}

func TestVerifyRejects(t *testing.T) {
	signer := NewHMACSigner("https://idsvr4", []byte("0123456789abcdef0123456789abcdef"), "")
	other := NewHMACSigner("https://idsvr4", []byte("fedcba9876543210fedcba9876543210"), "")
	now := time.Now().Unix()

	valid := map[string]interface{}{"iss": "https://idsvr4", "iat": now, "exp": now + 60}

	forged, _ := other.Sign(valid, TypeAccessToken)
	if _, err := signer.Verify(forged); err == nil {
		t.Error("Expected signature from another key to be rejected")
	}

	expired, _ := signer.Sign(map[string]interface{}{"iss": "https://idsvr4", "iat": now - 120, "exp": now - 60}, TypeAccessToken)
	if _, err := signer.Verify(expired); err == nil {
		t.Error("Expected expired token to be rejected")
	}

	foreign, _ := signer.Sign(map[string]interface{}{"iss": "https://elsewhere", "iat": now, "exp": now + 60}, TypeAccessToken)
	if _, err := signer.Verify(foreign); err == nil {
		t.Error("Expected token from another issuer to be rejected")
	}

	if _, err := signer.Verify("invalid"); err == nil {
		t.Error("Expected garbage to be rejected")
	}
}

func TestRSASignVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	signer := NewRSASigner("https://idsvr4", key, "")
	now := time.Now().Unix()

	token, err := signer.Sign(map[string]interface{}{"iss": "https://idsvr4", "iat": now, "exp": now + 60}, TypeAccessToken)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("Failed to verify RS256 token: %v", err)
	}
}
