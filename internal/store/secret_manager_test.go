package store

import (
	"bytes"
	"testing"
)

func TestSecretManager_SealOpen(t *testing.T) {
	key := "abcdefghijklmnopqrstuvwxyz123456" // exactly 32 bytes
	sm := NewSecretManager([]byte(key))

	plaintext := []byte(`{"sub":"bob"}`)

	sealed, err := sm.Seal(plaintext, []byte("key-1"))
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	if sealed == "" || sealed == string(plaintext) {
		t.Fatal("Sealed value is empty or identical to plaintext")
	}

	opened, err := sm.Open(sealed, []byte("key-1"))
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("Opened value does not match. Got: %s, Expected: %s", opened, plaintext)
	}
}

func TestSecretManager_BoundToRecord(t *testing.T) {
	sm := NewSecretManager([]byte("abcdefghijklmnopqrstuvwxyz123456"))

	sealed, err := sm.Seal([]byte("claims"), []byte("key-1"))
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	if _, err := sm.Open(sealed, []byte("key-2")); err == nil {
		t.Fatal("Expected opening with different additional data to fail")
	}
}

func TestSecretManager_DifferentKeys(t *testing.T) {
	sm1 := NewSecretManager([]byte("abcdefghijklmnopqrstuvwxyz123456"))
	sm2 := NewSecretManager([]byte("123456abcdefghijklmnopqrstuvwxyz"))

	sealed, err := sm1.Seal([]byte("test-secret"), nil)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	if _, err := sm2.Open(sealed, nil); err == nil {
		t.Fatal("Expected decryption with a different key to fail")
	}
}

func TestSecretManager_BadKey(t *testing.T) {
	sm := NewSecretManager([]byte("short"))
	if _, err := sm.Seal([]byte("x"), nil); err == nil {
		t.Fatal("Expected error for invalid key length")
	}
}
