package store

import (
	"context"
	"errors"
	"testing"

	"oauth2-tokenserver/internal/utils"
	"oauth2-tokenserver/pkg/config"
)

func TestLoadClientsFromConfig(t *testing.T) {
	preHashed, err := utils.HashSecret("rotated", 4)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	disabled := false

	cfg := &config.Config{
		Security: config.SecurityConfig{HashCost: 4},
		Clients: []config.ClientConfig{
			{ID: "client1", Secret: "secret", Secrets: []string{string(preHashed)}, GrantTypes: []string{"client_credentials"}, Scopes: []string{"api1"}},
			{ID: "off", Secret: "secret", GrantTypes: []string{"client_credentials"}, Enabled: &disabled},
		},
	}

	clients, err := LoadClientsFromConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to load clients: %v", err)
	}

	client, err := clients.GetClient(context.Background(), "client1")
	if err != nil {
		t.Fatalf("Failed to get client: %v", err)
	}
	if string(client.Secret) == "secret" {
		t.Fatal("Plaintext secret must be hashed")
	}
	if !utils.ValidateSecret("secret", client.Secret) {
		t.Error("Hashed primary secret does not validate")
	}
	if len(client.GetHashedSecrets()) != 2 {
		t.Fatalf("Expected 2 secrets, got %d", len(client.GetHashedSecrets()))
	}
	if string(client.AdditionalSecrets[0]) != string(preHashed) {
		t.Error("Pre-hashed secret must be kept as is")
	}
	if !client.AllowsGrantType("client_credentials") || client.AllowsGrantType("password") {
		t.Error("Grant types not carried over")
	}

	off, err := clients.GetClient(context.Background(), "off")
	if err != nil {
		t.Fatalf("Failed to get client: %v", err)
	}
	if off.IsEnabled() {
		t.Error("Expected client to be disabled")
	}

	if _, err := clients.LookupPrincipal(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadResourcesDefaultsScopes(t *testing.T) {
	cfg := &config.Config{
		Security: config.SecurityConfig{HashCost: 4},
		Resources: []config.ResourceConfig{
			{Name: "api1", Secret: "secret"},
			{Name: "api3", Secret: "secret", Scopes: []string{"api3-a", "api3-b"}},
		},
	}

	resources, err := LoadResourcesFromConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to load resources: %v", err)
	}

	all := resources.All()
	if len(all) != 2 || all[0].Scopes[0] != "api1" || len(all[1].Scopes) != 2 {
		t.Errorf("Unexpected resources: %+v", all)
	}

	p, err := resources.LookupPrincipal(context.Background(), "api3")
	if err != nil {
		t.Fatalf("Failed to look up resource: %v", err)
	}
	if !p.IsEnabled() || !utils.ValidateSecret("secret", p.GetHashedSecrets()[0]) {
		t.Error("Resource principal not built correctly")
	}
}
