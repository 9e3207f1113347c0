package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store"
	"oauth2-tokenserver/internal/utils"

	"github.com/sirupsen/logrus"
)

type registryFunc func(ctx context.Context, id string) (models.Principal, error)

func (f registryFunc) LookupPrincipal(ctx context.Context, id string) (models.Principal, error) {
	return f(ctx, id)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testRegistry(t *testing.T) *store.ResourceStore {
	t.Helper()
	primary, err := utils.HashSecret("secret", 4)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	rotated, err := utils.HashSecret("next-secret", 4)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	return store.NewResourceStore(
		&models.Resource{Name: "api1", Enabled: true, Secrets: [][]byte{primary, rotated}, Scopes: []string{"api1"}},
		&models.Resource{Name: "api-off", Enabled: false, Secrets: [][]byte{primary}},
	)
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(testRegistry(t), 4, time.Second, testLogger())

	tests := []struct {
		name    string
		creds   Credentials
		wantErr error
	}{
		{"valid primary secret", Credentials{ID: "api1", Secret: "secret"}, nil},
		{"valid additional secret", Credentials{ID: "api1", Secret: "next-secret"}, nil},
		{"no credentials", Credentials{}, models.ErrUnauthorizedCaller},
		{"unknown caller", Credentials{ID: "unknown", Secret: "secret"}, models.ErrUnauthorizedCaller},
		{"wrong secret", Credentials{ID: "api1", Secret: "invalid"}, models.ErrUnauthorizedCaller},
		{"missing secret", Credentials{ID: "api1"}, models.ErrUnauthorizedCaller},
		{"disabled caller", Credentials{ID: "api-off", Secret: "secret"}, models.ErrUnauthorizedCaller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Authenticate(context.Background(), tt.creds)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Expected success, got %v", err)
				}
				if p.GetID() != tt.creds.ID {
					t.Errorf("Expected principal %s, got %s", tt.creds.ID, p.GetID())
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthenticateTimeout(t *testing.T) {
	slow := registryFunc(func(ctx context.Context, id string) (models.Principal, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil, ctx.Err()
	})
	a := NewAuthenticator(slow, 4, 20*time.Millisecond, testLogger())

	_, err := a.Authenticate(context.Background(), Credentials{ID: "client1", Secret: "secret"})
	if !errors.Is(err, models.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
}

func TestAuthenticateRegistryFailure(t *testing.T) {
	broken := registryFunc(func(ctx context.Context, id string) (models.Principal, error) {
		return nil, errors.New("connection refused")
	})
	a := NewAuthenticator(broken, 4, time.Second, testLogger())

	_, err := a.Authenticate(context.Background(), Credentials{ID: "client1", Secret: "secret"})
	if !errors.Is(err, models.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
}

func newFormRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/connect/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ParseForm()
	return r
}

func TestExtractClientCredentials(t *testing.T) {
	t.Run("basic header is url decoded", func(t *testing.T) {
		r := newFormRequest(url.Values{})
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("client.custom:p%40ss")))

		creds, err := ExtractClientCredentials(r)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if creds.ID != "client.custom" || creds.Secret != "p@ss" {
			t.Errorf("Unexpected credentials: %+v", creds)
		}
	})

	t.Run("body credentials", func(t *testing.T) {
		r := newFormRequest(url.Values{"client_id": {"client1"}, "client_secret": {"secret"}})

		creds, err := ExtractClientCredentials(r)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if creds.ID != "client1" || creds.Secret != "secret" {
			t.Errorf("Unexpected credentials: %+v", creds)
		}
	})

	t.Run("conflicting ids", func(t *testing.T) {
		r := newFormRequest(url.Values{"client_id": {"other"}})
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("client1:secret")))

		if _, err := ExtractClientCredentials(r); err == nil {
			t.Fatal("Expected error for conflicting client ids")
		}
	})

	t.Run("bad encoding", func(t *testing.T) {
		r := newFormRequest(url.Values{})
		r.Header.Set("Authorization", "Basic !!!")

		if _, err := ExtractClientCredentials(r); err == nil {
			t.Fatal("Expected error for invalid base64")
		}
	})

	t.Run("nothing presented", func(t *testing.T) {
		creds, err := ExtractClientCredentials(newFormRequest(url.Values{}))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if creds.ID != "" {
			t.Errorf("Expected empty credentials, got %+v", creds)
		}
	})
}
