package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"oauth2-tokenserver/internal/auth"
	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/claims"
	"oauth2-tokenserver/internal/events"
	"oauth2-tokenserver/internal/flows"
	"oauth2-tokenserver/internal/hooks"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store"
	"oauth2-tokenserver/internal/store/storages"
	"oauth2-tokenserver/internal/store/types"
	"oauth2-tokenserver/internal/utils"

	"github.com/ory/fosite"
	"github.com/sirupsen/logrus"
)

const testKey = "0123456789abcdef0123456789abcdef"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type recordingSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (s *recordingSink) Publish(ctx context.Context, ev *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Name)
	}
	return out
}

// faultyStore fails the n-th CreateToken call with err
type faultyStore struct {
	types.TokenStore
	failOn int
	err    error
	calls  int
}

func (s *faultyStore) CreateToken(ctx context.Context, token *models.IssuedToken) error {
	s.calls++
	if s.calls == s.failOn {
		return s.err
	}
	return s.TokenStore.CreateToken(ctx, token)
}

type fixture struct {
	issuer *Issuer
	tokens types.TokenStore
	sink   *recordingSink
}

func newFixture(t *testing.T, tokens types.TokenStore, hook hooks.Hook) *fixture {
	t.Helper()
	log := testLogger()

	secret, err := utils.HashSecret("secret", 4)
	if err != nil {
		t.Fatalf("Failed to hash secret: %v", err)
	}
	clients := store.NewClientStore()
	clients.Add(&models.Client{
		DefaultClient: &fosite.DefaultClient{
			ID:         "client1",
			Secret:     secret,
			GrantTypes: fosite.Arguments{"client_credentials", "custom", "refresh_token"},
			Scopes:     fosite.Arguments{"openid", "api1", "offline_access"},
		},
		Enabled:            true,
		AllowOfflineAccess: true,
		AllowIdentityToken: true,
	})
	clients.Add(&models.Client{
		DefaultClient: &fosite.DefaultClient{
			ID:         "reference",
			Secret:     secret,
			GrantTypes: fosite.Arguments{"client_credentials"},
			Scopes:     fosite.Arguments{"api1"},
		},
		Enabled:         true,
		AccessTokenType: models.AccessTokenReference,
	})

	cat, err := catalog.New([]*models.Resource{{Name: "api1", Enabled: true, Scopes: []string{"api1"}}}, []string{"openid"})
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	if tokens == nil {
		tokens = storages.NewMemoryStore(log)
	}

	registry := flows.NewRegistry(cat, "allowed", log)
	if err := registry.Register("client_credentials", flows.ClientCredentialsValidator{}); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register("custom", flows.NewOutcomeValidator("local")); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register("refresh_token", flows.NewRefreshTokenValidator(tokens, log)); err != nil {
		t.Fatal(err)
	}
	if hook == nil {
		hook = hooks.NoCustomization{}
	}
	signer := auth.NewHMACSigner("https://issuer", []byte(testKey), "")
	sink := &recordingSink{}

	iss := New(
		auth.NewAuthenticator(clients, 4, time.Second, log),
		registry,
		claims.NewAssembler(signer.Issuer(), cat, time.Hour, 5*time.Minute),
		signer,
		tokens,
		hooks.NewRunner(hook, time.Second, log),
		events.NewRaiser(sink, log),
		nil,
		Options{StoreTimeout: time.Second, RefreshTokenLifetime: 24 * time.Hour},
		log,
	)
	return &fixture{issuer: iss, tokens: tokens, sink: sink}
}

func request(clientID, grantType string, scopes ...string) *TokenRequest {
	return &TokenRequest{
		Credentials: auth.Credentials{ID: clientID, Secret: "secret"},
		GrantType:   grantType,
		Scopes:      fosite.Arguments(scopes),
		Parameters:  map[string]string{"outcome": "succeed"},
	}
}

func countTokens(t *testing.T, tokens types.TokenStore) int {
	t.Helper()
	n, err := tokens.CountTokens(context.Background())
	if err != nil {
		t.Fatalf("CountTokens failed: %v", err)
	}
	return n
}

func TestIssueJWT(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, status := f.issuer.Issue(context.Background(), request("client1", "client_credentials", "api1"))
	if status != http.StatusOK || resp.IsError() {
		t.Fatalf("Expected success, got %d %+v", status, resp)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 3600 || resp.Scope != "api1" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.IdentityToken != "" || resp.RefreshToken != "" {
		t.Error("Client credentials must not yield identity or refresh tokens")
	}

	payload, err := f.issuer.Signer.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("Access token does not verify: %v", err)
	}
	record, err := f.tokens.GetToken(context.Background(), payload["jti"].(string))
	if err != nil {
		t.Fatalf("Expected a record under the jti: %v", err)
	}
	if record.ClientID != "client1" || record.Type != models.TokenTypeAccess {
		t.Errorf("Unexpected record: %+v", record)
	}

	if names := f.sink.names(); len(names) != 1 || names[0] != events.TokenIssuedSuccess {
		t.Errorf("Expected one success event, got %v", names)
	}
}

func TestIssueReference(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, status := f.issuer.Issue(context.Background(), request("reference", "client_credentials", "api1"))
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if auth.LooksLikeJWT(resp.AccessToken) {
		t.Fatalf("Expected an opaque handle, got %s", resp.AccessToken)
	}
	record, err := f.tokens.GetToken(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("Expected a record under the handle: %v", err)
	}
	if len(record.Scopes) != 1 || record.Scopes[0] != "api1" {
		t.Errorf("Unexpected scopes: %v", record.Scopes)
	}
}

func TestIssueWithSubject(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, status := f.issuer.Issue(context.Background(), request("client1", "custom", "openid", "api1", "offline_access"))
	if status != http.StatusOK || resp.IsError() {
		t.Fatalf("Expected success, got %d %+v", status, resp)
	}
	if resp.IdentityToken == "" {
		t.Error("Expected an identity token")
	}
	if resp.RefreshToken == "" {
		t.Fatal("Expected a refresh token")
	}
	record, err := f.tokens.GetToken(context.Background(), resp.RefreshToken)
	if err != nil {
		t.Fatalf("Expected refresh record: %v", err)
	}
	if record.Type != models.TokenTypeRefresh || record.Subject != "bob" {
		t.Errorf("Unexpected refresh record: %+v", record)
	}
	if n := countTokens(t, f.tokens); n != 2 {
		t.Errorf("Expected 2 stored records, got %d", n)
	}
}

func TestRefreshReusesHandle(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	first, status := f.issuer.Issue(ctx, request("client1", "custom", "openid", "api1", "offline_access"))
	if status != http.StatusOK || first.RefreshToken == "" {
		t.Fatalf("Expected a refresh token, got %d %+v", status, first)
	}

	for n := 1; n <= 3; n++ {
		resp, status := f.issuer.Issue(ctx, &TokenRequest{
			Credentials: auth.Credentials{ID: "client1", Secret: "secret"},
			GrantType:   "refresh_token",
			Parameters:  map[string]string{"refresh_token": first.RefreshToken},
		})
		if status != http.StatusOK || resp.IsError() {
			t.Fatalf("Refresh %d failed: %d %+v", n, status, resp)
		}
		if resp.RefreshToken != first.RefreshToken {
			t.Errorf("Refresh %d minted a new handle", n)
		}
		if resp.Scope != "openid api1 offline_access" {
			t.Errorf("Refresh %d: expected the original scopes, got %q", n, resp.Scope)
		}
		// one access record per refresh, the refresh record stays single
		if got := countTokens(t, f.tokens); got != 2+n {
			t.Errorf("Refresh %d: expected %d records, got %d", n, 2+n, got)
		}
	}
}

func TestIssueFailures(t *testing.T) {
	tests := []struct {
		name        string
		req         *TokenRequest
		wantStatus  int
		wantError   string
		customizeOn bool
	}{
		{
			name:       "wrong secret",
			req:        &TokenRequest{Credentials: auth.Credentials{ID: "client1", Secret: "nope"}, GrantType: "client_credentials"},
			wantStatus: http.StatusUnauthorized,
			wantError:  models.ErrorInvalidClient,
		},
		{
			name: "unreadable credentials",
			req: &TokenRequest{
				GrantType:      "client_credentials",
				CredentialsErr: fmt.Errorf("invalid basic auth encoding: %w", models.ErrUnauthorizedCaller),
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  models.ErrorInvalidClient,
		},
		{
			name:       "missing grant type",
			req:        request("client1", ""),
			wantStatus: http.StatusOK,
			wantError:  models.ErrorInvalidRequest,
		},
		{
			name:       "unknown grant type",
			req:        request("client1", "urn:nope"),
			wantStatus: http.StatusOK,
			wantError:  models.ErrorUnsupportedGrantType,
		},
		{
			name:       "grant not allowed",
			req:        request("reference", "custom"),
			wantStatus: http.StatusOK,
			wantError:  models.ErrorUnauthorizedClient,
		},
		{
			name:       "unknown scope",
			req:        request("client1", "client_credentials", "api9"),
			wantStatus: http.StatusOK,
			wantError:  models.ErrorInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			resp, status := f.issuer.Issue(context.Background(), tt.req)
			if status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, status)
			}
			if resp.Error != tt.wantError {
				t.Errorf("Expected error %s, got %s", tt.wantError, resp.Error)
			}
			if resp.AccessToken != "" || resp.TokenType != "" || resp.ExpiresIn != 0 {
				t.Errorf("Error responses carry no token: %+v", resp)
			}
			if names := f.sink.names(); len(names) != 1 || names[0] != events.TokenIssuedFailure {
				t.Errorf("Expected one failure event, got %v", names)
			}
		})
	}
}

func TestHookScope(t *testing.T) {
	hook := hooks.StaticFields{"tenant": "acme"}

	t.Run("grant error is customized", func(t *testing.T) {
		f := newFixture(t, nil, hook)
		resp, _ := f.issuer.Issue(context.Background(), request("client1", "client_credentials", "api9"))
		if resp.Custom["tenant"] != "acme" {
			t.Errorf("Expected business data on grant error, got %v", resp.Custom)
		}
	})

	t.Run("client error is not customized by default", func(t *testing.T) {
		f := newFixture(t, nil, hook)
		req := request("client1", "client_credentials")
		req.Credentials.Secret = "nope"
		resp, _ := f.issuer.Issue(context.Background(), req)
		if len(resp.Custom) != 0 {
			t.Errorf("Expected no business data, got %v", resp.Custom)
		}
	})

	t.Run("client error customized when enabled", func(t *testing.T) {
		f := newFixture(t, nil, hook)
		f.issuer.CustomizeClientErrors = true
		req := request("client1", "client_credentials")
		req.Credentials.Secret = "nope"
		resp, status := f.issuer.Issue(context.Background(), req)
		if status != http.StatusUnauthorized || resp.Custom["tenant"] != "acme" {
			t.Errorf("Expected customized 401, got %d %v", status, resp.Custom)
		}
	})

	t.Run("unreadable credentials customized when enabled", func(t *testing.T) {
		f := newFixture(t, nil, hook)
		f.issuer.CustomizeClientErrors = true
		resp, status := f.issuer.Issue(context.Background(), &TokenRequest{
			GrantType:      "client_credentials",
			CredentialsErr: fmt.Errorf("invalid basic auth format: %w", models.ErrUnauthorizedCaller),
		})
		if status != http.StatusUnauthorized || resp.Custom["tenant"] != "acme" {
			t.Errorf("Expected customized 401, got %d %v", status, resp.Custom)
		}
	})

	t.Run("hook failure keeps the token", func(t *testing.T) {
		failing := hooks.HookFunc(func(ctx context.Context, rc *hooks.ResponseContext) (map[string]any, error) {
			return nil, errors.New("boom")
		})
		f := newFixture(t, nil, failing)
		resp, status := f.issuer.Issue(context.Background(), request("client1", "client_credentials", "api1"))
		if status != http.StatusOK || resp.AccessToken == "" {
			t.Errorf("Expected token despite hook failure, got %d %+v", status, resp)
		}
	})
}

func TestPersistFailures(t *testing.T) {
	t.Run("store unavailable", func(t *testing.T) {
		tokens := &faultyStore{TokenStore: storages.NewMemoryStore(testLogger()), failOn: 1, err: errors.New("connection refused")}
		f := newFixture(t, tokens, nil)
		resp, status := f.issuer.Issue(context.Background(), request("client1", "client_credentials", "api1"))
		if status != http.StatusServiceUnavailable || resp.Error != models.ErrorTemporarilyUnavailable {
			t.Errorf("Expected 503, got %d %+v", status, resp)
		}
	})

	t.Run("second write fails", func(t *testing.T) {
		tokens := &faultyStore{TokenStore: storages.NewMemoryStore(testLogger()), failOn: 2, err: errors.New("connection reset")}
		f := newFixture(t, tokens, nil)
		_, status := f.issuer.Issue(context.Background(), request("client1", "custom", "api1", "offline_access"))
		if status != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", status)
		}
		if n := countTokens(t, tokens); n != 0 {
			t.Errorf("Expected partial writes to be discarded, %d left", n)
		}
	})

	t.Run("key collision", func(t *testing.T) {
		tokens := &faultyStore{TokenStore: storages.NewMemoryStore(testLogger()), failOn: 1, err: types.ErrTokenExists}
		f := newFixture(t, tokens, nil)
		resp, status := f.issuer.Issue(context.Background(), request("client1", "client_credentials", "api1"))
		if status != http.StatusInternalServerError || resp.Error != models.ErrorServerError {
			t.Errorf("Expected 500, got %d %+v", status, resp)
		}
	})

	t.Run("cancelled request", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		records := []*models.IssuedToken{{
			Key:       "k1",
			Type:      models.TokenTypeAccess,
			ClientID:  "client1",
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}}
		cancel()
		err := f.issuer.persist(ctx, records)
		if !errors.Is(err, models.ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
		if n := countTokens(t, f.tokens); n != 0 {
			t.Errorf("Expected cancelled issuance to leave nothing, %d left", n)
		}
	})
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	owner := auth.Credentials{ID: "client1", Secret: "secret"}

	resp, _ := f.issuer.Issue(ctx, request("client1", "client_credentials", "api1"))
	payload, err := f.issuer.Signer.Verify(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	jti := payload["jti"].(string)

	if err := f.issuer.Revoke(ctx, auth.Credentials{ID: "reference", Secret: "secret"}, resp.AccessToken, ""); err != nil {
		t.Fatalf("Foreign revocation must not fail: %v", err)
	}
	if _, err := f.tokens.GetToken(ctx, jti); err != nil {
		t.Fatalf("Foreign client revoked the token: %v", err)
	}

	if err := f.issuer.Revoke(ctx, owner, resp.AccessToken, "access_token"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := f.tokens.GetToken(ctx, jti); !errors.Is(err, types.ErrTokenNotFound) {
		t.Errorf("Expected token to be gone, got %v", err)
	}

	if err := f.issuer.Revoke(ctx, owner, "unknown", ""); err != nil {
		t.Errorf("Unknown token must not fail: %v", err)
	}
	if err := f.issuer.Revoke(ctx, owner, "a.b.c", ""); err != nil {
		t.Errorf("Invalid JWT must not fail: %v", err)
	}
	if err := f.issuer.Revoke(ctx, owner, "", ""); !errors.Is(err, models.ErrMalformedRequest) {
		t.Errorf("Expected ErrMalformedRequest, got %v", err)
	}
	if err := f.issuer.Revoke(ctx, auth.Credentials{ID: "client1", Secret: "nope"}, "x", ""); !errors.Is(err, models.ErrUnauthorizedCaller) {
		t.Errorf("Expected ErrUnauthorizedCaller, got %v", err)
	}
}
