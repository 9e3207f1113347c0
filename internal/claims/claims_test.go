package claims

import (
	"testing"
	"time"

	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/models"

	"github.com/ory/fosite"
)

func testAssembler(t *testing.T) *Assembler {
	t.Helper()
	cat, err := catalog.New([]*models.Resource{
		{Name: "api1", Scopes: []string{"api1"}},
		{Name: "api2", Scopes: []string{"api2"}},
		{Name: "api3", Scopes: []string{"api3-a", "api3-b"}},
	}, []string{"openid"})
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	a := NewAssembler("https://idsvr4", cat, time.Hour, 5*time.Minute)
	a.newID = func() string { return "fixed-jti" }
	return a
}

func testClient(claims map[string]any) *models.Client {
	return &models.Client{
		DefaultClient: &fosite.DefaultClient{ID: "roclient"},
		Enabled:       true,
		Claims:        claims,
	}
}

func TestAssembleSubjectBearingToken(t *testing.T) {
	a := testAssembler(t)
	now := time.Unix(1700000000, 0)
	outcome := &models.GrantOutcome{
		Subject:          "bob",
		AuthMethods:      []string{"password"},
		Scopes:           fosite.Arguments{"api1"},
		AuthTime:         now,
		IdentityProvider: "local",
	}

	payload := a.Assemble(testClient(nil), outcome, now).JWT()

	want := []string{"iss", "nbf", "iat", "exp", "aud", "scope", "amr", "client_id", "sub", "auth_time", "idp", "jti"}
	if len(payload) != len(want) {
		t.Fatalf("Expected %d claims, got %d: %v", len(want), len(payload), payload)
	}
	for _, name := range want {
		if _, ok := payload[name]; !ok {
			t.Errorf("Missing claim %s", name)
		}
	}
	if payload["aud"] != "api1" {
		t.Errorf("Expected scalar audience, got %v", payload["aud"])
	}
	if payload["exp"].(int64)-payload["iat"].(int64) != 3600 {
		t.Errorf("Unexpected lifetime: %v", payload)
	}
	if payload["jti"] != "fixed-jti" {
		t.Errorf("Unexpected jti: %v", payload["jti"])
	}
}

func TestAssembleWithoutSubject(t *testing.T) {
	a := testAssembler(t)
	outcome := &models.GrantOutcome{
		AuthMethods: []string{"client_credentials"},
		Scopes:      fosite.Arguments{"api1", "api2", "api3-a"},
	}

	payload := a.Assemble(testClient(map[string]any{"tier": "gold"}), outcome, time.Now()).JWT()

	for _, name := range []string{"sub", "amr", "idp", "auth_time"} {
		if _, ok := payload[name]; ok {
			t.Errorf("Claim %s must not be emitted without a subject", name)
		}
	}
	aud, ok := payload["aud"].([]string)
	if !ok || len(aud) != 3 || aud[0] != "api1" || aud[1] != "api2" || aud[2] != "api3" {
		t.Errorf("Expected audience array in first-seen order, got %v", payload["aud"])
	}
	if payload["client_tier"] != "gold" {
		t.Errorf("Expected prefixed client claim, got %v", payload)
	}
}

func TestIntrospectionProjection(t *testing.T) {
	a := testAssembler(t)
	outcome := &models.GrantOutcome{
		AuthMethods: []string{"client_credentials"},
		Scopes:      fosite.Arguments{"api1", "api3-a", "api3-b"},
	}
	c := a.Assemble(testClient(nil), outcome, time.Now())

	got := c.Introspection([]string{"api3-a", "api3-b"})
	if got["scope"] != "api3-a api3-b" {
		t.Errorf("Expected space delimited visible scopes, got %v", got["scope"])
	}
	if _, ok := got["aud"].([]string); !ok {
		t.Errorf("Audience must be kept unfiltered, got %v", got["aud"])
	}

	record := c.Record("fixed-jti", a.Catalog)
	if record.ScopeResources["api3-b"] != "api3" || record.Type != models.TokenTypeAccess {
		t.Errorf("Unexpected record: %+v", record)
	}
	back := FromRecord("https://idsvr4", record)
	if back.JTI != "fixed-jti" || back.ExpiresAt != c.ExpiresAt || len(back.Scopes) != 3 {
		t.Errorf("Round trip lost data: %+v", back)
	}
}

func TestAssembleIdentity(t *testing.T) {
	a := testAssembler(t)
	now := time.Unix(1700000000, 0)
	outcome := &models.GrantOutcome{
		Subject:          "bob",
		AuthMethods:      []string{"password"},
		IdentityProvider: "local",
		Claims:           map[string]any{"name": "Bob Smith", "sub": "spoofed"},
	}

	payload := a.AssembleIdentity(testClient(nil), outcome, now)
	if payload["aud"] != "roclient" || payload["sub"] != "bob" {
		t.Errorf("Unexpected identity payload: %v", payload)
	}
	if payload["name"] != "Bob Smith" {
		t.Errorf("Expected user claim, got %v", payload["name"])
	}
	if payload["exp"].(int64) != now.Add(5*time.Minute).Unix() {
		t.Errorf("Unexpected exp: %v", payload["exp"])
	}
}
