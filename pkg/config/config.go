package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Events    EventsConfig    `yaml:"events"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// CustomResponse is business data added to every token response
	CustomResponse map[string]any `yaml:"custom_response"`

	// ExtensionGrants registers extra grant types
	ExtensionGrants []ExtensionGrantConfig `yaml:"extension_grants" validate:"dive"`

	Clients        []ClientConfig   `yaml:"clients" validate:"dive"`
	Users          []UserConfig     `yaml:"users" validate:"dive"`
	Resources      []ResourceConfig `yaml:"api_resources" validate:"dive"`
	IdentityScopes []string         `yaml:"identity_scopes"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout       int    `yaml:"read_timeout"`
	WriteTimeout      int    `yaml:"write_timeout"`
	ShutdownTimeout   int    `yaml:"shutdown_timeout"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
}

// SecurityConfig holds signing and token lifetime settings
type SecurityConfig struct {
	Issuer                     string `yaml:"issuer" validate:"required"`
	SigningAlgorithm           string `yaml:"signing_algorithm" validate:"oneof=RS256 HS256"`
	SigningKey                 string `yaml:"signing_key"`
	SigningKeyPath             string `yaml:"signing_key_path"`
	KeyID                      string `yaml:"key_id"`
	TokenExpirySeconds         int    `yaml:"token_expiry_seconds" validate:"min=1"`
	IdentityTokenExpirySeconds int    `yaml:"identity_token_expiry_seconds" validate:"min=1"`
	RefreshTokenExpirySeconds  int    `yaml:"refresh_token_expiry_seconds" validate:"min=1"`
	HashCost                   int    `yaml:"hash_cost" validate:"min=4,max=31"`

	// EncryptionKey is a base64 encoded 32 byte key. When set, stored token claims are encrypted.
	EncryptionKey string `yaml:"encryption_key"`
}

// Empty scope policies
const (
	EmptyScopeAllowed = "allowed"
	EmptyScopeReject  = "reject"
)

// TokensConfig holds issuance and introspection policy
type TokensConfig struct {
	EmptyScopePolicy           string `yaml:"empty_scope_policy" validate:"oneof=allowed reject"`
	CustomizeClientErrors      bool   `yaml:"customize_client_errors"`
	HookTimeoutMillis          int    `yaml:"hook_timeout_ms" validate:"min=1"`
	StoreTimeoutMillis         int    `yaml:"store_timeout_ms" validate:"min=1"`
	AuthenticatorTimeoutMillis int    `yaml:"authenticator_timeout_ms" validate:"min=1"`
	IdentityProvider           string `yaml:"identity_provider" validate:"required"`
}

// HookTimeout bounds response customization
func (t TokensConfig) HookTimeout() time.Duration {
	return time.Duration(t.HookTimeoutMillis) * time.Millisecond
}

// StoreTimeout bounds token store calls
func (t TokensConfig) StoreTimeout() time.Duration {
	return time.Duration(t.StoreTimeoutMillis) * time.Millisecond
}

// AuthenticatorTimeout bounds caller authentication
func (t TokensConfig) AuthenticatorTimeout() time.Duration {
	return time.Duration(t.AuthenticatorTimeoutMillis) * time.Millisecond
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format      string `yaml:"format" validate:"omitempty,oneof=text json"`
	EnableAudit bool   `yaml:"enable_audit"`
}

// DatabaseConfig holds token store configuration
type DatabaseConfig struct {
	Type                   string `yaml:"type" validate:"oneof=memory sqlite postgres redis"`
	Path                   string `yaml:"path"`      // SQLite database file path
	URL                    string `yaml:"url"`       // PostgreSQL connection string
	RedisURL               string `yaml:"redis_url"` // redis://host:port/db
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds" validate:"min=0"`
}

// EventsConfig selects where issuance and introspection events go
type EventsConfig struct {
	Sink       string `yaml:"sink" validate:"oneof=none log amqp"`
	AMQPURL    string `yaml:"amqp_url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// RateLimitConfig holds per-IP request limits
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
}

// ExtensionGrantConfig binds a grant type name to a built-in extension validator
type ExtensionGrantConfig struct {
	GrantType string `yaml:"grant_type" validate:"required"`
	Validator string `yaml:"validator" validate:"required,oneof=outcome"`
}

// ClientConfig represents a client configuration from YAML.
// Secrets may be plaintext or bcrypt hashes.
type ClientConfig struct {
	ID                         string         `yaml:"id" validate:"required"`
	Name                       string         `yaml:"name"`
	Secret                     string         `yaml:"secret"`
	Secrets                    []string       `yaml:"secrets"`
	GrantTypes                 []string       `yaml:"grant_types" validate:"required,min=1"`
	Scopes                     []string       `yaml:"scopes"`
	Enabled                    *bool          `yaml:"enabled,omitempty"` // Pointer to distinguish between false and unset
	AllowOfflineAccess         bool           `yaml:"allow_offline_access"`
	AllowIdentityToken         bool           `yaml:"allow_identity_token"`
	AccessTokenType            string         `yaml:"access_token_type" validate:"omitempty,oneof=jwt reference"`
	AccessTokenLifetimeSeconds int            `yaml:"access_token_lifetime_seconds" validate:"min=0"`
	Claims                     map[string]any `yaml:"claims"`
	ClientClaimsPrefix         string         `yaml:"client_claims_prefix"`
}

// IsEnabled returns whether this client is enabled (defaults to true if not specified)
func (c ClientConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// AllSecrets returns the primary secret followed by the additional ones
func (c ClientConfig) AllSecrets() []string {
	return collectSecrets(c.Secret, c.Secrets)
}

// UserConfig represents a user configuration from YAML
type UserConfig struct {
	Subject  string         `yaml:"sub" validate:"required"`
	Username string         `yaml:"username" validate:"required"`
	Password string         `yaml:"password" validate:"required"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Claims   map[string]any `yaml:"claims"`
}

// IsEnabled returns whether this user may sign in (defaults to true)
func (u UserConfig) IsEnabled() bool {
	if u.Enabled == nil {
		return true
	}
	return *u.Enabled
}

// ResourceConfig represents an API resource. Scopes default to the resource name.
type ResourceConfig struct {
	Name    string   `yaml:"name" validate:"required"`
	Secret  string   `yaml:"secret"`
	Secrets []string `yaml:"secrets"`
	Scopes  []string `yaml:"scopes"`
	Enabled *bool    `yaml:"enabled,omitempty"`
}

// IsEnabled returns whether this resource may introspect (defaults to true)
func (r ResourceConfig) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// AllSecrets returns the primary secret followed by the additional ones
func (r ResourceConfig) AllSecrets() []string {
	return collectSecrets(r.Secret, r.Secrets)
}

// OwnedScopes returns the configured scopes or the resource name
func (r ResourceConfig) OwnedScopes() []string {
	if len(r.Scopes) == 0 {
		return []string{r.Name}
	}
	return r.Scopes
}

func collectSecrets(primary string, more []string) []string {
	var secrets []string
	if primary != "" {
		secrets = append(secrets, primary)
	}
	for _, s := range more {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Security.SigningAlgorithm {
	case "HS256":
		if len(c.Security.SigningKey) < 32 {
			return fmt.Errorf("HS256 signing key must be at least 32 characters (current length: %d)", len(c.Security.SigningKey))
		}
	}

	if c.Security.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption key must be base64 encoded: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key))
		}
	}

	if err := c.validateDatabaseConfig(); err != nil {
		return err
	}

	if c.Events.Sink == "amqp" && c.Events.AMQPURL == "" {
		return fmt.Errorf("events.amqp_url is required for the amqp sink")
	}

	knownScopes := make(map[string]bool)
	for _, scope := range c.IdentityScopes {
		knownScopes[scope] = true
	}
	knownScopes["offline_access"] = true

	resourceNames := make(map[string]bool)
	for _, res := range c.Resources {
		if resourceNames[res.Name] {
			return fmt.Errorf("duplicate api resource: %s", res.Name)
		}
		resourceNames[res.Name] = true
		for _, scope := range res.OwnedScopes() {
			knownScopes[scope] = true
		}
	}

	grantTypes := map[string]bool{
		"password":           true,
		"client_credentials": true,
		"refresh_token":      true,
	}
	for _, ext := range c.ExtensionGrants {
		if grantTypes[ext.GrantType] {
			return fmt.Errorf("extension grant %q collides with an existing grant type", ext.GrantType)
		}
		grantTypes[ext.GrantType] = true
	}

	clientIDs := make(map[string]bool)
	for _, client := range c.Clients {
		if clientIDs[client.ID] {
			return fmt.Errorf("duplicate client_id: %s", client.ID)
		}
		clientIDs[client.ID] = true

		if len(client.AllSecrets()) == 0 {
			return fmt.Errorf("client %s has no secret", client.ID)
		}
		for _, gt := range client.GrantTypes {
			if !grantTypes[gt] {
				return fmt.Errorf("client %s uses unknown grant type: %s", client.ID, gt)
			}
		}
		for _, scope := range client.Scopes {
			if !knownScopes[scope] {
				return fmt.Errorf("client %s allows unknown scope: %s", client.ID, scope)
			}
		}
	}

	usernames := make(map[string]bool)
	for _, user := range c.Users {
		if usernames[user.Username] {
			return fmt.Errorf("duplicate username: %s", user.Username)
		}
		usernames[user.Username] = true
	}

	return nil
}

func (c *Config) validateDatabaseConfig() error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
		if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
			return fmt.Errorf("database.url must be a postgres:// URL")
		}
	case "redis":
		if c.Database.RedisURL == "" {
			return fmt.Errorf("database.redis_url is required for redis")
		}
	}
	return nil
}

// SetDefaults fills in unset values
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15
	}

	if c.Security.SigningAlgorithm == "" {
		c.Security.SigningAlgorithm = "RS256"
	}
	if c.Security.TokenExpirySeconds == 0 {
		c.Security.TokenExpirySeconds = 3600 // 1 hour
	}
	if c.Security.IdentityTokenExpirySeconds == 0 {
		c.Security.IdentityTokenExpirySeconds = 300
	}
	if c.Security.RefreshTokenExpirySeconds == 0 {
		c.Security.RefreshTokenExpirySeconds = 2592000 // 30 days
	}
	if c.Security.HashCost == 0 {
		c.Security.HashCost = 10
	}

	if c.Tokens.EmptyScopePolicy == "" {
		c.Tokens.EmptyScopePolicy = EmptyScopeAllowed
	}
	if c.Tokens.HookTimeoutMillis == 0 {
		c.Tokens.HookTimeoutMillis = 500
	}
	if c.Tokens.StoreTimeoutMillis == 0 {
		c.Tokens.StoreTimeoutMillis = 2000
	}
	if c.Tokens.AuthenticatorTimeoutMillis == 0 {
		c.Tokens.AuthenticatorTimeoutMillis = 2000
	}
	if c.Tokens.IdentityProvider == "" {
		c.Tokens.IdentityProvider = "local"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Database.Type == "" {
		c.Database.Type = "memory"
	}
	if c.Database.Path == "" && c.Database.Type == "sqlite" {
		c.Database.Path = "tokens.db"
	}
	if c.Database.CleanupIntervalSeconds == 0 {
		c.Database.CleanupIntervalSeconds = 300
	}

	if c.Events.Sink == "" {
		c.Events.Sink = "none"
		if c.Logging.EnableAudit {
			c.Events.Sink = "log"
		}
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "oauth2.events"
	}
	if c.Events.RoutingKey == "" {
		c.Events.RoutingKey = "token"
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}

	if len(c.IdentityScopes) == 0 {
		c.IdentityScopes = []string{"openid", "profile", "email"}
	}
}
