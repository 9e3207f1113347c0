package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		if strings.HasPrefix(file, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			file = strings.Replace(file, "~", home, 1)
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromEnv overrides YAML values with environment variables that are set
func (c *Config) LoadFromEnv() {
	// Server configuration overrides
	if port := os.Getenv("PORT"); port != "" {
		if portInt, err := strconv.Atoi(port); err == nil {
			c.Server.Port = portInt
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}
	if os.Getenv("TRUST_PROXY_HEADERS") != "" {
		c.Server.TrustProxyHeaders = GetEnvBool("TRUST_PROXY_HEADERS", c.Server.TrustProxyHeaders)
	}

	// Security overrides
	c.Security.Issuer = GetEnvString("ISSUER", c.Security.Issuer)
	c.Security.SigningAlgorithm = GetEnvString("SIGNING_ALGORITHM", c.Security.SigningAlgorithm)
	c.Security.SigningKey = GetEnvString("SIGNING_KEY", c.Security.SigningKey)
	c.Security.SigningKeyPath = GetEnvString("SIGNING_KEY_PATH", c.Security.SigningKeyPath)
	c.Security.EncryptionKey = GetEnvString("ENCRYPTION_KEY", c.Security.EncryptionKey)
	c.Security.TokenExpirySeconds = GetEnvInt("TOKEN_EXPIRY_SECONDS", c.Security.TokenExpirySeconds)

	// Token policy overrides
	c.Tokens.EmptyScopePolicy = GetEnvString("EMPTY_SCOPE_POLICY", c.Tokens.EmptyScopePolicy)
	if os.Getenv("CUSTOMIZE_CLIENT_ERRORS") != "" {
		c.Tokens.CustomizeClientErrors = GetEnvBool("CUSTOMIZE_CLIENT_ERRORS", c.Tokens.CustomizeClientErrors)
	}

	// Logging configuration overrides
	c.Logging.Level = GetEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnvString("LOG_FORMAT", c.Logging.Format)
	if os.Getenv("ENABLE_AUDIT_LOGGING") != "" {
		c.Logging.EnableAudit = GetEnvBool("ENABLE_AUDIT_LOGGING", c.Logging.EnableAudit)
	}

	// Database configuration overrides
	c.Database.Type = GetEnvString("DATABASE_TYPE", c.Database.Type)
	c.Database.Path = GetEnvString("DATABASE_PATH", c.Database.Path)
	c.Database.URL = GetEnvString("DATABASE_URL", c.Database.URL)
	c.Database.RedisURL = GetEnvString("REDIS_URL", c.Database.RedisURL)

	// Events
	c.Events.Sink = GetEnvString("EVENTS_SINK", c.Events.Sink)
	c.Events.AMQPURL = GetEnvString("AMQP_URL", c.Events.AMQPURL)

	if os.Getenv("RATE_LIMIT_ENABLED") != "" {
		c.RateLimit.Enabled = GetEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	}
}

// GetEnvInt gets an environment variable as integer with default
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool gets an environment variable as boolean with default
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvString gets an environment variable as string with default
func GetEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
