package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"oauth2-tokenserver/internal/utils"
	"oauth2-tokenserver/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// JWT header types
const (
	TypeAccessToken   = "at+jwt"
	TypeIdentityToken = "JWT"
)

// Signer signs and verifies the server's JWTs
type Signer struct {
	issuer    string
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	keyID     string
}

// NewSigner builds a signer from the security configuration. RS256 without a
// key path uses an ephemeral key, so tokens do not survive a restart.
func NewSigner(cfg config.SecurityConfig, log *logrus.Logger) (*Signer, error) {
	switch cfg.SigningAlgorithm {
	case "HS256":
		return NewHMACSigner(cfg.Issuer, []byte(cfg.SigningKey), cfg.KeyID), nil
	case "RS256", "":
		var (
			key *rsa.PrivateKey
			err error
		)
		if cfg.SigningKeyPath != "" {
			key, err = utils.LoadRSAPrivateKey(cfg.SigningKeyPath)
		} else {
			log.Warn("⚠️ No signing_key_path configured, generating an ephemeral RSA key")
			key, err = utils.GenerateRSAKey()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to prepare RSA signing key: %w", err)
		}
		return NewRSASigner(cfg.Issuer, key, cfg.KeyID), nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.SigningAlgorithm)
	}
}

// NewHMACSigner signs with HS256
func NewHMACSigner(issuer string, secret []byte, keyID string) *Signer {
	if keyID == "" {
		keyID = utils.ComputeKIDFromSecret(secret)
	}
	return &Signer{
		issuer:    issuer,
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
		keyID:     keyID,
	}
}

// NewRSASigner signs with RS256
func NewRSASigner(issuer string, key *rsa.PrivateKey, keyID string) *Signer {
	if keyID == "" {
		keyID = utils.ComputeKIDFromPublicKey(&key.PublicKey)
	}
	return &Signer{
		issuer:    issuer,
		method:    jwt.SigningMethodRS256,
		signKey:   key,
		verifyKey: &key.PublicKey,
		keyID:     keyID,
	}
}

// Issuer returns the iss value this signer accepts
func (s *Signer) Issuer() string {
	return s.issuer
}

// Sign produces a compact JWS with the given typ header
func (s *Signer) Sign(claims map[string]interface{}, typ string) (string, error) {
	token := jwt.NewWithClaims(s.method, jwt.MapClaims(claims))
	token.Header["typ"] = typ
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and time claims and returns the payload
func (s *Signer) Verify(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.verifyKey, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// LooksLikeJWT reports whether token has the three-segment JWS shape
func LooksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
