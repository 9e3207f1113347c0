package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store"

	"github.com/ory/fosite"
	"github.com/sirupsen/logrus"
)

// Credentials are the id and secret presented by a caller
type Credentials struct {
	ID     string
	Secret string
}

// ExtractClientCredentials reads credentials from the Basic Authorization header
// or from the client_id/client_secret form fields. The form must already be parsed.
func ExtractClientCredentials(r *http.Request) (Credentials, error) {
	bodyID := r.PostForm.Get("client_id")
	bodySecret := r.PostForm.Get("client_secret")

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Basic") {
			payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
			if err != nil {
				return Credentials{}, errors.New("invalid basic auth encoding")
			}

			creds := strings.SplitN(string(payload), ":", 2)
			if len(creds) != 2 {
				return Credentials{}, errors.New("invalid basic auth format")
			}

			// RFC 6749 section 2.3.1: id and secret are form-urlencoded before encoding
			id, err := url.QueryUnescape(creds[0])
			if err != nil {
				return Credentials{}, errors.New("invalid basic auth client id")
			}
			secret, err := url.QueryUnescape(creds[1])
			if err != nil {
				return Credentials{}, errors.New("invalid basic auth client secret")
			}

			if bodyID != "" && bodyID != id {
				return Credentials{}, errors.New("client_id in body does not match authorization header")
			}
			return Credentials{ID: id, Secret: secret}, nil
		}
	}

	return Credentials{ID: bodyID, Secret: bodySecret}, nil
}

// PrincipalRegistry resolves callers by id. Unknown ids yield store.ErrNotFound.
type PrincipalRegistry interface {
	LookupPrincipal(ctx context.Context, id string) (models.Principal, error)
}

// Authenticator verifies shared-secret credentials against a registry.
// The same type authenticates clients at the token endpoint and resources at
// the introspection endpoint.
type Authenticator struct {
	Registry PrincipalRegistry
	Hasher   fosite.Hasher
	Timeout  time.Duration
	Log      *logrus.Logger
}

// NewAuthenticator builds an authenticator comparing secrets with bcrypt
func NewAuthenticator(registry PrincipalRegistry, hashCost int, timeout time.Duration, log *logrus.Logger) *Authenticator {
	return &Authenticator{
		Registry: registry,
		Hasher:   &fosite.BCrypt{Config: &fosite.Config{HashCost: hashCost}},
		Timeout:  timeout,
		Log:      log,
	}
}

type authResult struct {
	principal models.Principal
	err       error
}

// Authenticate returns the principal for creds. Every rejection wraps
// models.ErrUnauthorizedCaller; registry failures and timeouts wrap models.ErrUnavailable.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (models.Principal, error) {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	done := make(chan authResult, 1)
	go func() {
		p, err := a.authenticate(ctx, creds)
		done <- authResult{principal: p, err: err}
	}()

	select {
	case res := <-done:
		return res.principal, res.err
	case <-ctx.Done():
		a.Log.Warnf("⚠️ Authentication of %q did not finish in time", creds.ID)
		return nil, fmt.Errorf("authentication timed out: %w", models.ErrUnavailable)
	}
}

func (a *Authenticator) authenticate(ctx context.Context, creds Credentials) (models.Principal, error) {
	if creds.ID == "" {
		return nil, fmt.Errorf("%w: no credentials presented", models.ErrUnauthorizedCaller)
	}

	principal, err := a.Registry.LookupPrincipal(ctx, creds.ID)
	if errors.Is(err, store.ErrNotFound) {
		a.Log.Debugf("🔍 Unknown caller: %s", creds.ID)
		return nil, fmt.Errorf("%w: unknown caller %q", models.ErrUnauthorizedCaller, creds.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up caller: %v: %w", err, models.ErrUnavailable)
	}

	if !principal.IsEnabled() {
		a.Log.Debugf("🔍 Disabled caller: %s", creds.ID)
		return nil, fmt.Errorf("%w: caller %q is disabled", models.ErrUnauthorizedCaller, creds.ID)
	}

	if creds.Secret == "" {
		return nil, fmt.Errorf("%w: missing secret for %q", models.ErrUnauthorizedCaller, creds.ID)
	}

	for _, hash := range principal.GetHashedSecrets() {
		if err := a.Hasher.Compare(ctx, hash, []byte(creds.Secret)); err == nil {
			return principal, nil
		}
	}

	a.Log.Debugf("❌ Invalid secret for caller: %s", creds.ID)
	return nil, fmt.Errorf("%w: invalid secret for %q", models.ErrUnauthorizedCaller, creds.ID)
}
