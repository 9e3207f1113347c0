package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store"
	"oauth2-tokenserver/internal/store/types"

	"github.com/ory/fosite"
	"github.com/sirupsen/logrus"
)

// Authentication method references
const (
	AuthMethodPassword          = "password"
	AuthMethodClientCredentials = "client_credentials"
	AuthMethodCustom            = "custom"
)

// UserLookup resolves resource owners by username
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// PasswordValidator implements the resource owner password credentials grant
type PasswordValidator struct {
	Users            UserLookup
	Hasher           fosite.Hasher
	IdentityProvider string
	Log              *logrus.Logger
	now              func() time.Time
}

// NewPasswordValidator compares passwords with bcrypt
func NewPasswordValidator(users UserLookup, hashCost int, idp string, log *logrus.Logger) *PasswordValidator {
	return &PasswordValidator{
		Users:            users,
		Hasher:           &fosite.BCrypt{Config: &fosite.Config{HashCost: hashCost}},
		IdentityProvider: idp,
		Log:              log,
		now:              time.Now,
	}
}

// Validate checks username and password. Every rejection looks the same to the caller.
func (v *PasswordValidator) Validate(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error) {
	username := req.Param("username")
	password := req.Param("password")
	if username == "" || password == "" {
		return nil, models.InvalidGrant(models.DescriptionInvalidCredential)
	}

	user, err := v.Users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		v.Log.Debugf("🔍 Unknown user: %s", username)
		return nil, models.InvalidGrant(models.DescriptionInvalidCredential)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %v: %w", err, models.ErrUnavailable)
	}

	if !user.Enabled {
		v.Log.Debugf("🔍 Disabled user: %s", username)
		return nil, models.InvalidGrant(models.DescriptionInvalidCredential)
	}

	if err := v.Hasher.Compare(ctx, user.PasswordHash, []byte(password)); err != nil {
		v.Log.Debugf("❌ Invalid password for user: %s", username)
		return nil, models.InvalidGrant(models.DescriptionInvalidCredential)
	}

	return &models.GrantOutcome{
		Subject:          user.Subject,
		AuthMethods:      []string{AuthMethodPassword},
		AuthTime:         v.now(),
		IdentityProvider: v.IdentityProvider,
		Claims:           user.Claims,
	}, nil
}

// ClientCredentialsValidator implements the client credentials grant. The
// authenticated client is the only party; there is no subject.
type ClientCredentialsValidator struct{}

// Validate always succeeds; client authentication already happened
func (ClientCredentialsValidator) Validate(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error) {
	return &models.GrantOutcome{
		AuthMethods: []string{AuthMethodClientCredentials},
	}, nil
}

// OutcomeValidator is an extension grant driven by the "outcome" request
// parameter. outcome=succeed authenticates Subject, anything else fails.
type OutcomeValidator struct {
	Subject          string
	AuthMethod       string
	IdentityProvider string
	now              func() time.Time
}

// NewOutcomeValidator creates the extension validator with its default subject
func NewOutcomeValidator(idp string) *OutcomeValidator {
	return &OutcomeValidator{
		Subject:          "bob",
		AuthMethod:       AuthMethodCustom,
		IdentityProvider: idp,
		now:              time.Now,
	}
}

// Validate reads the outcome parameter
func (v *OutcomeValidator) Validate(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error) {
	if req.Param("outcome") != "succeed" {
		return nil, models.InvalidGrant(models.DescriptionInvalidCredential)
	}
	return &models.GrantOutcome{
		Subject:          v.Subject,
		AuthMethods:      []string{v.AuthMethod},
		AuthTime:         v.now(),
		IdentityProvider: v.IdentityProvider,
	}, nil
}

// RefreshTokenValidator exchanges a refresh token for a new access token. The
// subject and authentication details of the original grant carry over.
type RefreshTokenValidator struct {
	Tokens types.TokenStore
	Log    *logrus.Logger
	now    func() time.Time
}

// NewRefreshTokenValidator reads refresh tokens from tokens
func NewRefreshTokenValidator(tokens types.TokenStore, log *logrus.Logger) *RefreshTokenValidator {
	return &RefreshTokenValidator{Tokens: tokens, Log: log, now: time.Now}
}

// InheritsScopes makes a refresh request without scope receive the scopes of
// the original grant (RFC 6749 section 6).
func (v *RefreshTokenValidator) InheritsScopes() bool { return true }

// Validate checks the refresh token belongs to the client and narrows the scopes
func (v *RefreshTokenValidator) Validate(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error) {
	handle := req.Param("refresh_token")
	if handle == "" {
		return nil, models.InvalidGrant("refresh_token is required")
	}

	record, err := v.Tokens.GetToken(ctx, handle)
	if errors.Is(err, types.ErrTokenNotFound) {
		return nil, models.InvalidGrant("Invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %v: %w", err, models.ErrUnavailable)
	}

	if record.Type != models.TokenTypeRefresh || !record.IsActiveAt(v.now()) {
		return nil, models.InvalidGrant("Invalid refresh token")
	}
	if record.ClientID != req.Client.GetID() {
		v.Log.Warnf("⚠️ Client %s presented a refresh token of client %s", req.Client.GetID(), record.ClientID)
		return nil, models.InvalidGrant("Invalid refresh token")
	}

	original := fosite.Arguments(record.Scopes)
	scopes := append(fosite.Arguments(nil), original...)
	if len(req.RequestedScopes) > 0 {
		scopes = nil
		for _, scope := range req.RequestedScopes {
			if !original.Has(scope) {
				return nil, models.NewGrantError(models.ErrorInvalidScope, fmt.Sprintf("Scope %q was not granted originally", scope))
			}
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return nil, models.NewGrantError(models.ErrorInvalidScope, "No scopes left to grant")
	}

	return &models.GrantOutcome{
		Subject:          record.Subject,
		AuthMethods:      record.AuthMethods,
		Scopes:           scopes,
		AuthTime:         record.AuthTime,
		IdentityProvider: record.IdentityProvider,
		Claims:           record.Claims,
		RefreshHandle:    handle,
	}, nil
}
