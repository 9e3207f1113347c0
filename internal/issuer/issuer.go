// Package issuer runs the token endpoint: client authentication, grant
// validation, claims assembly, signing, persistence and response customization,
// always in that order.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"oauth2-tokenserver/internal/auth"
	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/claims"
	"oauth2-tokenserver/internal/events"
	"oauth2-tokenserver/internal/flows"
	"oauth2-tokenserver/internal/hooks"
	"oauth2-tokenserver/internal/instrumentation"
	"oauth2-tokenserver/internal/metrics"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"
	"oauth2-tokenserver/internal/utils"

	"github.com/ory/fosite"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TokenRequest is a parsed token endpoint request
type TokenRequest struct {
	Credentials auth.Credentials
	GrantType   string
	Scopes      fosite.Arguments
	Parameters  map[string]string

	// CredentialsErr is set when the caller's credentials could not be read.
	// The request then fails client authentication.
	CredentialsErr error
}

// Issuer issues tokens
type Issuer struct {
	Authenticator *auth.Authenticator
	Registry      *flows.Registry
	Assembler     *claims.Assembler
	Signer        *auth.Signer
	Tokens        types.TokenStore
	Hook          *hooks.Runner
	Events        *events.Raiser
	Metrics       *metrics.MetricsCollector

	// CustomizeClientErrors runs the hook on client authentication failures too
	CustomizeClientErrors bool
	StoreTimeout          time.Duration
	RefreshTokenLifetime  time.Duration

	Log    *logrus.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Options holds the issuance settings that do not come with a collaborator
type Options struct {
	CustomizeClientErrors bool
	StoreTimeout          time.Duration
	RefreshTokenLifetime  time.Duration
}

// New wires an issuer. metricsCollector may be nil.
func New(authenticator *auth.Authenticator, registry *flows.Registry, assembler *claims.Assembler, signer *auth.Signer,
	tokens types.TokenStore, hook *hooks.Runner, raiser *events.Raiser, metricsCollector *metrics.MetricsCollector,
	opts Options, log *logrus.Logger) *Issuer {
	if metricsCollector != nil && hook.OnFailure == nil {
		hook.OnFailure = metricsCollector.RecordHookFailure
	}
	return &Issuer{
		Authenticator:         authenticator,
		Registry:              registry,
		Assembler:             assembler,
		Signer:                signer,
		Tokens:                tokens,
		Hook:                  hook,
		Events:                raiser,
		Metrics:               metricsCollector,
		CustomizeClientErrors: opts.CustomizeClientErrors,
		StoreTimeout:          opts.StoreTimeout,
		RefreshTokenLifetime:  opts.RefreshTokenLifetime,
		Log:                   log,
		tracer:                instrumentation.Tracer(),
		now:                   time.Now,
	}
}

// Issue processes a token request and returns the response body with its
// HTTP status. Grant failures are returned with status 200.
func (i *Issuer) Issue(ctx context.Context, req *TokenRequest) (*models.TokenResponse, int) {
	start := i.now()
	ctx, span := i.tracer.Start(ctx, "oauth.token.issue")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.Credentials.ID, req.GrantType, strings.Join(req.Scopes, " "))

	if err := req.CredentialsErr; err != nil {
		return i.fail(ctx, span, req, nil, err, i.CustomizeClientErrors && errors.Is(err, models.ErrUnauthorizedCaller))
	}

	principal, err := i.Authenticator.Authenticate(ctx, req.Credentials)
	if err != nil {
		return i.fail(ctx, span, req, nil, err, i.CustomizeClientErrors && errors.Is(err, models.ErrUnauthorizedCaller))
	}
	client, ok := principal.(*models.Client)
	if !ok {
		return i.fail(ctx, span, req, nil, fmt.Errorf("principal %s is not a client: %w", principal.GetID(), models.ErrServer), false)
	}

	if req.GrantType == "" {
		return i.fail(ctx, span, req, client, models.NewGrantError(models.ErrorInvalidRequest, "grant_type is required"), true)
	}

	outcome, err := i.Registry.Validate(ctx, client, &models.GrantRequest{
		GrantType:       req.GrantType,
		RequestedScopes: req.Scopes,
		Parameters:      req.Parameters,
	})
	if err != nil {
		_, isGrantErr := models.AsGrantError(err)
		return i.fail(ctx, span, req, client, err, isGrantErr)
	}

	resp, err := i.issueTokens(ctx, client, req.GrantType, outcome)
	if err != nil {
		return i.fail(ctx, span, req, client, err, false)
	}

	i.Hook.Apply(ctx, &hooks.ResponseContext{
		ClientID:  client.GetID(),
		GrantType: req.GrantType,
		Client:    client,
		Outcome:   outcome,
	}, resp)

	ev := events.New(events.TokenIssuedSuccess)
	ev.ClientID = client.GetID()
	ev.GrantType = req.GrantType
	ev.Subject = outcome.Subject
	ev.Scopes = outcome.Scopes
	ev.TokenType = string(client.TokenType())
	i.Events.Raise(ctx, ev)

	if i.Metrics != nil {
		i.Metrics.RecordTokenRequest(req.GrantType, client.GetID(), "success")
		i.Metrics.RecordIssuance(req.GrantType, i.now().Sub(start))
	}

	span.SetAttributes(attribute.String(instrumentation.AttrTokenType, string(client.TokenType())))
	instrumentation.SetSpanSuccess(span)
	i.Log.Debugf("✅ Issued %s access token to %s via %s", client.TokenType(), client.GetID(), req.GrantType)
	return resp, http.StatusOK
}

// fail turns err into an OAuth error response. customize selects whether the
// response hook runs for this failure.
func (i *Issuer) fail(ctx context.Context, span trace.Span, req *TokenRequest, client *models.Client, err error, customize bool) (*models.TokenResponse, int) {
	rfcErr, status := models.OAuthErrorFor(err)
	resp := models.NewErrorResponse(rfcErr.ErrorField, rfcErr.DescriptionField)

	switch status {
	case http.StatusOK, http.StatusUnauthorized:
		i.Log.Debugf("❌ Token request from %q failed: %v", req.Credentials.ID, err)
	default:
		i.Log.Errorf("❌ Token request from %q failed: %v", req.Credentials.ID, err)
	}

	if customize {
		i.Hook.Apply(ctx, &hooks.ResponseContext{
			ClientID:  req.Credentials.ID,
			GrantType: req.GrantType,
			Client:    client,
		}, resp)
	}

	ev := events.New(events.TokenIssuedFailure)
	ev.ClientID = req.Credentials.ID
	ev.GrantType = req.GrantType
	ev.Scopes = req.Scopes
	ev.Error = rfcErr.ErrorField
	ev.ErrorDescription = rfcErr.DescriptionField
	i.Events.Raise(ctx, ev)

	if i.Metrics != nil {
		i.Metrics.RecordTokenRequest(req.GrantType, req.Credentials.ID, rfcErr.ErrorField)
		i.Metrics.RecordError(rfcErr.ErrorField, "token")
	}

	instrumentation.SetOAuthError(span, rfcErr.ErrorField)
	return resp, status
}

// issueTokens builds, signs and stores the tokens of a validated grant
func (i *Issuer) issueTokens(ctx context.Context, client *models.Client, grantType string, outcome *models.GrantOutcome) (*models.TokenResponse, error) {
	now := i.now()
	atClaims := i.Assembler.Assemble(client, outcome, now)

	var (
		accessToken string
		recordKey   string
		err         error
	)
	switch client.TokenType() {
	case models.AccessTokenReference:
		accessToken, err = utils.GenerateHandle()
		if err != nil {
			return nil, fmt.Errorf("failed to generate reference handle: %v: %w", err, models.ErrServer)
		}
		atClaims.JTI = accessToken
		recordKey = accessToken
	default:
		accessToken, err = i.Signer.Sign(atClaims.JWT(), auth.TypeAccessToken)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, models.ErrServer)
		}
		recordKey = atClaims.JTI
	}
	records := []*models.IssuedToken{atClaims.Record(recordKey, i.Assembler.Catalog)}

	resp := &models.TokenResponse{
		AccessToken: accessToken,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int64(i.Assembler.Lifetime(client) / time.Second),
		Scope:       strings.Join(outcome.Scopes, " "),
	}

	if client.AllowIdentityToken && outcome.HasSubject() && outcome.Scopes.Has(catalog.ScopeOpenID) {
		resp.IdentityToken, err = i.Signer.Sign(i.Assembler.AssembleIdentity(client, outcome, now), auth.TypeIdentityToken)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, models.ErrServer)
		}
	}

	if client.AllowOfflineAccess && outcome.HasSubject() && outcome.Scopes.Has(catalog.ScopeOfflineAccess) {
		resp.RefreshToken = outcome.RefreshHandle
		if resp.RefreshToken == "" {
			handle, err := utils.GenerateHandle()
			if err != nil {
				return nil, fmt.Errorf("failed to generate refresh handle: %v: %w", err, models.ErrServer)
			}
			records = append(records, i.Assembler.RefreshRecord(handle, client, outcome, now, i.RefreshTokenLifetime))
			resp.RefreshToken = handle
		}
	}

	if err := i.persist(ctx, records); err != nil {
		return nil, err
	}

	if i.Metrics != nil {
		i.Metrics.RecordTokenIssued(string(models.TokenTypeAccess), grantType)
		if len(records) > 1 && resp.RefreshToken != "" {
			i.Metrics.RecordTokenIssued(string(models.TokenTypeRefresh), grantType)
		}
	}
	return resp, nil
}

// persist writes every record or none. When the request is cancelled after
// the writes, the records are removed again so no unreported token stays valid.
func (i *Issuer) persist(ctx context.Context, records []*models.IssuedToken) error {
	storeCtx := ctx
	if i.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, i.StoreTimeout)
		defer cancel()
	}

	written := make([]string, 0, len(records))
	for _, record := range records {
		if err := i.Tokens.CreateToken(storeCtx, record); err != nil {
			i.discard(ctx, written)
			if errors.Is(err, types.ErrTokenExists) {
				return fmt.Errorf("token key collision: %w", models.ErrServer)
			}
			return fmt.Errorf("failed to store %s: %v: %w", record.Type, err, models.ErrUnavailable)
		}
		written = append(written, record.Key)
	}

	if err := ctx.Err(); err != nil {
		i.Log.Warnf("⚠️ Request cancelled after issuance, discarding %d token(s)", len(written))
		i.discard(ctx, written)
		return fmt.Errorf("request cancelled: %v: %w", err, models.ErrUnavailable)
	}
	return nil
}

func (i *Issuer) discard(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	timeout := i.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	for _, key := range keys {
		if err := i.Tokens.DeleteToken(delCtx, key); err != nil {
			i.Log.Errorf("❌ Failed to discard token record: %v", err)
		}
	}
}
