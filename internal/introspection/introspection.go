// Package introspection answers RFC 7662 requests from API resources. A
// resource only ever sees the scopes it owns; tokens carrying none of them
// are reported inactive.
package introspection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oauth2-tokenserver/internal/auth"
	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/claims"
	"oauth2-tokenserver/internal/events"
	"oauth2-tokenserver/internal/instrumentation"
	"oauth2-tokenserver/internal/metrics"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store"
	"oauth2-tokenserver/internal/store/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClientLookup resolves the client a token was issued to
type ClientLookup interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
}

// Service introspects tokens on behalf of authenticated resources
type Service struct {
	Authenticator *auth.Authenticator
	Clients       ClientLookup
	Catalog       *catalog.Catalog
	Signer        *auth.Signer
	Tokens        types.TokenStore
	Events        *events.Raiser
	Metrics       *metrics.MetricsCollector
	StoreTimeout  time.Duration
	Log           *logrus.Logger

	tracer trace.Tracer
	now    func() time.Time
}

// NewService wires an introspection service. authenticator must be backed by
// the resource registry; metricsCollector may be nil.
func NewService(authenticator *auth.Authenticator, clients ClientLookup, cat *catalog.Catalog, signer *auth.Signer,
	tokens types.TokenStore, raiser *events.Raiser, metricsCollector *metrics.MetricsCollector, storeTimeout time.Duration, log *logrus.Logger) *Service {
	return &Service{
		Authenticator: authenticator,
		Clients:       clients,
		Catalog:       cat,
		Signer:        signer,
		Tokens:        tokens,
		Events:        raiser,
		Metrics:       metricsCollector,
		StoreTimeout:  storeTimeout,
		Log:           log,
		tracer:        instrumentation.Tracer(),
		now:           time.Now,
	}
}

// Authenticate checks the calling resource's credentials
func (s *Service) Authenticate(ctx context.Context, creds auth.Credentials) (*models.Resource, error) {
	principal, err := s.Authenticator.Authenticate(ctx, creds)
	if err != nil {
		s.failed(ctx, creds.ID, err)
		return nil, err
	}
	resource, ok := principal.(*models.Resource)
	if !ok {
		return nil, fmt.Errorf("principal %s is not an API resource: %w", principal.GetID(), models.ErrServer)
	}
	return resource, nil
}

// Introspect resolves token for resource. Errors are only returned when the
// answer cannot be determined; every other case is an inactive result.
func (s *Service) Introspect(ctx context.Context, resource *models.Resource, token string) (*models.IntrospectionResult, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token.introspect")
	defer span.End()
	span.SetAttributes(attribute.String(instrumentation.AttrResource, resource.Name))

	result, reason, err := s.introspect(ctx, resource, token)
	if err != nil {
		instrumentation.RecordError(span, err)
		s.failed(ctx, resource.Name, err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool(instrumentation.AttrActive, result.Active))
	instrumentation.SetSpanSuccess(span)

	ev := events.New(events.TokenIntrospectionSuccess)
	ev.Resource = resource.Name
	ev.Active = &result.Active
	if result.Active {
		ev.ClientID, _ = result.Claims["client_id"].(string)
		ev.Subject, _ = result.Claims["sub"].(string)
	}
	s.Events.Raise(ctx, ev)

	status := "active"
	if !result.Active {
		status = "inactive"
		s.Log.Debugf("🔍 Token inactive for %s: %s", resource.Name, reason)
	}
	if s.Metrics != nil {
		s.Metrics.RecordIntrospectRequest(resource.Name, status)
	}
	return result, nil
}

func (s *Service) introspect(ctx context.Context, resource *models.Resource, token string) (*models.IntrospectionResult, string, error) {
	key := token
	if auth.LooksLikeJWT(token) {
		payload, err := s.Signer.Verify(token)
		if err != nil {
			return models.Inactive(), "invalid jwt", nil
		}
		jti, _ := payload["jti"].(string)
		if jti == "" {
			return models.Inactive(), "jwt without jti", nil
		}
		key = jti
	}

	storeCtx := ctx
	if s.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, s.StoreTimeout)
		defer cancel()
	}

	record, err := s.Tokens.GetToken(storeCtx, key)
	if errors.Is(err, types.ErrTokenNotFound) {
		return models.Inactive(), "unknown token", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load token: %v: %w", err, models.ErrUnavailable)
	}

	if record.Type != models.TokenTypeAccess {
		return models.Inactive(), "not an access token", nil
	}
	if !record.IsActiveAt(s.now()) {
		return models.Inactive(), "outside validity window", nil
	}

	client, err := s.Clients.GetClient(ctx, record.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Inactive(), "client no longer registered", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load client: %v: %w", err, models.ErrUnavailable)
	}
	if !client.IsEnabled() {
		return models.Inactive(), "client disabled", nil
	}

	visible := s.Catalog.Visible(resource.Name, record.Scopes)
	if len(visible) == 0 {
		return models.Inactive(), "no scope owned by resource", nil
	}

	return &models.IntrospectionResult{
		Active: true,
		Claims: claims.FromRecord(s.Signer.Issuer(), record).Introspection(visible),
	}, "", nil
}

func (s *Service) failed(ctx context.Context, resource string, err error) {
	rfcErr, _ := models.OAuthErrorFor(err)
	ev := events.New(events.TokenIntrospectionFailure)
	ev.Resource = resource
	ev.Error = rfcErr.ErrorField
	ev.ErrorDescription = err.Error()
	s.Events.Raise(ctx, ev)

	if s.Metrics != nil {
		s.Metrics.RecordIntrospectRequest(resource, rfcErr.ErrorField)
		s.Metrics.RecordError(rfcErr.ErrorField, "introspect")
	}
}
