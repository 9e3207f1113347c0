package issuer

import (
	"context"
	"errors"
	"fmt"

	"oauth2-tokenserver/internal/auth"
	"oauth2-tokenserver/internal/events"
	"oauth2-tokenserver/internal/instrumentation"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"

	"go.opentelemetry.io/otel/attribute"
)

// Revoke deletes a token owned by the authenticated client (RFC 7009). Unknown,
// invalid or foreign tokens are not an error.
func (i *Issuer) Revoke(ctx context.Context, creds auth.Credentials, token, hint string) error {
	ctx, span := i.tracer.Start(ctx, "oauth.token.revoke")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, creds.ID, "", "")

	principal, err := i.Authenticator.Authenticate(ctx, creds)
	if err != nil {
		instrumentation.RecordError(span, err)
		return err
	}
	if token == "" {
		return fmt.Errorf("token is required: %w", models.ErrMalformedRequest)
	}

	key := token
	if auth.LooksLikeJWT(token) {
		payload, err := i.Signer.Verify(token)
		if err != nil {
			i.Log.Debugf("🔍 Revocation of an invalid JWT by %s ignored", creds.ID)
			return nil
		}
		jti, _ := payload["jti"].(string)
		if jti == "" {
			return nil
		}
		key = jti
	}

	storeCtx := ctx
	if i.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, i.StoreTimeout)
		defer cancel()
	}

	record, err := i.Tokens.GetToken(storeCtx, key)
	if errors.Is(err, types.ErrTokenNotFound) {
		i.recordRevocation(principal.GetID(), "unknown")
		return nil
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return fmt.Errorf("failed to load token: %v: %w", err, models.ErrUnavailable)
	}

	if record.ClientID != principal.GetID() {
		i.Log.Warnf("⚠️ Client %s tried to revoke a token of client %s", principal.GetID(), record.ClientID)
		i.recordRevocation(principal.GetID(), "foreign")
		return nil
	}
	if hint != "" && hint != string(record.Type) {
		i.Log.Debugf("🔍 token_type_hint %s does not match %s", hint, record.Type)
	}

	if err := i.Tokens.DeleteToken(storeCtx, key); err != nil {
		instrumentation.RecordError(span, err)
		return fmt.Errorf("failed to delete token: %v: %w", err, models.ErrUnavailable)
	}

	ev := events.New(events.TokenRevocationSuccess)
	ev.ClientID = principal.GetID()
	ev.Subject = record.Subject
	ev.TokenType = string(record.Type)
	i.Events.Raise(ctx, ev)

	i.recordRevocation(principal.GetID(), "revoked")
	span.SetAttributes(attribute.Bool(instrumentation.AttrRevoked, true))
	i.Log.Infof("🗑️ Revoked %s of client %s", record.Type, principal.GetID())
	return nil
}

func (i *Issuer) recordRevocation(clientID, status string) {
	if i.Metrics != nil {
		i.Metrics.RecordRevocation(clientID, status)
	}
}
