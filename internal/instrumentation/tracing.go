// Package instrumentation holds the tracing helpers shared by the token
// endpoints. Spans never carry token values or secrets, only metadata.
package instrumentation

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span
const TracerName = "oauth2-tokenserver"

// Span attribute keys
const (
	AttrClientID    = "oauth.client_id"
	AttrResource    = "oauth.api_resource"
	AttrUserID      = "oauth.user_id"
	AttrScope       = "oauth.scope"
	AttrGrantType   = "oauth.grant_type"
	AttrTokenType   = "oauth.token_type" //nolint:gosec // the kind of token, never its value
	AttrActive      = "oauth.token.active"
	AttrError       = "oauth.error"
	AttrStorageOp   = "storage.operation"
	AttrHookOutcome = "oauth.response_hook"
	AttrRevoked     = "oauth.token.revoked"
)

// Tracer returns the tracer from the global provider. Without a configured
// provider spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetOAuthError marks the span with an OAuth error code
func SetOAuthError(span trace.Span, code string) {
	if span != nil {
		span.SetAttributes(attribute.String(AttrError, code))
		span.SetStatus(codes.Error, code)
	}
}

// AddOAuthFlowAttributes adds common OAuth flow attributes to a span (nil-safe)
func AddOAuthFlowAttributes(span trace.Span, clientID, grantType, scope string) {
	if span == nil {
		return
	}
	if clientID != "" {
		span.SetAttributes(attribute.String(AttrClientID, clientID))
	}
	if grantType != "" {
		span.SetAttributes(attribute.String(AttrGrantType, grantType))
	}
	if scope != "" {
		span.SetAttributes(attribute.String(AttrScope, scope))
	}
}
