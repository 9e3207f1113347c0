package models

import (
	"encoding/json"
	"fmt"
)

// TokenTypeBearer is the token_type of every issued access token
const TokenTypeBearer = "Bearer"

// reservedResponseFields can never be set or removed by response customization
var reservedResponseFields = map[string]struct{}{
	"access_token":      {},
	"token_type":        {},
	"expires_in":        {},
	"id_token":          {},
	"refresh_token":     {},
	"scope":             {},
	"error":             {},
	"error_description": {},
	"error_uri":         {},
}

// IsReservedResponseField reports whether name is a standard token response field
func IsReservedResponseField(name string) bool {
	_, ok := reservedResponseFields[name]
	return ok
}

// TokenResponse is the body of a token endpoint response. Custom holds
// additional fields merged in by response customization.
type TokenResponse struct {
	AccessToken      string         `json:"access_token,omitempty"`
	TokenType        string         `json:"token_type,omitempty"`
	ExpiresIn        int64          `json:"expires_in"`
	IdentityToken    string         `json:"id_token,omitempty"`
	RefreshToken     string         `json:"refresh_token,omitempty"`
	Scope            string         `json:"scope,omitempty"`
	Error            string         `json:"error,omitempty"`
	ErrorDescription string         `json:"error_description,omitempty"`
	Custom           map[string]any `json:"-"`
}

// NewErrorResponse builds the body for a grant-level failure: no tokens, no
// token_type and expires_in of zero.
func NewErrorResponse(code, description string) *TokenResponse {
	return &TokenResponse{Error: code, ErrorDescription: description}
}

// IsError reports whether the response carries an OAuth error
func (r *TokenResponse) IsError() bool {
	return r.Error != ""
}

// Merge adds custom fields, skipping reserved names
func (r *TokenResponse) Merge(fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	if r.Custom == nil {
		r.Custom = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if IsReservedResponseField(k) {
			continue
		}
		r.Custom[k] = v
	}
}

// MarshalJSON writes the standard fields followed by the custom fields
func (r TokenResponse) MarshalJSON() ([]byte, error) {
	type plain TokenResponse
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Custom) == 0 {
		return base, nil
	}

	out := make(map[string]json.RawMessage, len(r.Custom)+8)
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for k, v := range r.Custom {
		if IsReservedResponseField(k) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal custom field %q: %w", k, err)
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

// IntrospectionResult is the answer to an introspection request. Claims are
// only present when the token is active.
type IntrospectionResult struct {
	Active bool
	Claims map[string]any
}

// Inactive is the result for unknown, expired or invisible tokens
func Inactive() *IntrospectionResult {
	return &IntrospectionResult{Active: false}
}

// MarshalJSON flattens the claims next to the active flag
func (r IntrospectionResult) MarshalJSON() ([]byte, error) {
	if !r.Active {
		return []byte(`{"active":false}`), nil
	}
	out := make(map[string]any, len(r.Claims)+1)
	for k, v := range r.Claims {
		out[k] = v
	}
	out["active"] = true
	return json.Marshal(out)
}
