// Package flows validates token requests per grant type. Each grant type has
// a Validator; the Registry applies the checks common to every grant around it.
package flows

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/pkg/config"

	"github.com/ory/fosite"
	"github.com/sirupsen/logrus"
)

// Validator checks the grant-specific part of a token request. Rejections are
// returned as grant errors (models.NewGrantError); any other error is treated
// as an internal failure.
type Validator interface {
	Validate(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error)
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error)

// Validate calls f
func (f ValidatorFunc) Validate(ctx context.Context, req *models.GrantRequest) (*models.GrantOutcome, error) {
	return f(ctx, req)
}

// ScopeInheritor is implemented by validators whose grant carries the scopes
// of an earlier grant. When such a request names no scope, the registry skips
// the empty scope policy and the validator supplies the inherited scopes,
// which are then checked against what the client may still request.
type ScopeInheritor interface {
	InheritsScopes() bool
}

// Registry dispatches token requests to the validator of their grant type
type Registry struct {
	validators       map[string]Validator
	catalog          *catalog.Catalog
	emptyScopePolicy string
	log              *logrus.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(cat *catalog.Catalog, emptyScopePolicy string, log *logrus.Logger) *Registry {
	if emptyScopePolicy == "" {
		emptyScopePolicy = config.EmptyScopeAllowed
	}
	return &Registry{
		validators:       make(map[string]Validator),
		catalog:          cat,
		emptyScopePolicy: emptyScopePolicy,
		log:              log,
	}
}

// Register binds a validator to a grant type. A grant type can be registered once.
func (r *Registry) Register(grantType string, v Validator) error {
	if grantType == "" {
		return fmt.Errorf("grant type is required")
	}
	if v == nil {
		return fmt.Errorf("validator for %s is nil", grantType)
	}
	if _, exists := r.validators[grantType]; exists {
		return fmt.Errorf("grant type %s is already registered", grantType)
	}
	r.validators[grantType] = v
	r.log.Debugf("🔧 Registered grant type: %s", grantType)
	return nil
}

// GrantTypes returns the registered grant types, sorted
func (r *Registry) GrantTypes() []string {
	out := make([]string, 0, len(r.validators))
	for gt := range r.validators {
		out = append(out, gt)
	}
	sort.Strings(out)
	return out
}

// Validate runs a token request from an authenticated client through the
// grant type checks, scope resolution and the grant's validator.
func (r *Registry) Validate(ctx context.Context, client *models.Client, req *models.GrantRequest) (*models.GrantOutcome, error) {
	req.Client = client

	v, ok := r.validators[req.GrantType]
	if !ok {
		return nil, models.NewGrantError(models.ErrorUnsupportedGrantType, fmt.Sprintf("Grant type %q is not supported", req.GrantType))
	}

	if !client.AllowsGrantType(req.GrantType) {
		return nil, models.NewGrantError(models.ErrorUnauthorizedClient, fmt.Sprintf("Client is not allowed to use grant type %q", req.GrantType))
	}

	inherit := len(req.RequestedScopes) == 0 && inheritsScopes(v)
	var (
		resolved  fosite.Arguments
		defaulted bool
	)
	if !inherit {
		var err error
		resolved, defaulted, err = r.resolveScopes(client, req.RequestedScopes)
		if err != nil {
			return nil, err
		}
		req.RequestedScopes = resolved
	}

	outcome, err := v.Validate(ctx, req)
	if err != nil {
		if _, isGrantErr := models.AsGrantError(err); isGrantErr {
			r.log.Debugf("❌ Grant %s rejected for client %s: %v", req.GrantType, client.GetID(), err)
			return nil, err
		}
		return nil, fmt.Errorf("validator for %s failed: %w", req.GrantType, err)
	}
	if outcome == nil {
		return nil, fmt.Errorf("validator for %s returned no outcome: %w", req.GrantType, models.ErrServer)
	}

	if len(outcome.AuthMethods) == 0 {
		return nil, fmt.Errorf("validator for %s returned no authentication method: %w", req.GrantType, models.ErrServer)
	}

	if inherit {
		scopes, err := r.stillPermitted(client, outcome.Scopes)
		if err != nil {
			return nil, err
		}
		outcome.Scopes = scopes
		defaulted = true
	} else {
		if outcome.Scopes == nil {
			outcome.Scopes = resolved
		}
		for _, scope := range outcome.Scopes {
			if !resolved.Has(scope) {
				return nil, fmt.Errorf("validator for %s granted scope %q outside the request: %w", req.GrantType, scope, models.ErrServer)
			}
		}
	}

	if !outcome.HasSubject() {
		scopes, err := r.dropSubjectScopes(outcome.Scopes, defaulted)
		if err != nil {
			return nil, err
		}
		outcome.Scopes = scopes
	}

	return outcome, nil
}

func inheritsScopes(v Validator) bool {
	si, ok := v.(ScopeInheritor)
	return ok && si.InheritsScopes()
}

// stillPermitted keeps the inherited scopes the client is still allowed to
// request. Scopes withdrawn from the client since the original grant are dropped.
func (r *Registry) stillPermitted(client *models.Client, inherited fosite.Arguments) (fosite.Arguments, error) {
	var scopes fosite.Arguments
	for _, scope := range inherited {
		if scopes.Has(scope) {
			continue
		}
		if scope == catalog.ScopeOfflineAccess {
			if client.AllowOfflineAccess {
				scopes = append(scopes, scope)
			}
			continue
		}
		if r.catalog.Known(scope) && client.Scopes.Has(scope) {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return nil, models.NewGrantError(models.ErrorInvalidScope, "None of the originally granted scopes is still allowed")
	}
	return scopes, nil
}

// resolveScopes checks the requested scopes against the client and the
// catalog. An empty request resolves to the client's allowed scopes unless
// the policy rejects it.
func (r *Registry) resolveScopes(client *models.Client, requested fosite.Arguments) (fosite.Arguments, bool, error) {
	if len(requested) == 0 {
		if r.emptyScopePolicy == config.EmptyScopeReject {
			return nil, false, models.NewGrantError(models.ErrorInvalidScope, "No scope requested")
		}
		var scopes fosite.Arguments
		for _, scope := range client.Scopes {
			if r.catalog.Known(scope) && scope != catalog.ScopeOfflineAccess {
				scopes = append(scopes, scope)
			}
		}
		if client.AllowOfflineAccess {
			scopes = append(scopes, catalog.ScopeOfflineAccess)
		}
		if len(scopes) == 0 {
			return nil, true, models.NewGrantError(models.ErrorInvalidScope, "Client has no allowed scopes")
		}
		return scopes, true, nil
	}

	var scopes fosite.Arguments
	for _, scope := range requested {
		if scopes.Has(scope) {
			continue
		}
		if scope == catalog.ScopeOfflineAccess {
			if !client.AllowOfflineAccess {
				return nil, false, models.NewGrantError(models.ErrorInvalidScope, "Client is not allowed offline access")
			}
			scopes = append(scopes, scope)
			continue
		}
		if !r.catalog.Known(scope) || !client.Scopes.Has(scope) {
			return nil, false, models.NewGrantError(models.ErrorInvalidScope, fmt.Sprintf("Scope %q is not allowed", scope))
		}
		scopes = append(scopes, scope)
	}
	return scopes, false, nil
}

// dropSubjectScopes handles identity scopes and offline_access on a grant
// without a resource owner. Defaulted scopes are silently removed, explicitly
// requested ones are an error.
func (r *Registry) dropSubjectScopes(scopes fosite.Arguments, defaulted bool) (fosite.Arguments, error) {
	var kept fosite.Arguments
	var dropped []string
	for _, scope := range scopes {
		if r.catalog.IsIdentityScope(scope) || scope == catalog.ScopeOfflineAccess {
			dropped = append(dropped, scope)
			continue
		}
		kept = append(kept, scope)
	}
	if len(dropped) == 0 {
		return scopes, nil
	}
	if !defaulted {
		return nil, models.NewGrantError(models.ErrorInvalidScope, fmt.Sprintf("Scopes %s require a resource owner", strings.Join(dropped, " ")))
	}
	if len(kept) == 0 {
		return nil, models.NewGrantError(models.ErrorInvalidScope, "No resource scopes available for this grant")
	}
	return kept, nil
}
