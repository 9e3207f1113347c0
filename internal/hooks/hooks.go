// Package hooks lets deployments add fields to token responses. A hook can
// add new top-level fields but never change the standard ones.
package hooks

import (
	"context"
	"fmt"
	"time"

	"oauth2-tokenserver/internal/models"

	"github.com/sirupsen/logrus"
)

// ResponseContext describes the request a response is being built for.
// Client and Outcome are nil when the request failed before they were known.
type ResponseContext struct {
	ClientID  string
	GrantType string
	Client    *models.Client
	Outcome   *models.GrantOutcome
	// Response is a copy of the base response; changing it has no effect
	Response models.TokenResponse
}

// Succeeded reports whether the base response carries tokens
func (rc *ResponseContext) Succeeded() bool {
	return !rc.Response.IsError()
}

// Hook returns extra fields for a token response
type Hook interface {
	Customize(ctx context.Context, rc *ResponseContext) (map[string]any, error)
}

// NoCustomization leaves responses untouched
type NoCustomization struct{}

// Customize returns nothing
func (NoCustomization) Customize(ctx context.Context, rc *ResponseContext) (map[string]any, error) {
	return nil, nil
}

// HookFunc adapts a function to Hook
type HookFunc func(ctx context.Context, rc *ResponseContext) (map[string]any, error)

// Customize calls f
func (f HookFunc) Customize(ctx context.Context, rc *ResponseContext) (map[string]any, error) {
	return f(ctx, rc)
}

// StaticFields adds the same business data to every response. Each call gets
// its own copy so callers cannot alter the configured values.
type StaticFields map[string]any

// Customize returns a deep copy of the fields
func (s StaticFields) Customize(ctx context.Context, rc *ResponseContext) (map[string]any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return deepCopyMap(s), nil
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopyMap(typed)
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			out[fmt.Sprint(k)] = deepCopyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = deepCopyValue(inner)
		}
		return out
	default:
		return v
	}
}

// Runner executes a hook within a time limit. A hook that fails, panics or
// runs out of time leaves the response as it was.
type Runner struct {
	Hook      Hook
	Timeout   time.Duration
	Log       *logrus.Logger
	OnFailure func(reason string)
}

// NewRunner wraps hook; a nil hook means NoCustomization
func NewRunner(hook Hook, timeout time.Duration, log *logrus.Logger) *Runner {
	if hook == nil {
		hook = NoCustomization{}
	}
	return &Runner{Hook: hook, Timeout: timeout, Log: log}
}

type hookResult struct {
	fields map[string]any
	err    error
}

// Apply runs the hook and merges its fields into resp. It returns false when
// the hook failed.
func (r *Runner) Apply(ctx context.Context, rc *ResponseContext, resp *models.TokenResponse) bool {
	if _, none := r.Hook.(NoCustomization); none {
		return true
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	rc.Response = *resp
	rc.Response.Custom = nil

	done := make(chan hookResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- hookResult{err: fmt.Errorf("hook panicked: %v", p)}
			}
		}()
		fields, err := r.Hook.Customize(ctx, rc)
		done <- hookResult{fields: fields, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.fail("error", fmt.Sprintf("❌ Response customization failed for %s: %v", rc.ClientID, res.err))
			return false
		}
		resp.Merge(res.fields)
		return true
	case <-ctx.Done():
		r.fail("timeout", fmt.Sprintf("⏱️ Response customization for %s did not finish in %s", rc.ClientID, r.Timeout))
		return false
	}
}

func (r *Runner) fail(reason, message string) {
	r.Log.Warn(message)
	if r.OnFailure != nil {
		r.OnFailure(reason)
	}
}
