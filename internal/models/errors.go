package models

import (
	"errors"
	"net/http"

	"github.com/ory/fosite"
)

// OAuth error codes
const (
	ErrorInvalidRequest         = "invalid_request"
	ErrorInvalidClient          = "invalid_client"
	ErrorInvalidGrant           = "invalid_grant"
	ErrorInvalidScope           = "invalid_scope"
	ErrorUnauthorizedClient     = "unauthorized_client"
	ErrorUnsupportedGrantType   = "unsupported_grant_type"
	ErrorTemporarilyUnavailable = "temporarily_unavailable"
	ErrorServerError            = "server_error"
)

// DescriptionInvalidCredential is returned when grant-specific credentials are rejected
const DescriptionInvalidCredential = "invalid_credential"

var (
	// ErrUnauthorizedCaller means the calling client or resource failed authentication
	ErrUnauthorizedCaller = errors.New("unauthorized caller")
	// ErrMalformedRequest means required request parameters are missing or unreadable
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnsupportedMediaType means the request body is not form encoded
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrUnavailable means a collaborator timed out or failed
	ErrUnavailable = errors.New("temporarily unavailable")
	// ErrServer is an unexpected internal failure
	ErrServer = errors.New("server error")
)

// NewGrantError builds a grant-level OAuth error. Grant errors are reported in the
// response body; the HTTP status stays 200.
func NewGrantError(code, description string) *fosite.RFC6749Error {
	return &fosite.RFC6749Error{
		ErrorField:       code,
		DescriptionField: description,
		CodeField:        http.StatusBadRequest,
	}
}

// InvalidGrant is the failure for rejected grant credentials
func InvalidGrant(description string) *fosite.RFC6749Error {
	return NewGrantError(ErrorInvalidGrant, description)
}

// AsGrantError extracts a grant-level OAuth error from err
func AsGrantError(err error) (*fosite.RFC6749Error, bool) {
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		return rfcErr, true
	}
	return nil, false
}

// OAuthErrorFor classifies err into an OAuth error and the HTTP status to send it with.
// Anything unclassified is a server_error.
func OAuthErrorFor(err error) (*fosite.RFC6749Error, int) {
	switch {
	case errors.Is(err, ErrUnauthorizedCaller):
		return &fosite.RFC6749Error{ErrorField: ErrorInvalidClient, DescriptionField: "Client authentication failed", CodeField: http.StatusUnauthorized}, http.StatusUnauthorized
	case errors.Is(err, ErrMalformedRequest):
		return &fosite.RFC6749Error{ErrorField: ErrorInvalidRequest, DescriptionField: err.Error(), CodeField: http.StatusBadRequest}, http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedMediaType):
		return &fosite.RFC6749Error{ErrorField: ErrorInvalidRequest, DescriptionField: "Content type must be application/x-www-form-urlencoded", CodeField: http.StatusUnsupportedMediaType}, http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUnavailable):
		return &fosite.RFC6749Error{ErrorField: ErrorTemporarilyUnavailable, DescriptionField: "The server is temporarily unavailable", CodeField: http.StatusServiceUnavailable}, http.StatusServiceUnavailable
	}
	if rfcErr, ok := AsGrantError(err); ok {
		return rfcErr, http.StatusOK
	}
	return &fosite.RFC6749Error{ErrorField: ErrorServerError, DescriptionField: "An unexpected error occurred", CodeField: http.StatusInternalServerError}, http.StatusInternalServerError
}
