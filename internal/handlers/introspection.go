package handlers

import (
	"fmt"
	"net/http"

	"oauth2-tokenserver/internal/introspection"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/utils"

	"github.com/sirupsen/logrus"
)

// IntrospectionHandler manages token introspection requests
type IntrospectionHandler struct {
	Service *introspection.Service
	Log     *logrus.Logger
}

// NewIntrospectionHandler creates a new introspection handler
func NewIntrospectionHandler(service *introspection.Service, log *logrus.Logger) *IntrospectionHandler {
	return &IntrospectionHandler{Service: service, Log: log}
}

// ServeHTTP handles token introspection requests (RFC 7662). The checks run
// in a fixed order: media type, resource authentication, then the token parameter.
func (h *IntrospectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Log.Debugf("🔍 Introspection request: Method=%s, Content-Type=%s", r.Method, r.Header.Get("Content-Type"))

	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if !isFormEncoded(r) {
		writeOAuthError(w, models.ErrUnsupportedMediaType, h.Log)
		return
	}

	creds, err := readCredentials(r)
	if err != nil {
		writeOAuthError(w, err, h.Log)
		return
	}

	resource, err := h.Service.Authenticate(r.Context(), creds)
	if err != nil {
		h.Log.Debugf("❌ Introspection caller rejected: %v", err)
		writeOAuthError(w, err, h.Log)
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		writeOAuthError(w, fmt.Errorf("token is required: %w", models.ErrMalformedRequest), h.Log)
		return
	}

	result, err := h.Service.Introspect(r.Context(), resource, token)
	if err != nil {
		h.Log.Errorf("❌ Introspection failed for %s: %v", resource.Name, err)
		writeOAuthError(w, err, h.Log)
		return
	}

	utils.WriteNoStoreJSON(w, http.StatusOK, result, h.Log)
}
