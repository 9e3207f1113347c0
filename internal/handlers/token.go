package handlers

import (
	"errors"
	"net/http"
	"strings"

	"oauth2-tokenserver/internal/issuer"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/utils"

	"github.com/ory/fosite"
	"github.com/sirupsen/logrus"
)

// TokenHandler serves the token endpoint
type TokenHandler struct {
	Issuer *issuer.Issuer
	Log    *logrus.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(iss *issuer.Issuer, log *logrus.Logger) *TokenHandler {
	return &TokenHandler{Issuer: iss, Log: log}
}

// ServeHTTP handles token requests (RFC 6749 section 3.2)
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if !isFormEncoded(r) {
		h.Log.Debugf("❌ Token request with content type %q", r.Header.Get("Content-Type"))
		writeOAuthError(w, models.ErrMalformedRequest, h.Log)
		return
	}

	creds, err := readCredentials(r)
	if err != nil && !errors.Is(err, models.ErrUnauthorizedCaller) {
		writeOAuthError(w, err, h.Log)
		return
	}

	req := &issuer.TokenRequest{
		Credentials:    creds,
		GrantType:      r.PostForm.Get("grant_type"),
		Scopes:         fosite.Arguments(strings.Fields(r.PostForm.Get("scope"))),
		Parameters:     requestParameters(r.PostForm),
		CredentialsErr: err,
	}
	h.Log.Debugf("🔄 Token request: client=%s grant_type=%s", creds.ID, req.GrantType)

	resp, status := h.Issuer.Issue(r.Context(), req)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
	}
	utils.WriteNoStoreJSON(w, status, resp, h.Log)
}
