package handlers

import (
	"net/http"

	"oauth2-tokenserver/internal/issuer"
	"oauth2-tokenserver/internal/models"

	"github.com/sirupsen/logrus"
)

// RevokeHandler manages OAuth2 token revocation requests
type RevokeHandler struct {
	Issuer *issuer.Issuer
	Log    *logrus.Logger
}

// NewRevokeHandler creates a new revoke handler
func NewRevokeHandler(iss *issuer.Issuer, log *logrus.Logger) *RevokeHandler {
	return &RevokeHandler{Issuer: iss, Log: log}
}

// ServeHTTP handles token revocation requests (RFC 7009)
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !isFormEncoded(r) {
		writeOAuthError(w, models.ErrMalformedRequest, h.Log)
		return
	}

	creds, err := readCredentials(r)
	if err != nil {
		writeOAuthError(w, err, h.Log)
		return
	}

	err = h.Issuer.Revoke(r.Context(), creds, r.PostForm.Get("token"), r.PostForm.Get("token_type_hint"))
	if err != nil {
		h.Log.Debugf("❌ Error revoking token: %v", err)
		writeOAuthError(w, err, h.Log)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
