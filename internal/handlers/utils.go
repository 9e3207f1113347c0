package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"oauth2-tokenserver/internal/auth"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/utils"

	"github.com/sirupsen/logrus"
)

const formContentType = "application/x-www-form-urlencoded"

// isFormEncoded checks the media type, ignoring parameters such as charset
func isFormEncoded(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == formContentType
}

// writeOAuthError writes err as an OAuth error body with its matching status
func writeOAuthError(w http.ResponseWriter, err error, log *logrus.Logger) {
	rfcErr, status := models.OAuthErrorFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
	}
	utils.WriteNoStoreJSON(w, status, map[string]string{
		"error":             rfcErr.ErrorField,
		"error_description": rfcErr.DescriptionField,
	}, log)
}

// readCredentials parses the form and extracts the caller's credentials
func readCredentials(r *http.Request) (auth.Credentials, error) {
	if err := r.ParseForm(); err != nil {
		return auth.Credentials{}, fmt.Errorf("failed to parse form: %v: %w", err, models.ErrMalformedRequest)
	}
	creds, err := auth.ExtractClientCredentials(r)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("%v: %w", err, models.ErrUnauthorizedCaller)
	}
	return creds, nil
}

// requestParameters flattens the form, leaving out the client secret
func requestParameters(form url.Values) map[string]string {
	params := make(map[string]string, len(form))
	for name, values := range form {
		if name == "client_secret" || len(values) == 0 {
			continue
		}
		params[name] = values[0]
	}
	return params
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
