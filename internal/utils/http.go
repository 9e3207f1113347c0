package utils

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// WriteJSONResponse writes a JSON response with the given status code and data
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, logger *logrus.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("❌ Error encoding JSON response: %v", err)
	}
}

// WriteNoStoreJSON writes a JSON response that must not be cached, as
// required for token endpoint responses.
func WriteNoStoreJSON(w http.ResponseWriter, statusCode int, data interface{}, logger *logrus.Logger) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	WriteJSONResponse(w, statusCode, data, logger)
}
