package handlers

import (
	"context"
	"net/http"
	"time"

	"oauth2-tokenserver/internal/metrics"
	"oauth2-tokenserver/internal/store/types"
	"oauth2-tokenserver/internal/utils"

	"github.com/sirupsen/logrus"
)

// HealthHandler manages health check requests
type HealthHandler struct {
	Tokens      types.TokenStore
	StorageType string
	Clients     int
	Resources   int
	Metrics     *metrics.MetricsCollector
	Log         *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(tokens types.TokenStore, storageType string, clients, resources int, metricsCollector *metrics.MetricsCollector, log *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		Tokens:      tokens,
		StorageType: storageType,
		Clients:     clients,
		Resources:   resources,
		Metrics:     metricsCollector,
		Log:         log,
	}
}

// ServeHTTP reports healthy when the token store answers
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"clients":    h.Clients,
		"resources":  h.Resources,
		"storage":    h.StorageType,
	}

	count, err := h.Tokens.CountTokens(ctx)
	if err != nil {
		h.Log.Warnf("⚠️ Health check: token store unavailable: %v", err)
		response["status"] = "unhealthy"
		response["error"] = "token store unavailable"
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, response, h.Log)
		return
	}
	response["tokens"] = count
	if h.Metrics != nil {
		h.Metrics.UpdateStoredTokens(float64(count))
	}

	utils.WriteJSONResponse(w, http.StatusOK, response, h.Log)
}
