package handlers

import (
	"net/http"

	"oauth2-tokenserver/internal/utils"

	"github.com/sirupsen/logrus"
)

// Version information - these will be set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionInfo describes the running build and what it serves
type VersionInfo struct {
	Version    string   `json:"version"`
	GitCommit  string   `json:"git_commit"`
	BuildTime  string   `json:"build_time"`
	Server     string   `json:"server"`
	Issuer     string   `json:"issuer"`
	GrantTypes []string `json:"grant_types"`
}

// VersionHandler provides version information
type VersionHandler struct {
	Issuer     string
	GrantTypes []string
	Log        *logrus.Logger
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(issuer string, grantTypes []string, log *logrus.Logger) *VersionHandler {
	return &VersionHandler{Issuer: issuer, GrantTypes: grantTypes, Log: log}
}

// ServeHTTP handles version information requests
func (h *VersionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, VersionInfo{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildTime:  BuildTime,
		Server:     "OAuth2 Token Server",
		Issuer:     h.Issuer,
		GrantTypes: h.GrantTypes,
	}, h.Log)
}

// SetVersionInfo sets the version information (called from main)
func SetVersionInfo(version, gitCommit, buildTime string) {
	Version = version
	GitCommit = gitCommit
	BuildTime = buildTime
}
