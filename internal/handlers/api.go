// Package handlers contains the HTTP and WebSocket handlers for the REST API.
package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/llm"
	"github.com/ternarybob/rogo/internal/services/session"
)

// APIHandler serves the service-level endpoints: version, health, and the
// catch-all for unknown API paths.
type APIHandler struct {
	sessions *session.Manager
	factory  *llm.Factory
	logger   arbor.ILogger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(sessions *session.Manager, factory *llm.Factory, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		sessions: sessions,
		factory:  factory,
		logger:   logger,
	}
}

// VersionHandler returns build information.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"version":    common.Version,
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler reports liveness plus which providers have resolvable
// credentials. Credential lookup touches the environment, the KV store, and
// configuration only; no provider API is called.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	providers := make(map[string]bool)
	for _, id := range []string{models.ProviderOpenAI, models.ProviderGemini, models.ProviderClaude} {
		providers[id] = h.factory.Configured(r.Context(), id)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    "ok",
		"version":   common.Version,
		"sessions":  h.sessions.Count(),
		"providers": providers,
	})
}

// NotFoundHandler handles unknown API routes with a JSON error instead of the
// default HTML page.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug().Str("path", r.URL.Path).Msg("Unknown API route")
	WriteError(w, http.StatusNotFound, "Not found")
}
