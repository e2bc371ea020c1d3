package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"service": "gobalance-llm-gateway",
		"endpoints": map[string]string{
			"chat":          "/api/chat",
			"chat_stream":   "/api/chat/stream",
			"models":        "/api/models",
			"pull_model":    "/api/models/pull/{name}",
			"instances":     "/api/models/instances",
			"health":        "/health",
			"metrics":       "/metrics",
		},
	})
}

func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleExternalCollaborator stubs the fine-tune and admin route
// groups: spec names these as external collaborators the gateway only
// fronts with auth, never implements itself.
func (s *Server) handleExternalCollaborator(w http.ResponseWriter, r *http.Request) {
	renderError(w, notImplemented("handled by an external service"))
}
