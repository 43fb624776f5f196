package handlers

import (
	"net/http"
	"os"

	"driplink/internal/httpkit"
)

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	log := h.log.FromContext(r.Context())

	health := map[string]any{
		"status":  "ok",
		"service": "driplink-render",
		"version": "0.1.0",
	}

	// Check if deep health check is requested
	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck()
		health["checks"] = checks

		// If any check failed, change status
		for _, check := range checks {
			if checkMap, ok := check.(map[string]any); ok {
				if checkMap["status"] != "ok" {
					health["status"] = "degraded"
					log.Warn("health check degraded", "checks", checks)
					break
				}
			}
		}
	}

	httpkit.WriteJSON(w, 200, health)
}

// deepHealthCheck performs detailed health checks on dependencies.
func (h *Handler) deepHealthCheck() map[string]any {
	checks := make(map[string]any)
	checks["storage"] = h.checkStorage()
	checks["renderer"] = h.checkRenderer()
	return checks
}

func (h *Handler) checkStorage() map[string]any {
	result := map[string]any{
		"status": "ok",
		"root":   h.layout.Root(),
	}

	if _, err := os.Stat(h.layout.Root()); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	return result
}

func (h *Handler) checkRenderer() map[string]any {
	result := map[string]any{
		"status": "ok",
	}

	if h.checker == nil {
		return result
	}
	if err := h.checker.Check(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	return result
}
