package api

import "net/http"

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the session API.
func buildOpenAPIDoc() map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	op := func(id, summary, scope string) map[string]any {
		o := map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
			},
		}
		if scope != "" {
			o["security"] = secured
			o["x-scope"] = scope
			o["responses"].(map[string]any)["401"] = map[string]any{"description": "Missing or invalid token"}
			o["responses"].(map[string]any)["403"] = map[string]any{"description": "Insufficient scope"}
		}
		return o
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "unitd",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz":         map[string]any{"get": op("healthz", "Session health and table counts", "")},
			"/metrics":         map[string]any{"get": op("metrics", "Prometheus exposition", "")},
			"/processes":       map[string]any{"get": op("listProcesses", "Process table snapshot", "procs:ro")},
			"/processes/{pid}": map[string]any{"get": op("getProcess", "One process table entry", "procs:ro")},
			"/history":         map[string]any{"get": op("listHistory", "Recorded unit history", "procs:ro")},
			"/events":          map[string]any{"get": op("events", "Lifecycle events as server-sent events", "events:ro")},
			"/tty":             map[string]any{"get": op("tty", "Terminal websocket", "tty:ro")},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}
