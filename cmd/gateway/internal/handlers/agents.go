package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/bankerai/orchestrator/internal/agents"
)

// AgentsHandler serves GET /api/v1/agents: the registered agent set plus
// basic process information.
type AgentsHandler struct {
	registry  *agents.Registry
	version   string
	startedAt time.Time
}

func NewAgentsHandler(registry *agents.Registry, version string) *AgentsHandler {
	return &AgentsHandler{registry: registry, version: version, startedAt: time.Now()}
}

type agentsResponse struct {
	Agents []string   `json:"agents"`
	System systemInfo `json:"system"`
}

type systemInfo struct {
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
	NumGoroutines int     `json:"num_goroutines"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (h *AgentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ids := h.registry.IDs()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agentsResponse{
		Agents: names,
		System: systemInfo{
			Version:       h.version,
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			UptimeSeconds: time.Since(h.startedAt).Seconds(),
		},
	})
}
