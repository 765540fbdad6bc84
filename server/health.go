package server

import (
	"net/http"

	"github.com/teranos/cadence/version"
)

// HandleHealth reports liveness, queue depth and build info
func (s *CadenceServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.getState()
	health := map[string]interface{}{
		"status":  "ok",
		"state":   stateString(state),
		"version": version.Get().Version,
		"clients": s.clientCount(),
	}

	status := http.StatusOK
	if state == ServerStateDraining {
		health["status"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	stats, err := s.queue.GetStats(r.Context())
	if err != nil {
		health["status"] = "degraded"
		health["error"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		health["queue"] = stats
	}

	writeJSON(w, status, health)
}
