package diagnostics

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds all component checks of one /health request.
const healthCheckTimeout = 2 * time.Second

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type healthResponse struct {
	Status
	State      string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Clients    int               `json:"event_clients"`
}

// handleHealth always answers 200: a degraded component is reported in the
// body, the agent itself is still serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	state := healthOK
	var components map[string]string
	if len(s.checks) > 0 {
		components = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			state = healthDegraded
			continue
		}
		components[name] = healthOK
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:     s.status.Status(),
		State:      state,
		Components: components,
		Version:    s.version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Clients:    s.hub.ClientCount(),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.restarter == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "restart not available")
		return
	}
	s.logger.Info("restart requested over diagnostics", "request_id", r.Context().Value(ctxKeyRequestID))
	s.restarter.RequestRestart()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.serve(conn)
}
