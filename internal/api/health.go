package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Engine        bool              `json:"engine"`
	MQTT          MQTTHealth        `json:"mqtt"`
	Checks        map[string]string `json:"checks,omitempty"`
	Clients       int               `json:"wsClients"`
}

// MQTTHealth describes the broker connection.
type MQTTHealth struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// handleHealth reports 200 when the engine runs and the broker is connected,
// 503 otherwise. Optional stores add an entry to checks but only degrade the
// status, never the availability of the agent.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  HealthOK,
		Version: s.version,
		Engine:  s.door.Snapshot().Running,
		Clients: s.hub.ClientCount(),
	}
	if !s.started.IsZero() {
		resp.UptimeSeconds = int64(time.Since(s.started).Seconds())
	}
	if s.broker != nil {
		resp.MQTT = MQTTHealth{
			Connected:     s.broker.IsConnected(),
			Subscriptions: s.broker.SubscriptionCount(),
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]HealthChecker{
		"database": s.database,
		"influxdb": s.influxdb,
	}
	for name, checker := range checks {
		if checker == nil {
			continue
		}
		if resp.Checks == nil {
			resp.Checks = make(map[string]string)
		}
		if err := checker.HealthCheck(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = HealthDegraded
			continue
		}
		resp.Checks[name] = HealthOK
	}

	code := http.StatusOK
	if !resp.Engine || !resp.MQTT.Connected {
		resp.Status = HealthDegraded
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
