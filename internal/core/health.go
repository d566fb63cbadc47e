package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Umairism/Drone-System/internal/hub"
)

// HealthStatus is the readiness payload and the MQTT heartbeat body.
type HealthStatus struct {
	Status          string                      `json:"status"` // "healthy", "degraded", "unhealthy"
	InstanceID      string                      `json:"instance_id"`
	UptimeSeconds   int64                       `json:"uptime_seconds"`
	HardwareHealthy bool                        `json:"hardware_healthy"`
	MQTTConnected   bool                        `json:"mqtt_connected"`
	WSClients       int                         `json:"ws_clients"`
	BatteryPct      float64                     `json:"battery_pct"`
	Mode            string                      `json:"mode"`
	Channels        map[string]hub.ChannelStats `json:"channels,omitempty"`
}

// HealthCheck reports the current service health.
func (s *Sentinel) HealthCheck() HealthStatus {
	s.mu.RLock()
	running := s.isRunning
	degraded := s.degraded
	started := s.started
	s.mu.RUnlock()

	status := HealthStatus{
		Status:        "healthy",
		InstanceID:    s.cfg.InstanceID,
		UptimeSeconds: int64(time.Since(started).Seconds()),
		Channels:      s.hub.Stats(),
	}

	if s.adapter != nil {
		status.HardwareHealthy = s.adapter.Healthy()
	}
	if s.mqttEmitter != nil {
		status.MQTTConnected = s.mqttEmitter.Stats().Connected
	}
	if s.ws != nil {
		status.WSClients = s.ws.ClientCount()
	}
	if s.simulator != nil {
		snap := s.simulator.Snapshot()
		status.BatteryPct = snap.BatteryPct
		status.Mode = string(snap.Mode)
	}

	switch {
	case !running:
		status.Status = "unhealthy"
	case degraded || !status.HardwareHealthy:
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health: process-alive check only.
func (s *Sentinel) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(started).Seconds()),
	})
}

// ReadinessHandler handles /readiness with the full health payload.
func (s *Sentinel) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := s.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// MetricsHandler handles /metrics with plain-text counters.
func (s *Sentinel) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	health := s.HealthCheck()
	fmt.Fprintf(w, "sentinel_uptime_seconds{instance=%q} %d\n", health.InstanceID, health.UptimeSeconds)
	fmt.Fprintf(w, "sentinel_ws_clients{instance=%q} %d\n", health.InstanceID, health.WSClients)
	fmt.Fprintf(w, "sentinel_battery_pct{instance=%q} %.2f\n", health.InstanceID, health.BatteryPct)
	for name, ch := range health.Channels {
		fmt.Fprintf(w, "sentinel_channel_published{channel=%q} %d\n", name, ch.Published)
		fmt.Fprintf(w, "sentinel_channel_dropped{channel=%q} %d\n", name, ch.Dropped)
		fmt.Fprintf(w, "sentinel_channel_delivered{channel=%q} %d\n", name, ch.Delivered)
	}
}

// StartHealthServer serves the health endpoints on the given port.
// Non-blocking; the server lives for the process lifetime.
func (s *Sentinel) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/readiness", s.ReadinessHandler)
	mux.HandleFunc("/metrics", s.MetricsHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}
