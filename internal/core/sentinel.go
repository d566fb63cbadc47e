// Package core wires the subsystems together: hardware probe,
// simulator, broadcast hub, vision and video producers, websocket
// surface, and the optional MQTT control plane.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/control"
	"github.com/Umairism/Drone-System/internal/emitter"
	"github.com/Umairism/Drone-System/internal/hardware"
	"github.com/Umairism/Drone-System/internal/hub"
	"github.com/Umairism/Drone-System/internal/sim"
	"github.com/Umairism/Drone-System/internal/telemetry"
	"github.com/Umairism/Drone-System/internal/transport"
	"github.com/Umairism/Drone-System/internal/video"
	"github.com/Umairism/Drone-System/internal/vision"
)

// healthHeartbeatInterval is how often a health payload is published to
// the MQTT health topic when a broker is configured.
const healthHeartbeatInterval = 30 * time.Second

// Sentinel is the daemon orchestrator.
type Sentinel struct {
	cfg *config.Config

	hub       *hub.Hub
	adapter   hardware.Adapter
	simulator *sim.Simulator
	router    *control.Router
	detector  *vision.MockDetector
	streamer  *video.Streamer
	ws        *transport.Server

	mqttEmitter    *emitter.MQTTEmitter
	controlHandler *control.MQTTHandler

	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	degraded  bool
	cancelCtx context.CancelFunc
}

// busSink feeds simulator output into the broadcast hub and, when a
// broker is connected, mirrors alerts to MQTT.
type busSink struct {
	hub     *hub.Hub
	emitter *emitter.MQTTEmitter
}

func (s *busSink) Telemetry(snap telemetry.Snapshot) {
	if err := s.hub.Publish(hub.ChannelTelemetry, snap); err != nil {
		slog.Debug("telemetry publish failed", "error", err)
	}
}

func (s *busSink) Alert(a telemetry.Alert) {
	if err := s.hub.Publish(hub.ChannelAlerts, a); err != nil {
		slog.Error("alert publish failed", "error", err, "alert", a.Message)
	}
	if s.emitter != nil {
		if err := s.emitter.PublishAlert(a); err != nil {
			slog.Debug("mqtt alert mirror failed", "error", err)
		}
	}
}

// NewSentinel loads the configuration and assembles the daemon.
func NewSentinel(configPath string) (*Sentinel, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newSentinel(cfg), nil
}

// NewSentinelWithConfig assembles the daemon from an already validated
// configuration.
func NewSentinelWithConfig(cfg *config.Config) *Sentinel {
	return newSentinel(cfg)
}

func newSentinel(cfg *config.Config) *Sentinel {
	slog.Info("configuration loaded", "instance_id", cfg.InstanceID)

	s := &Sentinel{
		cfg: cfg,
		hub: hub.New(cfg.Channels),
	}
	if cfg.MQTT.Broker != "" {
		s.mqttEmitter = emitter.NewMQTTEmitter(cfg)
	}
	return s
}

// Run starts every subsystem and blocks until the context is cancelled.
func (s *Sentinel) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelCtx = cancel
	s.mu.Unlock()

	slog.Info("sentinel service starting", "instance_id", s.cfg.InstanceID)

	if err := s.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcast hub: %w", err)
	}

	// Hardware source: real feed when reachable, mock otherwise. A
	// failed probe degrades, it never aborts.
	adapter, err := hardware.Probe(s.cfg.Hardware, s.cfg.Simulation)
	if err != nil {
		if !errors.Is(err, hardware.ErrDegraded) {
			return fmt.Errorf("hardware probe: %w", err)
		}
		slog.Warn("running degraded on mock telemetry", "error", err)
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	}
	s.adapter = adapter
	if err := s.adapter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hardware adapter: %w", err)
	}

	// MQTT is optional: without a broker (or with one that is down)
	// the websocket surface still carries everything.
	if s.mqttEmitter != nil {
		if err := s.mqttEmitter.Connect(ctx); err != nil {
			slog.Warn("mqtt unavailable, continuing without control plane", "error", err)
			s.mqttEmitter = nil
		}
	}

	sink := &busSink{hub: s.hub, emitter: s.mqttEmitter}
	s.simulator = sim.New(s.cfg.Simulation, s.adapter, sink)
	if err := s.simulator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	s.router = control.NewRouter(s.simulator)

	s.detector = vision.NewMockDetector(s.cfg.Vision, s.cfg.Camera, s.hub)
	if err := s.detector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start detector: %w", err)
	}

	s.streamer = video.NewStreamer(s.cfg.Camera, s.hub)
	if err := s.streamer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start video streamer: %w", err)
	}

	s.ws = transport.NewServer(s.cfg.Server, s.hub, s.router)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ws.Start(); err != nil {
			slog.Error("websocket server exited", "error", err)
		}
	}()

	if s.mqttEmitter != nil {
		s.controlHandler = control.NewMQTTHandler(s.cfg, s.mqttEmitter.Client, s.router, control.Callbacks{
			OnGetStatus: s.getStatus,
			OnShutdown:  s.shutdownViaControl,
		})
		if err := s.controlHandler.Start(ctx); err != nil {
			slog.Warn("control plane unavailable", "error", err)
			s.controlHandler = nil
		}

		s.wg.Add(1)
		go s.heartbeat(ctx)
	}

	slog.Info("sentinel service running",
		"ws_addr", s.cfg.Server.WSAddr,
		"mqtt", s.mqttEmitter != nil,
		"degraded", s.isDegraded(),
	)

	<-ctx.Done()
	slog.Info("sentinel service run loop exiting")
	return nil
}

// Shutdown stops every subsystem in dependency order.
func (s *Sentinel) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("shutting down sentinel service")

	// Producers stop first so nothing publishes into a closing hub.
	if s.detector != nil {
		if err := s.detector.Stop(); err != nil {
			slog.Error("failed to stop detector", "error", err)
		}
	}
	if s.streamer != nil {
		if err := s.streamer.Stop(); err != nil {
			slog.Error("failed to stop video streamer", "error", err)
		}
	}
	if s.simulator != nil {
		if err := s.simulator.Stop(); err != nil {
			slog.Error("failed to stop simulator", "error", err)
		}
	}
	if s.adapter != nil {
		if err := s.adapter.Stop(); err != nil {
			slog.Error("failed to stop hardware adapter", "error", err)
		}
	}

	if s.controlHandler != nil {
		if err := s.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control plane", "error", err)
		}
	}

	if s.ws != nil {
		if err := s.ws.Shutdown(ctx); err != nil {
			slog.Error("failed to stop websocket server", "error", err)
		}
	}

	if err := s.hub.Close(); err != nil {
		slog.Error("failed to close hub", "error", err)
	}

	if s.mqttEmitter != nil {
		s.mqttEmitter.Disconnect()
	}

	s.wg.Wait()
	slog.Info("sentinel service stopped")
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown budget.
func (s *Sentinel) ShutdownTimeout() time.Duration {
	return time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
}

// HealthPort returns the configured health server port.
func (s *Sentinel) HealthPort() string {
	return s.cfg.Server.HealthPort
}

func (s *Sentinel) heartbeat(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(healthHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.HealthCheck())
			if err != nil {
				slog.Error("health payload marshal failed", "error", err)
				continue
			}
			if err := s.mqttEmitter.PublishHealth(payload); err != nil {
				slog.Debug("health heartbeat failed", "error", err)
			}
		}
	}
}

func (s *Sentinel) getStatus() any {
	return s.router.Snapshot()
}

func (s *Sentinel) shutdownViaControl() error {
	slog.Info("shutdown requested via control plane")
	s.mu.RLock()
	cancel := s.cancelCtx
	s.mu.RUnlock()
	if cancel != nil {
		// Cancel asynchronously so the response goes out first.
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()
	}
	return nil
}

func (s *Sentinel) isDegraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}
