// Package emitter publishes alerts and health heartbeats to an MQTT
// broker. The broker is optional: when it is unreachable the daemon
// keeps running and the emitter reports errors instead of blocking.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

// Stats is a counter snapshot of emitter activity.
type Stats struct {
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
	Connected bool   `json:"connected"`
}

// MQTTEmitter publishes to the alert and health topics.
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // exported for the control plane handler

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter for the configured broker.
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect establishes the broker connection with auto-reconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
		)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// PublishAlert publishes one alert to the alerts topic.
func (e *MQTTEmitter) PublishAlert(alert telemetry.Alert) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	topic := e.cfg.MQTT.Topics.Alerts
	qos := e.cfg.MQTT.QoS["alerts"]

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("alert publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("alert publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("alert published", "topic", topic, "severity", alert.Severity)
	return nil
}

// PublishHealth publishes a health heartbeat payload.
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	if !e.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	topic := e.cfg.MQTT.Topics.Health
	qos := e.cfg.MQTT.QoS["health"]

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("health publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("health publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
	slog.Info("mqtt emitter disconnected")
}

// Stats returns a snapshot of emitter counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Published: e.published,
		Errors:    e.errors,
		Connected: e.connected,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
