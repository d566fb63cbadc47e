package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Umairism/Drone-System/internal/config"
)

// Response is the MQTT control-plane reply envelope.
type Response struct {
	CommandAck string          `json:"command_ack"`
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

// Callbacks wires the handler to lifecycle operations that live outside
// the command router.
type Callbacks struct {
	OnGetStatus func() any
	OnShutdown  func() error
}

// MQTTHandler bridges the MQTT control topic to the command router.
type MQTTHandler struct {
	cfg       *config.Config
	client    mqtt.Client
	router    *Router
	callbacks Callbacks
	commands  chan Command
}

// NewMQTTHandler creates an MQTT control-plane handler.
func NewMQTTHandler(cfg *config.Config, client mqtt.Client, router *Router, callbacks Callbacks) *MQTTHandler {
	return &MQTTHandler{
		cfg:       cfg,
		client:    client,
		router:    router,
		callbacks: callbacks,
		commands:  make(chan Command, 10),
	}
}

// Start subscribes to the control topic and begins processing commands.
func (h *MQTTHandler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	slog.Info("control plane handler started")
	return nil
}

// Stop unsubscribes and stops the processing loop.
func (h *MQTTHandler) Stop() error {
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
		token.Wait()
	}
	close(h.commands)
	slog.Info("control plane handler stopped")
	return nil
}

func (h *MQTTHandler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Message:    "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Name)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Name)
	}
}

func (h *MQTTHandler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

func (h *MQTTHandler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Name}

	switch cmd.Name {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status = "error"
			resp.Message = "get_status not implemented"
			break
		}
		data, err := json.Marshal(h.callbacks.OnGetStatus())
		if err != nil {
			resp.Status = "error"
			resp.Message = err.Error()
			break
		}
		resp.Status = "success"
		resp.Data = data

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status = "error"
			resp.Message = "shutdown not implemented"
			break
		}
		if err := h.callbacks.OnShutdown(); err != nil {
			resp.Status = "error"
			resp.Message = err.Error()
		} else {
			resp.Status = "success"
			resp.Message = "shutdown initiated"
		}

	default:
		res := h.router.Execute(cmd)
		resp.Message = res.Message
		if res.Success {
			resp.Status = "success"
		} else {
			resp.Status = "error"
		}
	}

	h.sendResponse(resp)
}

func (h *MQTTHandler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal control response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Control + "/response"
	qos := h.cfg.MQTT.QoS["control"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Warn("control response publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control response publish failed", "topic", topic, "error", err)
	}
}
