// Package transport exposes the broadcast hub and command router over
// websockets.
//
// Each connected client is subscribed to every broadcast channel until
// it opts out. Telemetry, detections, alerts and command responses are
// JSON text frames; video payloads travel as binary frames.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/control"
	"github.com/Umairism/Drone-System/internal/hub"
)

// writeTimeout bounds one websocket write. A client that cannot accept
// a frame within it is treated as failed.
const writeTimeout = 5 * time.Second

// Event names on the wire, keyed by hub channel.
var channelEvents = map[string]string{
	hub.ChannelTelemetry:  "telemetry_update",
	hub.ChannelVideo:      "video_frame",
	hub.ChannelDetections: "detection_update",
	hub.ChannelAlerts:     "system_alert",
}

// clientMessage is the inbound request envelope.
type clientMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Command string          `json:"command,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// serverMessage is the outbound event envelope for JSON frames.
type serverMessage struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// wsClient adapts one websocket connection to the hub's Client
// interface. Writes are serialized: hub dispatch goroutines and the
// command read loop both send.
type wsClient struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex
}

func (c *wsClient) ID() string { return c.id }

// Send delivers one hub message. Video payloads are pre-encoded binary
// blobs and go out as binary frames; everything else is a JSON event.
func (c *wsClient) Send(msg hub.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	if msg.Channel == hub.ChannelVideo {
		if raw, ok := msg.Payload.([]byte); ok {
			return c.conn.WriteMessage(websocket.BinaryMessage, raw)
		}
	}

	return c.conn.WriteJSON(serverMessage{
		Type:      channelEvents[msg.Channel],
		Seq:       msg.Seq,
		Timestamp: msg.Timestamp,
		Data:      msg.Payload,
	})
}

// sendEvent writes a JSON control event outside hub dispatch.
func (c *wsClient) sendEvent(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Server accepts websocket clients and bridges them to the hub and the
// command router.
type Server struct {
	cfg    config.ServerConfig
	hub    *hub.Hub
	router *control.Router

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	clients map[string]*wsClient
}

// NewServer creates a websocket server over the given hub and router.
func NewServer(cfg config.ServerConfig, h *hub.Hub, router *control.Router) *Server {
	s := &Server{
		cfg:    cfg,
		hub:    h,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: cfg.WSAddr, Handler: mux}
	return s
}

// Start begins accepting websocket connections. It returns once the
// listener is closed.
func (s *Server) Start() error {
	slog.Info("websocket server listening", "addr", s.cfg.WSAddr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("websocket server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and closes the active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the routing mux, used by tests to mount the server
// on an httptest listener.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := &wsClient{id: uuid.New().String(), conn: conn}

	if err := s.hub.Connect(client); err != nil {
		slog.Warn("client connect rejected", "error", err)
		conn.Close()
		return
	}

	// Every channel on by default; clients unsubscribe from what they
	// do not want.
	for ch := range channelEvents {
		if err := s.hub.Subscribe(client.id, ch); err != nil {
			slog.Warn("default subscription failed", "client", client.id, "channel", ch, "error", err)
		}
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	slog.Info("client connected", "client", client.id, "remote", r.RemoteAddr)

	client.sendEvent(serverMessage{
		Type:      "connected",
		Timestamp: time.Now(),
		Data:      map[string]string{"client_id": client.id},
	})

	go s.readLoop(client)
}

func (s *Server) readLoop(c *wsClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		if err := s.hub.Disconnect(c.id); err != nil {
			slog.Debug("disconnect cleanup", "client", c.id, "error", err)
		}
		c.conn.Close()
		slog.Info("client disconnected", "client", c.id)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendEvent(serverMessage{
				Type:      "error",
				Timestamp: time.Now(),
				Message:   "invalid JSON",
			})
			continue
		}

		s.handleClientMessage(c, msg)
	}
}

func (s *Server) handleClientMessage(c *wsClient, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		err := s.hub.Subscribe(c.id, msg.Channel)
		s.ackChannelChange(c, "subscribed", msg.Channel, err)

	case "unsubscribe":
		err := s.hub.Unsubscribe(c.id, msg.Channel)
		s.ackChannelChange(c, "unsubscribed", msg.Channel, err)

	case "command":
		res := s.router.Execute(control.Command{Name: msg.Command, Params: msg.Params})
		c.sendEvent(serverMessage{
			Type:      "command_response",
			Timestamp: time.Now(),
			Data:      res,
		})

	case "get_status":
		c.sendEvent(serverMessage{
			Type:      "status",
			Timestamp: time.Now(),
			Data:      s.router.Snapshot(),
		})

	default:
		c.sendEvent(serverMessage{
			Type:      "error",
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("unknown message type %q", msg.Type),
		})
	}
}

func (s *Server) ackChannelChange(c *wsClient, verb, channel string, err error) {
	if err != nil {
		c.sendEvent(serverMessage{
			Type:      "error",
			Timestamp: time.Now(),
			Message:   err.Error(),
		})
		return
	}
	c.sendEvent(serverMessage{
		Type:      verb,
		Timestamp: time.Now(),
		Data:      map[string]string{"channel": channel},
	})
}

// ClientCount reports the number of live websocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
