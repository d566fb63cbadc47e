package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/control"
	"github.com/Umairism/Drone-System/internal/hub"
	"github.com/Umairism/Drone-System/internal/sim"
)

type testEnv struct {
	hub    *hub.Hub
	server *Server
	ts     *httptest.Server
	conn   *websocket.Conn
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	h := hub.New(cfg.Channels)
	simulator := sim.New(cfg.Simulation, nil, nil)
	router := control.NewRouter(simulator)
	srv := NewServer(cfg.Server, h, router)

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Handler())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		ts.Close()
		cancel()
		h.Close()
	})

	return &testEnv{hub: h, server: srv, ts: ts, conn: conn}
}

// readEvent reads JSON frames until one of the wanted type arrives.
func (e *testEnv) readEvent(t *testing.T, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	e.conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		kind, data, err := e.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed waiting for %q: %v", wantType, err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if msg["type"] == wantType {
			return msg
		}
	}
	t.Fatalf("timeout waiting for event %q", wantType)
	return nil
}

func (e *testEnv) send(t *testing.T, msg any) {
	t.Helper()
	if err := e.conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestConnectAssignsClientID(t *testing.T) {
	env := newTestEnv(t)

	msg := env.readEvent(t, "connected")
	data := msg["data"].(map[string]any)
	if data["client_id"] == "" {
		t.Error("expected a client id in the connected event")
	}
}

func TestClientSubscribedToAllChannelsOnConnect(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	for _, ch := range []string{hub.ChannelTelemetry, hub.ChannelVideo, hub.ChannelDetections, hub.ChannelAlerts} {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) && env.hub.Subscribers(ch) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		if env.hub.Subscribers(ch) != 1 {
			t.Errorf("expected default subscription to %s", ch)
		}
	}
}

func TestTelemetryEventDelivered(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	if err := env.hub.Publish(hub.ChannelTelemetry, map[string]any{"battery_pct": 88.5}); err != nil {
		t.Fatal(err)
	}

	msg := env.readEvent(t, "telemetry_update")
	data := msg["data"].(map[string]any)
	if data["battery_pct"] != 88.5 {
		t.Errorf("unexpected payload: %v", data)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	env.send(t, map[string]any{"type": "command", "command": "arm"})

	msg := env.readEvent(t, "command_response")
	data := msg["data"].(map[string]any)
	if data["success"] != true {
		t.Fatalf("arm command failed: %v", data["message"])
	}
}

func TestInvalidCommandReportsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	env.send(t, map[string]any{
		"type":    "command",
		"command": "goto",
		"params":  map[string]any{"lat": 95, "lng": 0, "alt": 15},
	})

	msg := env.readEvent(t, "command_response")
	data := msg["data"].(map[string]any)
	if data["success"] != false {
		t.Fatal("out-of-range goto should fail")
	}
	if !strings.Contains(data["message"].(string), "lat") {
		t.Errorf("expected validation message, got %v", data["message"])
	}
}

func TestUnsubscribeStopsChannel(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	env.send(t, map[string]any{"type": "unsubscribe", "channel": hub.ChannelTelemetry})
	env.readEvent(t, "unsubscribed")

	if n := env.hub.Subscribers(hub.ChannelTelemetry); n != 0 {
		t.Errorf("expected no telemetry subscribers, got %d", n)
	}
	// Other channels keep working.
	if n := env.hub.Subscribers(hub.ChannelAlerts); n != 1 {
		t.Errorf("alerts subscription should survive, got %d", n)
	}
}

func TestSubscribeUnknownChannelReportsError(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	env.send(t, map[string]any{"type": "subscribe", "channel": "nonsense"})
	msg := env.readEvent(t, "error")
	if !strings.Contains(msg["message"].(string), "nonsense") {
		t.Errorf("expected the channel name in the error, got %v", msg["message"])
	}
}

func TestGetStatusReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	env.send(t, map[string]any{"type": "get_status"})
	msg := env.readEvent(t, "status")
	data := msg["data"].(map[string]any)
	if data["mode"] != "DISARMED" {
		t.Errorf("expected DISARMED mode in status, got %v", data["mode"])
	}
}

func TestVideoDeliveredAsBinaryFrame(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	blob := []byte{0x01, 0x02, 0x03, 0x04}
	if err := env.hub.Publish(hub.ChannelVideo, blob); err != nil {
		t.Fatal(err)
	}

	env.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		kind, data, err := env.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if kind == websocket.BinaryMessage {
			if len(data) != len(blob) {
				t.Errorf("expected %d bytes, got %d", len(blob), len(data))
			}
			return
		}
	}
}

func TestDisconnectCleansUpHub(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	env.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.hub.Subscribers(hub.ChannelTelemetry) == 0 && env.server.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not cleaned up: %d subscribers, %d clients",
		env.hub.Subscribers(hub.ChannelTelemetry), env.server.ClientCount())
}

func TestMalformedJSONReportsError(t *testing.T) {
	env := newTestEnv(t)
	env.readEvent(t, "connected")

	if err := env.conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	msg := env.readEvent(t, "error")
	if msg["message"] != "invalid JSON" {
		t.Errorf("unexpected error message: %v", msg["message"])
	}
}
