// Package hub provides bounded multi-channel fan-out to connected
// clients.
//
// Each named channel has its own queue, capacity, and dispatch cadence.
// High-rate channels (telemetry, video, detections) drop the incoming
// message when their queue is full: a stale backlog is worth less than
// the next fresh message. The alerts channel is the exception — it
// blocks the publisher briefly rather than lose an alert, and fails
// loudly if the queue stays full.
//
// Delivery is per-client isolated: one client failing or stalling never
// delays or skips the others.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
)

// Channel names. Producers publish to these; clients subscribe to them.
const (
	ChannelTelemetry  = "telemetry"
	ChannelVideo      = "video"
	ChannelDetections = "detections"
	ChannelAlerts     = "alerts"
)

// alertPublishTimeout bounds how long an alert publish may block on a
// full queue before failing.
const alertPublishTimeout = 2 * time.Second

// Message is one unit of fan-out. Seq is assigned per channel in
// publish order.
type Message struct {
	Channel   string
	Seq       uint64
	Timestamp time.Time
	Payload   any
}

// Client is a delivery endpoint. Send must be safe for calls from the
// hub's dispatch goroutines; a returned error evicts the client from
// the channel being dispatched.
type Client interface {
	ID() string
	Send(Message) error
}

// Publisher is the producer-facing surface of the hub.
type Publisher interface {
	Publish(channel string, payload any) error
}

// ChannelStats is a point-in-time counter snapshot for one channel.
type ChannelStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Evicted   uint64 `json:"evicted"`
	Queued    int    `json:"queued"`
}

// channelState owns one named channel: its queue, its subscribers, and
// its counters.
type channelState struct {
	name string
	// queue buffers published messages until the dispatch loop drains
	// them.
	queue chan Message
	// period between dispatch passes; zero means dispatch immediately
	// as messages arrive.
	period time.Duration
	// blockOnFull switches the overflow policy from drop-newest to a
	// bounded blocking put.
	blockOnFull bool

	mu          sync.RWMutex
	subscribers map[string]Client

	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	evicted   atomic.Uint64
}

// Hub routes published messages to subscribed clients across a fixed
// set of channels.
type Hub struct {
	channels map[string]*channelState

	mu      sync.Mutex
	clients map[string]Client
	closed  bool

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a hub with the four standard channels sized and paced
// from the configuration.
func New(cfg config.ChannelsConfig) *Hub {
	h := &Hub{
		channels: make(map[string]*channelState),
		clients:  make(map[string]Client),
		stopCh:   make(chan struct{}),
	}
	h.channels[ChannelTelemetry] = newChannel(ChannelTelemetry, cfg.TelemetryCapacity, cfg.TelemetryHz, false)
	h.channels[ChannelVideo] = newChannel(ChannelVideo, cfg.VideoCapacity, cfg.VideoHz, false)
	h.channels[ChannelDetections] = newChannel(ChannelDetections, cfg.DetectionsCapacity, cfg.DetectionsHz, false)
	h.channels[ChannelAlerts] = newChannel(ChannelAlerts, cfg.AlertsCapacity, 0, true)
	return h
}

func newChannel(name string, capacity int, hz float64, blockOnFull bool) *channelState {
	var period time.Duration
	if hz > 0 {
		period = time.Duration(float64(time.Second) / hz)
	}
	return &channelState{
		name:        name,
		queue:       make(chan Message, capacity),
		period:      period,
		blockOnFull: blockOnFull,
		subscribers: make(map[string]Client),
	}
}

// Start launches one dispatch loop per channel.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if h.started {
		return fmt.Errorf("hub already started")
	}
	h.started = true

	for _, ch := range h.channels {
		h.wg.Add(1)
		go h.dispatchLoop(ctx, ch)
	}
	slog.Info("broadcast hub started", "channels", len(h.channels))
	return nil
}

// Close stops the dispatch loops and rejects further operations.
// Idempotent.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.stopCh)
	h.wg.Wait()
	slog.Info("broadcast hub stopped")
	return nil
}

// Connect registers a client. The client receives nothing until it
// subscribes to a channel.
func (h *Hub) Connect(c Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, exists := h.clients[c.ID()]; exists {
		return ErrClientExists
	}
	h.clients[c.ID()] = c
	return nil
}

// Disconnect removes a client from the hub and from every channel it
// is subscribed to.
func (h *Hub) Disconnect(id string) error {
	h.mu.Lock()
	if _, exists := h.clients[id]; !exists {
		h.mu.Unlock()
		return ErrClientNotFound
	}
	delete(h.clients, id)
	h.mu.Unlock()

	for _, ch := range h.channels {
		ch.mu.Lock()
		delete(ch.subscribers, id)
		ch.mu.Unlock()
	}
	return nil
}

// Subscribe adds a connected client to a channel's delivery set.
func (h *Hub) Subscribe(clientID, channel string) error {
	ch, ok := h.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	h.mu.Lock()
	c, exists := h.clients[clientID]
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrHubClosed
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrClientNotFound, clientID)
	}

	ch.mu.Lock()
	ch.subscribers[clientID] = c
	ch.mu.Unlock()
	return nil
}

// Unsubscribe removes a client from a channel's delivery set. The
// client stays connected.
func (h *Hub) Unsubscribe(clientID, channel string) error {
	ch, ok := h.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, exists := ch.subscribers[clientID]; !exists {
		return fmt.Errorf("%w: %q", ErrClientNotFound, clientID)
	}
	delete(ch.subscribers, clientID)
	return nil
}

// Publish enqueues a payload on a channel.
//
// Telemetry, video and detections never block: when the queue is full
// the incoming message is dropped and counted. Alerts block up to
// alertPublishTimeout and then return ErrAlertTimeout.
func (h *Hub) Publish(channel string, payload any) error {
	ch, ok := h.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrHubClosed
	}

	msg := Message{
		Channel:   channel,
		Seq:       ch.seq.Add(1),
		Timestamp: time.Now(),
		Payload:   payload,
	}

	if ch.blockOnFull {
		select {
		case ch.queue <- msg:
			ch.published.Add(1)
			return nil
		case <-time.After(alertPublishTimeout):
			slog.Error("alert queue saturated", "channel", channel, "queued", len(ch.queue))
			return fmt.Errorf("%w after %s", ErrAlertTimeout, alertPublishTimeout)
		}
	}

	select {
	case ch.queue <- msg:
		ch.published.Add(1)
	default:
		ch.dropped.Add(1)
	}
	return nil
}

// dispatchLoop drains one channel's queue and fans messages out to its
// subscribers. Paced channels drain everything queued on each tick;
// event-driven channels (alerts) dispatch as soon as a message arrives.
func (h *Hub) dispatchLoop(ctx context.Context, ch *channelState) {
	defer h.wg.Done()

	if ch.period == 0 {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case msg := <-ch.queue:
				h.deliver(ch, msg)
			}
		}
	}

	ticker := time.NewTicker(ch.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.drain(ch)
		}
	}
}

func (h *Hub) drain(ch *channelState) {
	for {
		select {
		case msg := <-ch.queue:
			h.deliver(ch, msg)
		default:
			return
		}
	}
}

// deliver fans one message out to the channel's subscribers in turn. A
// failing client is evicted from this channel only; the remaining
// subscribers still receive the message.
func (h *Hub) deliver(ch *channelState, msg Message) {
	ch.mu.RLock()
	targets := make([]Client, 0, len(ch.subscribers))
	for _, c := range ch.subscribers {
		targets = append(targets, c)
	}
	ch.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			ch.evicted.Add(1)
			slog.Warn("evicting client from channel",
				"client", c.ID(),
				"channel", ch.name,
				"error", err,
			)
			ch.mu.Lock()
			delete(ch.subscribers, c.ID())
			ch.mu.Unlock()
			continue
		}
		ch.delivered.Add(1)
	}
}

// Stats returns a per-channel counter snapshot.
func (h *Hub) Stats() map[string]ChannelStats {
	out := make(map[string]ChannelStats, len(h.channels))
	for name, ch := range h.channels {
		out[name] = ChannelStats{
			Published: ch.published.Load(),
			Dropped:   ch.dropped.Load(),
			Delivered: ch.delivered.Load(),
			Evicted:   ch.evicted.Load(),
			Queued:    len(ch.queue),
		}
	}
	return out
}

// Subscribers reports how many clients are subscribed to a channel.
func (h *Hub) Subscribers(channel string) int {
	ch, ok := h.channels[channel]
	if !ok {
		return 0
	}
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.subscribers)
}
