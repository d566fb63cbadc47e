package hardware

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Umairism/Drone-System/internal/telemetry"
)

// staleFixAfter is how long a device sample stays credible without a
// fresh fix before Healthy reports false.
const staleFixAfter = 5 * time.Second

// gpsFix is the normalized wire format produced by the GPS hardware
// layer: one JSON object per line.
type gpsFix struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Altitude   float64 `json:"altitude"`
	Satellites int     `json:"satellites"`
	FixQuality int     `json:"fix_quality"`
	HDOP       float64 `json:"hdop"`
	Speed      float64 `json:"speed"`
	Course     float64 `json:"course"`
	Timestamp  string  `json:"timestamp"`
}

// DeviceAdapter consumes normalized GPS fixes from an established
// connection. Wire-level NMEA/MAVLink parsing happens upstream; this
// adapter only decodes the normalized line format.
type DeviceAdapter struct {
	conn   net.Conn
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu         sync.RWMutex
	latest     telemetry.Sample
	lastFixAt  time.Time
	fixesRead  uint64
	parseFails uint64
	isRunning  bool
}

// NewDeviceAdapter wraps an already-dialed feed connection.
func NewDeviceAdapter(conn net.Conn) *DeviceAdapter {
	return &DeviceAdapter{
		conn:   conn,
		stopCh: make(chan struct{}),
	}
}

// Start begins reading fixes from the feed.
func (d *DeviceAdapter) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return fmt.Errorf("device adapter already running")
	}
	d.isRunning = true
	d.mu.Unlock()

	slog.Info("device adapter starting", "remote", d.conn.RemoteAddr())

	d.wg.Add(1)
	go d.readLoop(ctx)

	return nil
}

// Sample returns the latest decoded fix without blocking.
func (d *DeviceAdapter) Sample() telemetry.Sample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// Healthy reports whether the feed is connected and recently delivered
// a fix.
func (d *DeviceAdapter) Healthy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isRunning && !d.lastFixAt.IsZero() && time.Since(d.lastFixAt) < staleFixAfter
}

// Stop closes the feed connection and waits for the read loop.
func (d *DeviceAdapter) Stop() error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	close(d.stopCh)
	d.conn.Close()
	d.wg.Wait()

	d.mu.RLock()
	read, fails := d.fixesRead, d.parseFails
	d.mu.RUnlock()
	slog.Info("device adapter stopped", "fixes_read", read, "parse_failures", fails)

	return nil
}

// Stats returns read counters for the health surface.
func (d *DeviceAdapter) Stats() (fixesRead, parseFails uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fixesRead, d.parseFails
}

func (d *DeviceAdapter) readLoop(ctx context.Context) {
	defer d.wg.Done()

	scanner := bufio.NewScanner(d.conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var fix gpsFix
		if err := json.Unmarshal(line, &fix); err != nil {
			d.mu.Lock()
			d.parseFails++
			d.mu.Unlock()
			slog.Debug("discarding malformed fix", "error", err)
			continue
		}

		sample := telemetry.Sample{
			Position:   telemetry.Position{Lat: fix.Lat, Lng: fix.Lng, Alt: fix.Altitude},
			Satellites: fix.Satellites,
			FixQuality: fix.FixQuality,
			HDOP:       fix.HDOP,
			Speed:      fix.Speed,
			Course:     fix.Course,
			Timestamp:  time.Now(),
		}
		if fix.FixQuality == 0 && (fix.Lat != 0 || fix.Lng != 0) {
			sample.FixQuality = 1
		}
		if ts, err := time.Parse(time.RFC3339, fix.Timestamp); err == nil {
			sample.Timestamp = ts
		}

		d.mu.Lock()
		d.latest = sample
		d.lastFixAt = time.Now()
		d.fixesRead++
		d.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-d.stopCh:
			// expected: Stop closed the connection under the reader
		default:
			slog.Warn("hardware feed read failed", "error", err)
		}
	}
}
