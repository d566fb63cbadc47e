// Package hardware abstracts the telemetry source: a real GPS/flight
// controller feed or a deterministic mock generator. Both variants
// satisfy Adapter; the probe selects one at startup and the selection
// is final for the process lifetime.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

// Adapter is a telemetry source. Sample never blocks: it returns the
// latest known reading.
type Adapter interface {
	Start(ctx context.Context) error
	Sample() telemetry.Sample
	Healthy() bool
	Stop() error
}

// ErrDegraded reports that the device feed was unreachable and the
// process fell back to the mock adapter. The fallback is one-way: it is
// never retried without a restart, so the data source cannot flap
// between real and simulated mid-flight.
var ErrDegraded = errors.New("hardware degraded: using mock telemetry")

// Probe selects the telemetry adapter. With no feed address configured
// the mock is used directly. Otherwise the device feed is dialed with a
// bounded timeout; on failure Probe returns the mock adapter together
// with an error wrapping ErrDegraded for the caller to log.
func Probe(cfg config.HardwareConfig, sim config.SimulationConfig) (Adapter, error) {
	if cfg.FeedAddr == "" {
		slog.Info("no hardware feed configured, using mock adapter")
		return NewMockAdapter(sim.HomeLat, sim.HomeLng, cfg.SampleHz), nil
	}

	timeout := time.Duration(cfg.DialTimeoutS) * time.Second
	conn, err := net.DialTimeout("tcp", cfg.FeedAddr, timeout)
	if err != nil {
		slog.Warn("hardware feed unreachable, falling back to mock adapter",
			"addr", cfg.FeedAddr,
			"timeout", timeout,
			"error", err,
		)
		return NewMockAdapter(sim.HomeLat, sim.HomeLng, cfg.SampleHz),
			fmt.Errorf("dial %s: %v: %w", cfg.FeedAddr, err, ErrDegraded)
	}

	slog.Info("hardware feed connected", "addr", cfg.FeedAddr)
	return NewDeviceAdapter(conn), nil
}
