// Package vision produces object detection batches for the detections
// channel. The mock detector stands in for a real inference pipeline
// and emits plausible batches at a fixed rate.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/hub"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

// classes the mock detector draws from.
var mockClasses = []string{"person", "car", "truck", "bicycle", "dog"}

// MockDetector generates synthetic detection batches and publishes them
// to the detections channel.
type MockDetector struct {
	cfg    config.VisionConfig
	camera config.CameraConfig
	pub    hub.Publisher

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	batches   uint64
	frameSeq  uint64
	rng       *rand.Rand
}

// NewMockDetector creates a detector publishing to the given hub.
func NewMockDetector(cfg config.VisionConfig, camera config.CameraConfig, pub hub.Publisher) *MockDetector {
	return &MockDetector{
		cfg:    cfg,
		camera: camera,
		pub:    pub,
		stopCh: make(chan struct{}),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins emitting detection batches at the configured rate.
func (d *MockDetector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return fmt.Errorf("detector already running")
	}
	d.isRunning = true
	d.mu.Unlock()

	slog.Info("mock detector starting",
		"rate_hz", d.cfg.RateHz,
		"confidence", d.cfg.Confidence,
	)

	d.wg.Add(1)
	go d.run(ctx)
	return nil
}

// Stop halts batch generation.
func (d *MockDetector) Stop() error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()

	d.mu.Lock()
	batches := d.batches
	d.mu.Unlock()
	slog.Info("mock detector stopped", "batches", batches)
	return nil
}

func (d *MockDetector) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / d.cfg.RateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			batch := d.Detect()
			if err := d.pub.Publish(hub.ChannelDetections, batch); err != nil {
				slog.Warn("detection publish failed", "error", err)
				continue
			}
			d.mu.Lock()
			d.batches++
			d.mu.Unlock()
		}
	}
}

// Detect produces one synthetic batch of zero to three detections, each
// with a confidence at or above the configured threshold and a bounding
// box inside the camera frame.
func (d *MockDetector) Detect() telemetry.DetectionBatch {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.frameSeq++
	n := d.rng.Intn(4)
	detections := make([]telemetry.Detection, 0, n)
	for i := 0; i < n; i++ {
		w := 40 + d.rng.Intn(d.camera.Width/4)
		h := 40 + d.rng.Intn(d.camera.Height/4)
		x := d.rng.Intn(d.camera.Width - w)
		y := d.rng.Intn(d.camera.Height - h)
		detections = append(detections, telemetry.Detection{
			Class:      mockClasses[d.rng.Intn(len(mockClasses))],
			Confidence: d.cfg.Confidence + d.rng.Float64()*(1-d.cfg.Confidence),
			BBox:       telemetry.BBox{X: x, Y: y, Width: w, Height: h},
		})
	}

	return telemetry.DetectionBatch{
		Detections: detections,
		Count:      len(detections),
		FrameSeq:   d.frameSeq,
		Timestamp:  time.Now(),
	}
}

// Batches reports how many batches were published.
func (d *MockDetector) Batches() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}
