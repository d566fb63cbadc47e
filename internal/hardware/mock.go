package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Umairism/Drone-System/internal/telemetry"

	"github.com/google/uuid"
)

// MockAdapter generates synthetic telemetry samples by perturbing a
// base position. It is the fallback when no real feed is reachable and
// the default source for development.
type MockAdapter struct {
	baseLat  float64
	baseLng  float64
	baseAlt  float64
	sampleHz float64

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	latest    telemetry.Sample
	emitted   uint64
	isRunning bool
	rng       *rand.Rand
}

// NewMockAdapter creates a mock adapter centered on the given position.
func NewMockAdapter(lat, lng, sampleHz float64) *MockAdapter {
	if sampleHz <= 0 {
		sampleHz = 10
	}
	m := &MockAdapter{
		baseLat:  lat,
		baseLng:  lng,
		baseAlt:  500,
		sampleHz: sampleHz,
		stopCh:   make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.latest = m.generate()
	return m
}

// Start begins generating samples at the configured rate.
func (m *MockAdapter) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("mock adapter already running")
	}
	m.isRunning = true
	m.mu.Unlock()

	slog.Info("mock adapter starting",
		"base_lat", m.baseLat,
		"base_lng", m.baseLng,
		"sample_hz", m.sampleHz,
	)

	m.wg.Add(1)
	go m.generateSamples(ctx)

	return nil
}

// Sample returns the latest generated sample without blocking.
func (m *MockAdapter) Sample() telemetry.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Healthy always reports true: the generator cannot lose its source.
func (m *MockAdapter) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Stop stops the generator.
func (m *MockAdapter) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	m.mu.RLock()
	emitted := m.emitted
	m.mu.RUnlock()
	slog.Info("mock adapter stopped", "samples_emitted", emitted)

	return nil
}

func (m *MockAdapter) generateSamples(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / m.sampleHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			s := m.generate()
			m.mu.Lock()
			m.latest = s
			m.emitted++
			m.mu.Unlock()
		}
	}
}

// generate perturbs the base position by roughly 11 m per axis, the way
// an unaided GPS receiver wanders while stationary.
func (m *MockAdapter) generate() telemetry.Sample {
	m.mu.Lock()
	rng := m.rng
	lat := m.baseLat + (rng.Float64()-0.5)*0.0002
	lng := m.baseLng + (rng.Float64()-0.5)*0.0002
	alt := m.baseAlt + (rng.Float64()-0.5)*2
	sats := 6 + rng.Intn(7)
	hdop := 0.8 + rng.Float64()*1.2
	speed := rng.Float64() * 5
	course := rng.Float64() * 360
	m.mu.Unlock()

	return telemetry.Sample{
		Position:   telemetry.Position{Lat: lat, Lng: lng, Alt: alt},
		Satellites: sats,
		FixQuality: 1,
		HDOP:       hdop,
		Speed:      speed,
		Course:     course,
		Timestamp:  time.Now(),
		TraceID:    uuid.New().String(),
	}
}
