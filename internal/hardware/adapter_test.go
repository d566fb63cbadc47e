package hardware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
)

func TestMockSampleStaysNearBase(t *testing.T) {
	m := NewMockAdapter(33.6844, 73.0479, 10)

	for i := 0; i < 20; i++ {
		s := m.generate()
		if math.Abs(s.Position.Lat-33.6844) > 0.001 {
			t.Errorf("lat drifted too far: %f", s.Position.Lat)
		}
		if math.Abs(s.Position.Lng-73.0479) > 0.001 {
			t.Errorf("lng drifted too far: %f", s.Position.Lng)
		}
		if s.Satellites < 6 || s.Satellites > 12 {
			t.Errorf("satellites out of range: %d", s.Satellites)
		}
		if !s.HasFix() {
			t.Error("mock sample must always have a fix")
		}
	}
}

func TestMockSampleNonBlocking(t *testing.T) {
	m := NewMockAdapter(33.6844, 73.0479, 10)

	// Sample must return immediately even before Start.
	done := make(chan struct{})
	go func() {
		m.Sample()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Sample blocked")
	}
}

func TestMockLifecycle(t *testing.T) {
	m := NewMockAdapter(33.6844, 73.0479, 100)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	if !m.Healthy() {
		t.Error("running mock should be healthy")
	}

	time.Sleep(50 * time.Millisecond)

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.Healthy() {
		t.Error("stopped mock should not be healthy")
	}
	// Stop is idempotent.
	if err := m.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestProbeFallsBackToMock(t *testing.T) {
	cfg := config.HardwareConfig{
		FeedAddr:     "127.0.0.1:1", // nothing listens here
		DialTimeoutS: 1,
		SampleHz:     10,
	}
	sim := config.SimulationConfig{HomeLat: 33.6844, HomeLng: 73.0479}

	adapter, err := Probe(cfg, sim)
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected ErrDegraded, got %v", err)
	}
	if _, ok := adapter.(*MockAdapter); !ok {
		t.Fatalf("expected mock adapter after fallback, got %T", adapter)
	}
}

func TestProbeNoFeedConfigured(t *testing.T) {
	adapter, err := Probe(
		config.HardwareConfig{SampleHz: 10},
		config.SimulationConfig{HomeLat: 1, HomeLng: 2},
	)
	if err != nil {
		t.Fatalf("expected no error without a feed address, got %v", err)
	}
	if _, ok := adapter.(*MockAdapter); !ok {
		t.Fatalf("expected mock adapter, got %T", adapter)
	}
}

func TestDeviceAdapterDecodesFixes(t *testing.T) {
	client, server := net.Pipe()
	d := NewDeviceAdapter(server)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	fix := `{"lat":33.6844,"lng":73.0479,"altitude":512.5,"satellites":9,"fix_quality":1,"hdop":1.1}` + "\n"
	if _, err := client.Write([]byte(fix)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s := d.Sample()
		if s.HasFix() {
			if s.Position.Lat != 33.6844 || s.Position.Alt != 512.5 {
				t.Errorf("unexpected sample: %+v", s)
			}
			if s.Satellites != 9 {
				t.Errorf("expected 9 satellites, got %d", s.Satellites)
			}
			if !d.Healthy() {
				t.Error("adapter with fresh fix should be healthy")
			}
			client.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for decoded fix")
}

func TestDeviceAdapterSkipsMalformedLines(t *testing.T) {
	client, server := net.Pipe()
	d := NewDeviceAdapter(server)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	lines := "not json\n" +
		fmt.Sprintf(`{"lat":%f,"lng":%f,"altitude":10,"satellites":7,"fix_quality":1}`, 1.5, 2.5) + "\n"
	if _, err := client.Write([]byte(lines)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := d.Sample(); s.HasFix() {
			if s.Position.Lat != 1.5 {
				t.Errorf("expected lat 1.5, got %f", s.Position.Lat)
			}
			if _, fails := d.Stats(); fails != 1 {
				t.Errorf("expected 1 parse failure, got %d", fails)
			}
			client.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for valid fix after malformed line")
}

func TestDeviceAdapterUnhealthyBeforeFirstFix(t *testing.T) {
	_, server := net.Pipe()
	d := NewDeviceAdapter(server)
	if d.Healthy() {
		t.Error("adapter without any fix should not be healthy")
	}
}
