package vision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches []telemetry.DetectionBatch
}

func (p *capturePublisher) Publish(channel string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := payload.(telemetry.DetectionBatch); ok {
		p.batches = append(p.batches, b)
	}
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func testDetector(pub *capturePublisher) *MockDetector {
	cfg := config.Default()
	return NewMockDetector(cfg.Vision, cfg.Camera, pub)
}

func TestDetectRespectsBounds(t *testing.T) {
	cfg := config.Default()
	d := testDetector(&capturePublisher{})

	for i := 0; i < 100; i++ {
		batch := d.Detect()
		if batch.Count != len(batch.Detections) {
			t.Fatalf("count %d does not match %d detections", batch.Count, len(batch.Detections))
		}
		for _, det := range batch.Detections {
			if det.Confidence < cfg.Vision.Confidence || det.Confidence >= 1 {
				t.Errorf("confidence %f outside [%f, 1)", det.Confidence, cfg.Vision.Confidence)
			}
			found := false
			for _, c := range mockClasses {
				if det.Class == c {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("unknown class %q", det.Class)
			}
			b := det.BBox
			if b.X < 0 || b.Y < 0 || b.X+b.Width > cfg.Camera.Width || b.Y+b.Height > cfg.Camera.Height {
				t.Errorf("bbox %+v escapes %dx%d frame", b, cfg.Camera.Width, cfg.Camera.Height)
			}
			if b.Area() <= 0 {
				t.Errorf("degenerate bbox %+v", b)
			}
		}
	}
}

func TestFrameSeqIncrements(t *testing.T) {
	d := testDetector(&capturePublisher{})

	first := d.Detect()
	second := d.Detect()
	if second.FrameSeq != first.FrameSeq+1 {
		t.Errorf("expected consecutive frame seq, got %d then %d", first.FrameSeq, second.FrameSeq)
	}
}

func TestDetectorPublishesAtRate(t *testing.T) {
	pub := &capturePublisher{}
	cfg := config.Default()
	cfg.Vision.RateHz = 50
	d := NewMockDetector(cfg.Vision, cfg.Camera, pub)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pub.count() < 3 {
		time.Sleep(10 * time.Millisecond)
	}
	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}

	if pub.count() < 3 {
		t.Fatalf("expected at least 3 batches, got %d", pub.count())
	}
	if d.Batches() == 0 {
		t.Error("batch counter not updated")
	}
}

func TestDetectorLifecycle(t *testing.T) {
	d := testDetector(&capturePublisher{})

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
