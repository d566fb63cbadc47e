// Package video produces the mock camera feed. Frames are synthetic
// test patterns encoded with msgpack and published as binary payloads
// on the video channel.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/hub"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

// frameFormat is the pixel layout of the mock source.
const frameFormat = "BGR24"

// Streamer generates frames at the configured FPS and publishes them.
type Streamer struct {
	cfg config.CameraConfig
	pub hub.Publisher

	// pattern is the reusable pixel buffer; regenerated in place each
	// frame instead of allocating width*height*3 bytes per frame.
	pattern []byte

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	seq       uint64
	published uint64
}

// NewStreamer creates a mock camera streamer.
func NewStreamer(cfg config.CameraConfig, pub hub.Publisher) *Streamer {
	return &Streamer{
		cfg:     cfg,
		pub:     pub,
		pattern: make([]byte, cfg.Width*cfg.Height*3),
		stopCh:  make(chan struct{}),
	}
}

// Start begins frame generation.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("streamer already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	slog.Info("mock camera starting",
		"width", s.cfg.Width,
		"height", s.cfg.Height,
		"fps", s.cfg.FPS,
	)

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop halts frame generation.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	published := s.published
	s.mu.Unlock()
	slog.Info("mock camera stopped", "frames", published)
	return nil
}

func (s *Streamer) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			payload, err := s.NextFrame()
			if err != nil {
				slog.Warn("frame encode failed", "error", err)
				continue
			}
			if err := s.pub.Publish(hub.ChannelVideo, payload); err != nil {
				slog.Warn("frame publish failed", "error", err)
				continue
			}
			s.mu.Lock()
			s.published++
			s.mu.Unlock()
		}
	}
}

// NextFrame renders the next test pattern and returns it encoded.
func (s *Streamer) NextFrame() ([]byte, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.renderPattern(seq)
	frame := telemetry.VideoFrame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Format:    frameFormat,
		Data:      s.pattern,
		TraceID:   uuid.New().String(),
	}
	payload, err := msgpack.Marshal(&frame)
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", seq, err)
	}
	return payload, nil
}

// renderPattern fills the buffer with a moving gradient so consecutive
// frames differ visibly. Caller holds the lock.
func (s *Streamer) renderPattern(seq uint64) {
	shift := byte(seq % 256)
	for y := 0; y < s.cfg.Height; y++ {
		row := y * s.cfg.Width * 3
		for x := 0; x < s.cfg.Width; x++ {
			i := row + x*3
			s.pattern[i] = byte(x) + shift
			s.pattern[i+1] = byte(y)
			s.pattern[i+2] = shift
		}
	}
}

// Published reports how many frames were published.
func (s *Streamer) Published() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}
