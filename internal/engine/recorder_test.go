package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/37-AN/43v3rm1x/internal/audio"
	"github.com/37-AN/43v3rm1x/internal/stream"
)

// passthroughEncoder captures raw PCM instead of invoking FFmpeg.
type passthroughEncoder struct {
	mu   sync.Mutex
	data []byte
	fail bool
}

type passthroughSink struct{ enc *passthroughEncoder }

func (s *passthroughSink) Write(p []byte) (int, error) {
	s.enc.mu.Lock()
	defer s.enc.mu.Unlock()
	s.enc.data = append(s.enc.data, p...)
	return len(p), nil
}

func (s *passthroughSink) Close() error { return nil }

func (e *passthroughEncoder) Start() (io.WriteCloser, error) {
	if e.fail {
		return nil, errors.New("encoder unavailable")
	}
	return &passthroughSink{enc: e}, nil
}

func (e *passthroughEncoder) Finalize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data, nil
}

func (e *passthroughEncoder) MIME() string { return "audio/pcm" }
func (e *passthroughEncoder) Ext() string  { return "pcm" }

func (e *passthroughEncoder) size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.data)
}

func TestRecorderStateMachine(t *testing.T) {
	b := stream.NewBroadcaster()
	r := NewRecorder(b, func() Encoder { return &passthroughEncoder{} })

	if _, err := r.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop while idle: err = %v, want ErrInvalidState", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Active() {
		t.Error("recorder not active after Start")
	}
	if err := r.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Start: err = %v, want ErrInvalidState", err)
	}

	rec, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.Active() {
		t.Error("recorder still active after Stop")
	}
	if !strings.HasPrefix(rec.Name, "mix-") || !strings.HasSuffix(rec.Name, ".pcm") {
		t.Errorf("recording name = %q, want mix-<timestamp>.pcm", rec.Name)
	}
	if rec.MIME != "audio/pcm" {
		t.Errorf("recording MIME = %q, want audio/pcm", rec.MIME)
	}

	// The recorder is reusable for the next session.
	if err := r.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := r.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderEncoderFailure(t *testing.T) {
	b := stream.NewBroadcaster()
	r := NewRecorder(b, func() Encoder { return &passthroughEncoder{fail: true} })

	if err := r.Start(); !errors.Is(err, ErrPlatformUnavailable) {
		t.Errorf("Start with broken encoder: err = %v, want ErrPlatformUnavailable", err)
	}
	if r.Active() {
		t.Error("recorder active after failed Start")
	}
}

func TestRecorderCapturesMasterMix(t *testing.T) {
	b := stream.NewBroadcaster()
	enc := &passthroughEncoder{}
	r := NewRecorder(b, func() Encoder { return enc })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 10)
	go b.Run(ctx, source)

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	frame := make([]int16, audio.FrameSamples)
	for i := range frame {
		frame[i] = 1234
	}
	for i := 0; i < 5; i++ {
		source <- frame
	}

	// Wait for the tap goroutine to drain the frames.
	deadline := time.Now().Add(2 * time.Second)
	for enc.size() < 5*audio.FrameBytes && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	rec, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Data) < 5*audio.FrameBytes {
		t.Errorf("captured %d bytes, want at least %d", len(rec.Data), 5*audio.FrameBytes)
	}
	// Spot-check the PCM payload: 1234 little-endian.
	if rec.Data[0] != 0xD2 || rec.Data[1] != 0x04 {
		t.Errorf("payload starts with [%02x %02x], want [d2 04]", rec.Data[0], rec.Data[1])
	}
}
