package engine

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/37-AN/43v3rm1x/internal/audio"
	"github.com/37-AN/43v3rm1x/internal/logger"
	"github.com/37-AN/43v3rm1x/internal/stream"
)

// Encoder turns a PCM stream into an encoded session file. Start returns
// the PCM sink; Finalize closes the pipeline and yields the encoded bytes.
type Encoder interface {
	Start() (io.WriteCloser, error)
	Finalize() ([]byte, error)
	MIME() string
	Ext() string
}

// FFmpegEncoder encodes PCM to a compressed session file through an
// FFmpeg subprocess.
type FFmpegEncoder struct {
	Path    string
	Format  string // "mp3" or "ogg"
	Bitrate string // e.g. "192k"

	cmd *exec.Cmd
	out bytes.Buffer
}

func (f *FFmpegEncoder) Start() (io.WriteCloser, error) {
	codec := "libmp3lame"
	if f.Format == "ogg" {
		codec = "libvorbis"
	}
	f.cmd = exec.Command(f.Path,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", codec,
		"-b:a", f.Bitrate,
		"-f", f.Format,
		"-loglevel", "error",
		"pipe:1",
	)
	stdin, err := f.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	f.cmd.Stdout = &f.out
	if err := f.cmd.Start(); err != nil {
		return nil, err
	}
	return stdin, nil
}

func (f *FFmpegEncoder) Finalize() ([]byte, error) {
	if err := f.cmd.Wait(); err != nil {
		return nil, err
	}
	return f.out.Bytes(), nil
}

func (f *FFmpegEncoder) MIME() string {
	if f.Format == "ogg" {
		return "audio/ogg"
	}
	return "audio/mpeg"
}

func (f *FFmpegEncoder) Ext() string { return f.Format }

// Recording is one finished session capture.
type Recording struct {
	Name     string
	MIME     string
	Data     []byte
	Duration time.Duration
}

// Recorder captures the post-fader master mix by tapping the broadcaster.
// One recording at a time; Stop returns the finished session.
type Recorder struct {
	broadcaster *stream.Broadcaster
	newEncoder  func() Encoder

	mu       sync.Mutex
	active   bool
	enc      Encoder
	listener *stream.Listener
	started  time.Time
	done     chan struct{}
}

// NewRecorder creates a recorder that will tap b and encode with
// encoders from newEncoder.
func NewRecorder(b *stream.Broadcaster, newEncoder func() Encoder) *Recorder {
	return &Recorder{broadcaster: b, newEncoder: newEncoder}
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start begins capturing the master mix. A second Start while recording
// is rejected; an encoder that cannot start reports the platform as
// unavailable.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return fmt.Errorf("%w: recording already in progress", ErrInvalidState)
	}

	enc := r.newEncoder()
	sink, err := enc.Start()
	if err != nil {
		return fmt.Errorf("%w: encoder: %v", ErrPlatformUnavailable, err)
	}

	listener := r.broadcaster.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer sink.Close()
		for {
			select {
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := sink.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	r.enc = enc
	r.listener = listener
	r.started = time.Now()
	r.done = done
	r.active = true

	logger.Info("recording started")
	return nil
}

// Stop ends the capture and returns the finished recording. Stopping
// while idle is rejected.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return nil, fmt.Errorf("%w: no recording in progress", ErrInvalidState)
	}

	r.broadcaster.Unsubscribe(r.listener)
	<-r.done

	data, err := r.enc.Finalize()
	elapsed := time.Since(r.started)

	rec := &Recording{
		Name:     fmt.Sprintf("mix-%s.%s", r.started.Format("20060102-150405"), r.enc.Ext()),
		MIME:     r.enc.MIME(),
		Duration: elapsed,
	}
	r.active = false
	r.enc = nil
	r.listener = nil
	r.done = nil

	if err != nil {
		return nil, fmt.Errorf("finalize recording: %w", err)
	}
	rec.Data = data

	logger.Info("recording stopped",
		logger.String("name", rec.Name),
		logger.Int("bytes", len(rec.Data)),
		logger.Float64("seconds", elapsed.Seconds()),
	)
	return rec, nil
}
