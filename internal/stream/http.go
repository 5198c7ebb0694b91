package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"

	"github.com/37-AN/43v3rm1x/internal/audio"
	"github.com/37-AN/43v3rm1x/internal/logger"
)

// HTTPHandler serves the master mix as a chunked MP3 stream. Each
// connection spawns an FFmpeg process to encode PCM -> MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	ffmpegPath  string
}

// NewHTTPHandler creates an HTTP monitor stream handler.
func NewHTTPHandler(b *Broadcaster, ffmpegPath string) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, ffmpegPath: ffmpegPath}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "43v3rm1x master")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, h.ffmpegPath,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Error("monitor stream: stdin pipe", logger.ErrorField(err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error("monitor stream: stdout pipe", logger.ErrorField(err))
		return
	}

	if err := cmd.Start(); err != nil {
		logger.Error("monitor stream: ffmpeg start", logger.ErrorField(err))
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	logger.Info("monitor listener connected", logger.Int("total", h.broadcaster.ListenerCount()))
	defer logger.Info("monitor listener disconnected")

	// Feed PCM frames to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to HTTP response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("monitor stream: ffmpeg read", logger.ErrorField(err))
			}
			break
		}
	}

	cmd.Wait()
}
