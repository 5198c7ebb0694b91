package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os/exec"
)

// DecodeError reports a source that the platform decoder could not handle.
// A failed input never produces a partially constructed Track.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeBytes runs FFmpeg to decode encoded audio bytes of any container
// FFmpeg understands into raw interleaved stereo int16 samples at 48kHz.
func DecodeBytes(ffmpegPath, name string, data []byte) ([]int16, error) {
	cmd := exec.Command(ffmpegPath,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	out, err := cmd.Output()
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	if len(out) == 0 {
		return nil, &DecodeError{Name: name, Err: fmt.Errorf("no decodable audio stream")}
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}
