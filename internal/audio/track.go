package audio

import (
	"github.com/google/uuid"
)

// DefaultArtist is used when a load command carries no artist tag.
const DefaultArtist = "Unknown Artist"

// Track is one decoded audio asset. The sample buffer and the derived
// analysis fields are immutable once the track is built.
type Track struct {
	ID     string
	Name   string
	Artist string

	Samples     []int16 // interleaved stereo PCM
	SampleRate  int
	NumChannels int
	Duration    float64 // seconds

	// Derived analysis, populated atomically at construction.
	Waveform []float64 // WaveformBuckets mean-abs amplitudes
	BPM      float64
	Key      string
}

// NewTrack decodes encoded audio bytes and derives the display envelope,
// tempo and key before returning. Construction is atomic: on any decode
// failure no Track exists, so a partially analyzed track is never
// observable.
func NewTrack(ffmpegPath, name, artist string, data []byte) (*Track, error) {
	samples, err := DecodeBytes(ffmpegPath, name, data)
	if err != nil {
		return nil, err
	}
	return TrackFromSamples(name, artist, samples), nil
}

// TrackFromSamples builds an analyzed Track from raw interleaved stereo
// samples at the engine rate. Used by the decoder path and by deterministic
// session fixtures.
func TrackFromSamples(name, artist string, samples []int16) *Track {
	if artist == "" {
		artist = DefaultArtist
	}
	mono := FirstChannel(samples, Channels)
	return &Track{
		ID:          uuid.NewString(),
		Name:        name,
		Artist:      artist,
		Samples:     samples,
		SampleRate:  SampleRate,
		NumChannels: Channels,
		Duration:    float64(len(samples)/Channels) / SampleRate,
		Waveform:    WaveformEnvelope(mono, WaveformBuckets),
		BPM:         EstimateBPM(mono, SampleRate),
		Key:         EstimateKey(mono, SampleRate),
	}
}

// TotalFrames returns how many whole 20ms frames the track spans.
func (t *Track) TotalFrames() int {
	return len(t.Samples) / FrameSamples
}

// SampleFrames returns the per-channel sample count.
func (t *Track) SampleFrames() int {
	return len(t.Samples) / Channels
}
