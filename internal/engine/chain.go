package engine

import (
	"fmt"

	"github.com/37-AN/43v3rm1x/internal/audio"
)

// loopRegion is an active loop in per-channel sample indices.
type loopRegion struct {
	start, end int
}

// chain is one live playback run of a track: buffer source -> 3-band EQ ->
// gain -> analyzer tap. A chain is single-use, mirroring one-shot buffer
// sources: play once, stop invalidates it, replaying a track builds a new
// chain.
type chain struct {
	track    *audio.Track
	eq       *audio.ThreeBandEQ
	gain     float64
	analyzer *audio.SpectrumAnalyzer

	cursor  int // per-channel sample position
	started bool
	stopped bool
}

func newChain(t *audio.Track, analyzer *audio.SpectrumAnalyzer) *chain {
	return &chain{
		track:    t,
		eq:       audio.NewThreeBandEQ(audio.SampleRate),
		gain:     1,
		analyzer: analyzer,
	}
}

// play starts the run at the given offset. A chain can only be started
// once and never after stop.
func (c *chain) play(offsetSeconds float64) error {
	if c.started || c.stopped {
		return fmt.Errorf("%w: chain already used", ErrInvalidState)
	}
	c.cursor = int(offsetSeconds * audio.SampleRate)
	if c.cursor < 0 {
		c.cursor = 0
	}
	c.started = true
	return nil
}

// stop invalidates the chain. Idempotent; stopping is immediate, the next
// nextFrame call produces nothing.
func (c *chain) stop() {
	c.stopped = true
}

func (c *chain) positionSeconds() float64 {
	return float64(c.cursor) / audio.SampleRate
}

// nextFrame produces one 20ms frame from the source, wrapping the cursor
// sample-accurately at the loop boundary so repeated wraps cannot drift.
// Returns live=false once the chain is exhausted or stopped.
func (c *chain) nextFrame(region *loopRegion) (frame []int16, live bool) {
	if !c.started || c.stopped {
		return nil, false
	}

	total := c.track.SampleFrames()
	frame = make([]int16, audio.FrameSamples)
	ended := false

	cur := c.cursor
	for j := 0; j < audio.FrameSize; j++ {
		if region != nil && cur >= region.end {
			cur = region.start
		}
		if cur >= total {
			ended = true
			break
		}
		for ch := 0; ch < audio.Channels; ch++ {
			frame[j*audio.Channels+ch] = c.track.Samples[cur*audio.Channels+ch]
		}
		cur++
	}
	// Normalize a cursor parked exactly on the boundary so the playhead is
	// never observed at or past the loop end.
	if region != nil && cur >= region.end {
		cur = region.start
	}
	c.cursor = cur

	c.eq.Process(frame)
	if c.gain != 1 {
		for i := range frame {
			frame[i] = audio.ClipSample(float64(frame[i]) * c.gain)
		}
	}
	c.analyzer.Push(frame)

	if ended {
		c.stopped = true
		return frame, false
	}
	return frame, true
}
