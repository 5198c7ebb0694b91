package engine

import (
	"fmt"
	"sync"

	"github.com/37-AN/43v3rm1x/internal/audio"
)

// CueSource selects what feeds the headphone monitor.
type CueSource string

const (
	CueDeckA  CueSource = "A"
	CueDeckB  CueSource = "B"
	CueMaster CueSource = "Master"
)

// Mixer is the session-wide bus: two inputs, one equal-power crossfader,
// one master output with an analyzer tap. It knows nothing about decks or
// transport; crossfader updates are last-write-wins.
type Mixer struct {
	mu              sync.Mutex
	crossfader      float64 // 0-100, 0 = full A
	leftGain        float64
	rightGain       float64
	masterVolume    float64 // 0-100
	headphoneVolume float64 // 0-100
	cueSource       CueSource
	analyzer        *audio.SpectrumAnalyzer
}

// NewMixer creates a mixer with the crossfader at the given position.
func NewMixer(crossfader float64) *Mixer {
	m := &Mixer{
		masterVolume:    100,
		headphoneVolume: 100,
		cueSource:       CueMaster,
		analyzer:        audio.NewSpectrumAnalyzer(),
	}
	m.SetCrossfader(crossfader)
	return m
}

// SetCrossfader moves the crossfader (0-100, clamped) and applies the
// equal-power law to the two bus gains.
func (m *Mixer) SetCrossfader(position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.crossfader = clamp(position, 0, 100)
	m.leftGain, m.rightGain = audio.EqualPowerGains(m.crossfader / 100)
}

// Gains returns the current bus gains as (left, right).
func (m *Mixer) Gains() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leftGain, m.rightGain
}

// Crossfader returns the current position (0-100).
func (m *Mixer) Crossfader() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crossfader
}

// SetMasterVolume sets the master output level (0-100, clamped).
func (m *Mixer) SetMasterVolume(volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterVolume = clamp(volume, 0, 100)
}

// SetHeadphoneVolume sets the monitor level (0-100, clamped).
func (m *Mixer) SetHeadphoneVolume(volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headphoneVolume = clamp(volume, 0, 100)
}

// SetCueSource routes the headphone monitor to deck A, deck B or the
// master mix.
func (m *Mixer) SetCueSource(src CueSource) error {
	switch src {
	case CueDeckA, CueDeckB, CueMaster:
	default:
		return fmt.Errorf("%w: cue source %q", ErrInvalidRange, src)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cueSource = src
	return nil
}

// Analyzer exposes the master spectrum tap.
func (m *Mixer) Analyzer() *audio.SpectrumAnalyzer { return m.analyzer }

// Mix blends one frame from each bus side into a master frame, applying
// the crossfader gains and master volume, then taps the master analyzer.
// Nil inputs are treated as silence.
func (m *Mixer) Mix(left, right []int16) []int16 {
	m.mu.Lock()
	lg, rg := m.leftGain, m.rightGain
	master := m.masterVolume / 100
	m.mu.Unlock()

	if left == nil {
		left = make([]int16, audio.FrameSamples)
	}
	if right == nil {
		right = make([]int16, audio.FrameSamples)
	}
	out := audio.MixFrames(left, right, lg*master, rg*master)
	m.analyzer.Push(out)
	return out
}

// MixerSnapshot is the mixer state handed to the presentation layer.
type MixerSnapshot struct {
	Crossfader      float64   `json:"crossfader"`
	LeftGain        float64   `json:"leftGain"`
	RightGain       float64   `json:"rightGain"`
	MasterVolume    float64   `json:"masterVolume"`
	HeadphoneVolume float64   `json:"headphoneVolume"`
	CueSource       CueSource `json:"cueSource"`
}

// Snapshot returns a copy of the mixer's observable state.
func (m *Mixer) Snapshot() MixerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MixerSnapshot{
		Crossfader:      m.crossfader,
		LeftGain:        m.leftGain,
		RightGain:       m.rightGain,
		MasterVolume:    m.masterVolume,
		HeadphoneVolume: m.headphoneVolume,
		CueSource:       m.cueSource,
	}
}
