package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/37-AN/43v3rm1x/internal/audio"
)

func TestMixerCrossfaderGains(t *testing.T) {
	m := NewMixer(50)

	l, r := m.Gains()
	want := math.Sqrt(2) / 2
	if math.Abs(l-want) > 1e-12 || math.Abs(r-want) > 1e-12 {
		t.Errorf("center gains = (%v, %v), want both %v", l, r, want)
	}

	m.SetCrossfader(0)
	l, r = m.Gains()
	if l != 1 || r != 0 {
		t.Errorf("full-A gains = (%v, %v), want (1, 0)", l, r)
	}

	m.SetCrossfader(100)
	l, r = m.Gains()
	if math.Abs(l) > 1e-15 || r != 1 {
		t.Errorf("full-B gains = (%v, %v), want (0, 1)", l, r)
	}
}

func TestMixerCrossfaderClamps(t *testing.T) {
	m := NewMixer(50)
	m.SetCrossfader(180)
	if got := m.Crossfader(); got != 100 {
		t.Errorf("Crossfader after 180 = %v, want 100", got)
	}
	m.SetCrossfader(-40)
	if got := m.Crossfader(); got != 0 {
		t.Errorf("Crossfader after -40 = %v, want 0", got)
	}
}

func TestMixerConstantPowerAcrossTravel(t *testing.T) {
	m := NewMixer(0)
	for p := 0.0; p <= 100; p += 5 {
		m.SetCrossfader(p)
		l, r := m.Gains()
		if sum := l*l + r*r; math.Abs(sum-1) > 1e-12 {
			t.Errorf("power at crossfader %v is %v, want 1", p, sum)
		}
	}
}

func TestMixerMixSilenceForNilInputs(t *testing.T) {
	m := NewMixer(50)
	out := m.Mix(nil, nil)
	if len(out) != audio.FrameSamples {
		t.Fatalf("mix frame length = %d, want %d", len(out), audio.FrameSamples)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("silent mix sample %d = %d, want 0", i, v)
		}
	}
}

func TestMixerMixAppliesGains(t *testing.T) {
	m := NewMixer(0) // full A
	left := make([]int16, audio.FrameSamples)
	right := make([]int16, audio.FrameSamples)
	for i := range left {
		left[i] = 1000
		right[i] = 30000
	}
	out := m.Mix(left, right)
	for i, v := range out {
		if v != 1000 {
			t.Fatalf("full-A mix sample %d = %d, want 1000", i, v)
		}
	}
}

func TestMixerMasterVolumeScales(t *testing.T) {
	m := NewMixer(0)
	m.SetMasterVolume(50)
	left := make([]int16, audio.FrameSamples)
	for i := range left {
		left[i] = 1000
	}
	out := m.Mix(left, nil)
	if out[0] != 500 {
		t.Errorf("half master sample = %d, want 500", out[0])
	}

	m.SetMasterVolume(500)
	if got := m.Snapshot().MasterVolume; got != 100 {
		t.Errorf("master volume clamped to %v, want 100", got)
	}
}

func TestMixerCueSource(t *testing.T) {
	m := NewMixer(50)
	if got := m.Snapshot().CueSource; got != CueMaster {
		t.Errorf("default cue source = %v, want master", got)
	}
	if err := m.SetCueSource(CueDeckA); err != nil {
		t.Fatal(err)
	}
	if err := m.SetCueSource("X"); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("invalid cue source: err = %v, want ErrInvalidRange", err)
	}
	if got := m.Snapshot().CueSource; got != CueDeckA {
		t.Errorf("cue source after rejected set = %v, want A", got)
	}
}
