package audio

import "math"

// EQ band centers mirror a club mixer's isolator layout.
const (
	eqHighShelfHz = 8000
	eqMidPeakHz   = 1000
	eqMidQ        = 1.0
	eqLowShelfHz  = 200
)

// EQGainRangeDB bounds each band's gain.
const EQGainRangeDB = 12.0

// biquad is a direct-form-I second-order section with per-instance state.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// RBJ audio-EQ-cookbook designs, normalized by a0.

func highShelf(freq, gainDB float64, sampleRate int) biquad {
	a := math.Pow(10, gainDB/40)
	w := 2 * math.Pi * freq / float64(sampleRate)
	cosw, sinw := math.Cos(w), math.Sin(w)
	alpha := sinw / 2 * math.Sqrt2

	b0 := a * ((a + 1) + (a-1)*cosw + alpha)
	b1 := -2 * a * ((a - 1) + (a+1)*cosw)
	b2 := a * ((a + 1) + (a-1)*cosw - alpha)
	a0 := (a + 1) - (a-1)*cosw + alpha
	a1 := 2 * ((a - 1) - (a+1)*cosw)
	a2 := (a + 1) - (a-1)*cosw - alpha
	return biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func lowShelf(freq, gainDB float64, sampleRate int) biquad {
	a := math.Pow(10, gainDB/40)
	w := 2 * math.Pi * freq / float64(sampleRate)
	cosw, sinw := math.Cos(w), math.Sin(w)
	alpha := sinw / 2 * math.Sqrt2

	b0 := a * ((a + 1) - (a-1)*cosw + alpha)
	b1 := 2 * a * ((a - 1) - (a+1)*cosw)
	b2 := a * ((a + 1) - (a-1)*cosw - alpha)
	a0 := (a + 1) + (a-1)*cosw + alpha
	a1 := -2 * ((a - 1) + (a+1)*cosw)
	a2 := (a + 1) + (a-1)*cosw - alpha
	return biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func peaking(freq, gainDB, q float64, sampleRate int) biquad {
	a := math.Pow(10, gainDB/40)
	w := 2 * math.Pi * freq / float64(sampleRate)
	cosw, sinw := math.Cos(w), math.Sin(w)
	alpha := sinw / (2 * q)

	b0 := 1 + alpha*a
	b1 := -2 * cosw
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosw
	a2 := 1 - alpha/a
	return biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// ThreeBandEQ chains high-shelf (8kHz), peaking (1kHz, Q=1) and low-shelf
// (200Hz) sections per channel, the same layout the platform mixer exposes.
type ThreeBandEQ struct {
	sampleRate           int
	high, mid, low       [Channels]biquad
	highDB, midDB, lowDB float64
}

// NewThreeBandEQ creates a flat EQ.
func NewThreeBandEQ(sampleRate int) *ThreeBandEQ {
	eq := &ThreeBandEQ{sampleRate: sampleRate}
	eq.rebuild()
	return eq
}

// SetGains updates the band gains in dB, clamped to +/-EQGainRangeDB. New
// coefficients apply from the next processed sample; filter state carries
// over so there is no click.
func (eq *ThreeBandEQ) SetGains(highDB, midDB, lowDB float64) {
	eq.highDB = clampDB(highDB)
	eq.midDB = clampDB(midDB)
	eq.lowDB = clampDB(lowDB)
	eq.rebuild()
}

// Gains returns the current band gains in dB as (high, mid, low).
func (eq *ThreeBandEQ) Gains() (float64, float64, float64) {
	return eq.highDB, eq.midDB, eq.lowDB
}

func (eq *ThreeBandEQ) rebuild() {
	for ch := 0; ch < Channels; ch++ {
		h := highShelf(eqHighShelfHz, eq.highDB, eq.sampleRate)
		m := peaking(eqMidPeakHz, eq.midDB, eqMidQ, eq.sampleRate)
		l := lowShelf(eqLowShelfHz, eq.lowDB, eq.sampleRate)
		// Preserve state across coefficient changes.
		h.x1, h.x2, h.y1, h.y2 = eq.high[ch].x1, eq.high[ch].x2, eq.high[ch].y1, eq.high[ch].y2
		m.x1, m.x2, m.y1, m.y2 = eq.mid[ch].x1, eq.mid[ch].x2, eq.mid[ch].y1, eq.mid[ch].y2
		l.x1, l.x2, l.y1, l.y2 = eq.low[ch].x1, eq.low[ch].x2, eq.low[ch].y1, eq.low[ch].y2
		eq.high[ch], eq.mid[ch], eq.low[ch] = h, m, l
	}
}

// Process filters an interleaved frame in place.
func (eq *ThreeBandEQ) Process(frame []int16) {
	for i := 0; i+Channels <= len(frame); i += Channels {
		for ch := 0; ch < Channels; ch++ {
			x := float64(frame[i+ch])
			y := eq.high[ch].process(x)
			y = eq.mid[ch].process(y)
			y = eq.low[ch].process(y)
			frame[i+ch] = ClipSample(y)
		}
	}
}

func clampDB(v float64) float64 {
	if v > EQGainRangeDB {
		return EQGainRangeDB
	}
	if v < -EQGainRangeDB {
		return -EQGainRangeDB
	}
	return v
}
