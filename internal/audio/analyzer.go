package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const analyzerFFTSize = 2048

// Byte-normalization range, matching the usual -100..-30 dBFS metering window.
const (
	analyzerMinDB = -100.0
	analyzerMaxDB = -30.0
)

// SpectrumAnalyzer taps a PCM stream and produces byte-normalized frequency
// snapshots for metering and visualization. It keeps a ring of the most
// recent 2048 mono samples; Bins is safe to call from any goroutine.
type SpectrumAnalyzer struct {
	mu     sync.Mutex
	ring   [analyzerFFTSize]float64
	pos    int
	fft    *fourier.FFT
	window []float64
}

// NewSpectrumAnalyzer creates an analyzer tap.
func NewSpectrumAnalyzer() *SpectrumAnalyzer {
	return &SpectrumAnalyzer{
		fft:    fourier.NewFFT(analyzerFFTSize),
		window: hannWindow(analyzerFFTSize),
	}
}

// Push feeds an interleaved stereo frame into the ring, folding channel
// pairs to mono.
func (a *SpectrumAnalyzer) Push(frame []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(frame); i += Channels {
		mono := (float64(frame[i]) + float64(frame[i+1])) / 2 / 32768
		a.ring[a.pos] = mono
		a.pos = (a.pos + 1) % analyzerFFTSize
	}
}

// Bins returns the current spectrum grouped into n bands, each normalized
// to 0-255.
func (a *SpectrumAnalyzer) Bins(n int) []byte {
	if n <= 0 || n > analyzerFFTSize/2 {
		n = 64
	}

	buf := make([]float64, analyzerFFTSize)
	a.mu.Lock()
	for i := 0; i < analyzerFFTSize; i++ {
		buf[i] = a.ring[(a.pos+i)%analyzerFFTSize] * a.window[i]
	}
	// The FFT plan has internal scratch state, so the transform itself must
	// also run under the lock.
	coeffs := a.fft.Coefficients(nil, buf)
	a.mu.Unlock()
	half := analyzerFFTSize / 2
	perBand := half / n

	out := make([]byte, n)
	for band := 0; band < n; band++ {
		sum := 0.0
		for k := 0; k < perBand; k++ {
			sum += cmplxAbs(coeffs[band*perBand+k])
		}
		mag := sum / float64(perBand) / float64(half)
		db := 20 * math.Log10(mag+1e-12)
		norm := (db - analyzerMinDB) / (analyzerMaxDB - analyzerMinDB)
		if norm < 0 {
			norm = 0
		}
		if norm > 1 {
			norm = 1
		}
		out[band] = byte(norm * 255)
	}
	return out
}
