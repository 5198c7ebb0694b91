package audio

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// WaveformBuckets is the fixed length of the display envelope.
	WaveformBuckets = 1000

	// DefaultBPM is returned when no usable peaks are found.
	DefaultBPM = 120

	bpmAnalysisSeconds = 30
	bpmHighpassHz      = 200
	minBPM             = 60
	maxBPM             = 200

	chromaFFTSize = 4096
)

// FirstChannel extracts channel 0 of an interleaved buffer as float64
// samples normalized to [-1, 1].
func FirstChannel(samples []int16, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	out := make([]float64, len(samples)/channels)
	for i := range out {
		out[i] = float64(samples[i*channels]) / 32768
	}
	return out
}

// WaveformEnvelope partitions the signal into exactly n contiguous blocks
// and returns the mean absolute amplitude of each. It is a lossy display
// summary, never used for mixing.
func WaveformEnvelope(mono []float64, n int) []float64 {
	env := make([]float64, n)
	blockSize := len(mono) / n
	if blockSize == 0 {
		for i := range env {
			if i < len(mono) {
				env[i] = math.Abs(mono[i])
			}
		}
		return env
	}
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < blockSize; j++ {
			sum += math.Abs(mono[i*blockSize+j])
		}
		env[i] = sum / float64(blockSize)
	}
	return env
}

// EstimateBPM guesses the tempo of a track from its first 30 seconds.
// The method is a coarse onset heuristic, not a production beat tracker:
// high-pass to emphasize percussive transients, pick local maxima at least
// 1/20th of a second apart, convert inter-peak intervals to BPM candidates
// in [60,200], and return the most frequent one. Expect roughly +/-2 BPM on
// clean material; treat the result as approximate, not authoritative.
func EstimateBPM(mono []float64, sampleRate int) float64 {
	analysisLen := bpmAnalysisSeconds * sampleRate
	if analysisLen > len(mono) {
		analysisLen = len(mono)
	}
	filtered := highpass(mono[:analysisLen], sampleRate, bpmHighpassHz)
	peaks := findPeaks(filtered, sampleRate/20)
	if len(peaks) < 2 {
		return DefaultBPM
	}

	counts := make(map[int]int)
	for i := 1; i < len(peaks); i++ {
		interval := peaks[i] - peaks[i-1]
		bpm := int(math.Round(60 * float64(sampleRate) / float64(interval)))
		if bpm >= minBPM && bpm <= maxBPM {
			counts[bpm]++
		}
	}
	if len(counts) == 0 {
		return DefaultBPM
	}

	// Iterate candidates in ascending order so ties resolve deterministically.
	candidates := make([]int, 0, len(counts))
	for bpm := range counts {
		candidates = append(candidates, bpm)
	}
	sort.Ints(candidates)

	best, bestCount := DefaultBPM, 0
	for _, bpm := range candidates {
		if counts[bpm] > bestCount {
			best, bestCount = bpm, counts[bpm]
		}
	}
	return float64(best)
}

// highpass applies a single-pole high-pass filter, leaving low-frequency
// content attenuated so beat transients dominate.
func highpass(data []float64, sampleRate int, cutoffHz float64) []float64 {
	rc := 1.0 / (cutoffHz * 2 * math.Pi)
	dt := 1.0 / float64(sampleRate)
	alpha := rc / (rc + dt)

	filtered := make([]float64, len(data))
	if len(data) == 0 {
		return filtered
	}
	filtered[0] = data[0]
	for i := 1; i < len(data); i++ {
		filtered[i] = alpha * (filtered[i-1] + data[i] - data[i-1])
	}
	return filtered
}

// findPeaks returns indices of local maxima separated by at least
// minDistance samples, rejecting double-triggered onsets.
func findPeaks(data []float64, minDistance int) []int {
	var peaks []int
	for i := 1; i < len(data)-1; i++ {
		if data[i] > data[i-1] && data[i] > data[i+1] {
			if len(peaks) == 0 || i-peaks[len(peaks)-1] >= minDistance {
				peaks = append(peaks, i)
			}
		}
	}
	return peaks
}

var pitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Krumhansl-Schmuckler key profiles, tonic first.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// EstimateKey guesses the musical key by folding the spectrum of the first
// 30 seconds into a 12-bin chroma vector and correlating it against the 24
// major/minor reference profiles. Minor keys carry an "m" suffix. Like the
// tempo estimate, this is a heuristic; ties break toward the
// first-encountered maximum (C..B, major before minor).
func EstimateKey(mono []float64, sampleRate int) string {
	chroma := chromaVector(mono, sampleRate)

	sum := 0.0
	for _, v := range chroma {
		sum += v
	}
	if sum == 0 {
		return pitchClassNames[0]
	}

	bestKey := pitchClassNames[0]
	bestScore := math.Inf(-1)
	for k := 0; k < 12; k++ {
		if score := correlate(chroma, rotateProfile(majorProfile, k)); score > bestScore {
			bestScore = score
			bestKey = pitchClassNames[k]
		}
		if score := correlate(chroma, rotateProfile(minorProfile, k)); score > bestScore {
			bestScore = score
			bestKey = pitchClassNames[k] + "m"
		}
	}
	return bestKey
}

// chromaVector accumulates Hann-windowed FFT magnitudes over the first 30
// seconds into the 12 pitch classes.
func chromaVector(mono []float64, sampleRate int) [12]float64 {
	var chroma [12]float64

	limit := bpmAnalysisSeconds * sampleRate
	if limit > len(mono) {
		limit = len(mono)
	}
	if limit < chromaFFTSize {
		return chroma
	}

	fft := fourier.NewFFT(chromaFFTSize)
	window := hannWindow(chromaFFTSize)
	buf := make([]float64, chromaFFTSize)

	for start := 0; start+chromaFFTSize <= limit; start += chromaFFTSize {
		for i := 0; i < chromaFFTSize; i++ {
			buf[i] = mono[start+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, buf)
		for bin := 1; bin < chromaFFTSize/2; bin++ {
			freq := float64(bin) * float64(sampleRate) / chromaFFTSize
			if freq < 27.5 || freq > 5000 {
				continue
			}
			midi := 69 + 12*math.Log2(freq/440)
			pc := ((int(math.Round(midi)) % 12) + 12) % 12
			chroma[pc] += cmplxAbs(coeffs[bin])
		}
	}
	return chroma
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func rotateProfile(profile [12]float64, key int) [12]float64 {
	var out [12]float64
	for pc := 0; pc < 12; pc++ {
		out[pc] = profile[(pc-key+12)%12]
	}
	return out
}

// correlate computes the Pearson correlation between a chroma vector and a
// key profile.
func correlate(a, b [12]float64) float64 {
	var meanA, meanB float64
	for i := 0; i < 12; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= 12
	meanB /= 12

	var num, denA, denB float64
	for i := 0; i < 12; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	if denA == 0 || denB == 0 {
		return 0
	}
	return num / math.Sqrt(denA*denB)
}
