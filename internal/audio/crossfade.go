package audio

import "math"

// EqualPowerGains returns the bus gains for a crossfader position in [0,1]
// (0 = full left, 1 = full right). left^2 + right^2 == 1 at every position,
// so perceived loudness stays constant through the fade.
func EqualPowerGains(position float64) (left, right float64) {
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}
	return math.Cos(position * math.Pi / 2), math.Sin(position * math.Pi / 2)
}

// MixFrames sums two equal-length frames with per-frame gains, clipping to
// the int16 range.
func MixFrames(left, right []int16, leftGain, rightGain float64) []int16 {
	out := make([]int16, len(left))
	for i := range left {
		mixed := float64(left[i])*leftGain + float64(right[i])*rightGain
		out[i] = ClipSample(mixed)
	}
	return out
}
