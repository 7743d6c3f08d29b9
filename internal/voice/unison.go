package voice

import "math"

// secondaryDetune is the extra pitch of the secondary oscillator, 2% sharp,
// in cents.
var secondaryDetune = 1200 * math.Log2(1.02)

// UnisonDetune returns the detune in cents of unison voice i of n. The
// voices spread evenly across ±25*(detune/10) cents.
func UnisonDetune(i, n int, detune float64) float64 {
	if n <= 1 {
		return 0
	}
	return (float64(i)/float64(n-1) - 0.5) * 50 * (detune / 10)
}

// UnisonPan returns the pan position of unison voice i of n, clamped to
// [-1, 1].
func UnisonPan(i, n int, spread float64) float64 {
	if n <= 1 {
		return 0
	}
	p := (float64(i)/float64(n-1) - 0.5) * 2 * spread
	return math.Max(-1, math.Min(1, p))
}

// UnisonGain keeps the summed level of n voices constant.
func UnisonGain(n int) float64 {
	if n <= 1 {
		return 1
	}
	return 1 / math.Sqrt(float64(n))
}
