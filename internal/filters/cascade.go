package filters

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// onePole holds the shared coefficient of a chain of trapezoidal one-pole
// lowpass stages at one cutoff.
type onePole struct {
	g    float64 // G = g/(1+g)
	beta float64 // 1 - G
}

func newOnePole(fc, sampleRate float64) onePole {
	g := math.Tan(math.Pi * fc / sampleRate)
	G := g / (1 + g)
	return onePole{g: G, beta: 1 - G}
}

// feedbackCascade runs a chain of one-pole stages with resonance feedback
// from the last stage into a tanh at the chain input. The loop is solved
// without a unit delay, so the oscillation threshold of k does not move
// with the cutoff: 4 for four stages.
func feedbackCascade(s []float64, p onePole, x, k, excite float64) float64 {
	gn, est := 1.0, 0.0
	for i := len(s) - 1; i >= 0; i-- {
		est += gn * s[i]
		gn *= p.g
	}
	est *= p.beta
	y := (gn*x + est) / (1 + k*gn)
	u := math.Tanh(x - k*y + excite)
	for i := range s {
		v := (u - s[i]) * p.g
		lp := v + s[i]
		s[i] = dspcore.FlushDenormals(lp + v)
		u = lp
	}
	return u
}
