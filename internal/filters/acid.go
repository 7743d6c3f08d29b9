package filters

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	acidStages          = 3
	acidFeedbackCeiling = 3.2
	acidEnvelopeRangeHz = 5000
	acidDefaultDecay    = 0.2
	acidMaxCutoffHz     = 20000
)

// Acid is a three-pole (18 dB/oct) resonant lowpass with an asymmetric
// overdrive in front and a per-note cutoff envelope. TriggerEnvelope fires
// the envelope independently of note on and off.
type Acid struct {
	group graph.Group
	node  *graph.Node

	cutoff    *graph.Param
	resonance *graph.Param
	inputGain *graph.Param

	base   float64
	envMod float64
	accent float64
	decay  float64

	sr    float64
	curve []float32
	state [2][acidStages]float64
}

func NewAcid(ctx *graph.Context, cutoff, resonance float64) *Acid {
	sr := ctx.SampleRate()
	a := &Acid{
		cutoff:    graph.NewParam(ctx, ClampCutoff(cutoff, sr), 20, acidMaxCutoffHz),
		resonance: graph.NewParam(ctx, ClampResonance(resonance), 0, 0.99),
		inputGain: graph.NewParam(ctx, 1, 0, 4),
		base:      ClampCutoff(cutoff, sr),
		decay:     acidDefaultDecay,
		sr:        sr,
	}
	a.SetDrive(0)
	a.node = a.group.New(ctx, "acid", a)
	return a
}

func (a *Acid) Kind() Kind              { return KindAcid }
func (a *Acid) Input() *graph.Node      { return a.node }
func (a *Acid) Output() *graph.Node     { return a.node }
func (a *Acid) Cutoff() *graph.Param    { return a.cutoff }
func (a *Acid) Resonance() *graph.Param { return a.resonance }
func (a *Acid) InputGain() *graph.Param { return a.inputGain }
func (a *Acid) Dispose()                { a.group.Dispose() }

// SetCutoff sets the base cutoff the envelope decays back to.
func (a *Acid) SetCutoff(hz float64) {
	a.base = ClampCutoff(hz, a.sr)
	a.cutoff.SetValue(a.base)
}

func (a *Acid) SetResonance(r float64) { a.resonance.SetValue(ClampResonance(r)) }

// SetDrive selects the overdrive curve; 0 is a gentle asymmetric clip.
func (a *Acid) SetDrive(d float64) { a.curve = curves.Get(curves.AsymmetricClip, clamp01(d)) }

// SetEnvMod sets the envelope depth in [0, 1] of the 5 kHz range.
func (a *Acid) SetEnvMod(m float64) { a.envMod = clamp01(m) }

func (a *Acid) SetAccent(v float64) { a.accent = clamp01(v) }

// SetDecay sets the envelope decay time in seconds.
func (a *Acid) SetDecay(seconds float64) {
	if seconds > 0 && !math.IsInf(seconds, 0) {
		a.decay = seconds
	}
}

// PeakCutoff is the cutoff the envelope jumps to for velocity.
func (a *Acid) PeakCutoff(velocity float64) float64 {
	v := clamp01(velocity)
	peak := a.base + a.envMod*acidEnvelopeRangeHz*v*(1+a.accent*v*0.5)
	return math.Min(peak, acidMaxCutoffHz)
}

// TriggerEnvelope jumps the cutoff to its peak at time at and decays it
// exponentially back to the base cutoff. An envelope still decaying at at
// runs until at and is replaced from there. Accent lifts the input gain
// for the same stretch.
func (a *Acid) TriggerEnvelope(at, velocity float64) {
	v := clamp01(velocity)
	a.cutoff.CancelAndHoldAtTime(at)
	a.cutoff.SetValueAtTime(a.PeakCutoff(v), at)
	a.cutoff.ExponentialRampToValueAtTime(a.base, at+a.decay)

	a.inputGain.CancelAndHoldAtTime(at)
	a.inputGain.SetValueAtTime(1+a.accent*v, at)
	a.inputGain.SetTargetAtTime(1, at, a.decay/3)
}

// Reset clears the integrator state.
func (a *Acid) Reset() { a.state = [2][acidStages]float64{} }

func (a *Acid) Process(inL, inR float32) (float32, float32) {
	p := newOnePole(ClampCutoff(a.cutoff.Value(), a.sr), a.sr)
	res := ClampResonance(a.resonance.Value())
	fb := math.Min(res*3.5, acidFeedbackCeiling)
	in := float32(a.inputGain.Value())
	out := 1 - res*0.4
	outL := a.tick(0, float64(graph.Shape(a.curve, inL*in)), p, fb) * out
	outR := a.tick(1, float64(graph.Shape(a.curve, inR*in)), p, fb) * out
	return float32(outL), float32(outR)
}

func (a *Acid) tick(ch int, x float64, p onePole, fb float64) float64 {
	return feedbackCascade(a.state[ch][:], p, x, fb, 0)
}
