package filters

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

// Biquad is a second-order filter with an optional drive stage in front.
type Biquad struct {
	group  graph.Group
	drive  *graph.WaveShaperNode
	pre    *graph.GainNode
	filter *graph.BiquadNode
}

func NewBiquad(ctx *graph.Context, typ graph.FilterType, cutoff, resonance float64) *Biquad {
	b := &Biquad{
		pre:    graph.NewGain(ctx, 1),
		drive:  graph.NewWaveShaper(ctx, nil),
		filter: graph.NewBiquad(ctx, typ, ClampCutoff(cutoff, ctx.SampleRate()), resonanceToQ(0)),
	}
	b.SetResonance(resonance)
	b.group.Add(b.pre.Node, b.drive.Node, b.filter.Node)
	b.pre.Connect(b.drive.Node).Connect(b.filter.Node)
	return b
}

// resonanceToQ maps [0, 0.99] onto Q from Butterworth to a sharp peak.
func resonanceToQ(r float64) float64 {
	return math.Sqrt2/2 + ClampResonance(r)*12
}

func (b *Biquad) Kind() Kind              { return KindBiquad }
func (b *Biquad) Input() *graph.Node      { return b.pre.Node }
func (b *Biquad) Output() *graph.Node     { return b.filter.Node }
func (b *Biquad) Cutoff() *graph.Param    { return b.filter.Frequency }
func (b *Biquad) Node() *graph.BiquadNode { return b.filter }
func (b *Biquad) Dispose()                { b.group.Dispose() }

func (b *Biquad) SetCutoff(hz float64) {
	b.filter.Frequency.SetValue(ClampCutoff(hz, b.filter.Context().SampleRate()))
}

func (b *Biquad) SetResonance(r float64) {
	b.filter.Q.SetValue(resonanceToQ(r))
}

// SetDrive enables a tanh drive stage for d > 0.
func (b *Biquad) SetDrive(d float64) {
	d = clamp01(d)
	if d == 0 {
		b.pre.Gain.SetValue(1)
		b.drive.SetCurve(nil)
		return
	}
	b.pre.Gain.SetValue(1 + d*3)
	b.drive.SetCurve(curves.Get(curves.SoftTanh, d))
}
