package effects

import (
	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

// Distortion is a waveshaper driven by a precomputed amount curve,
// followed by a lowpass that tames the added top end.
type Distortion struct {
	group  graph.Group
	shaper *graph.WaveShaperNode
	tone   *graph.BiquadNode
	post   *graph.GainNode
	amount float64
}

// distortionTone is the lowpass cutoff after the shaper in Hz.
const distortionTone = 8000

func NewDistortion(ctx *graph.Context, amount float64) *Distortion {
	d := &Distortion{
		shaper: graph.NewWaveShaper(ctx, nil),
		tone:   graph.NewBiquad(ctx, graph.Lowpass, distortionTone, 0.7071),
		post:   graph.NewGain(ctx, 1),
	}
	d.group.Add(d.shaper.Node, d.tone.Node, d.post.Node)
	d.shaper.Connect(d.tone.Node).Connect(d.post.Node)
	d.SetAmount(amount)
	return d
}

func (d *Distortion) Input() *graph.Node  { return d.shaper.Node }
func (d *Distortion) Output() *graph.Node { return d.post.Node }
func (d *Distortion) Dispose()            { d.group.Dispose() }
func (d *Distortion) Amount() float64     { return d.amount }

// SetAmount picks the curve for amount in [0, 1]. Heavier settings are
// pulled back in level so the stage does not just get louder.
func (d *Distortion) SetAmount(amount float64) {
	d.amount = clamp(amount, 0, 1)
	d.shaper.SetCurve(curves.Get(curves.Distortion, d.amount))
	d.post.Gain.SetValue(1 - 0.3*d.amount)
}
