// Package dynamics holds the gain-riding processors: sidechain ducker,
// vintage and bus compressors, a four-band compressor and a true-peak
// limiter. Each one is a graph fragment with a single input and output.
//
// Setters write graph parameters, so while a context is rendering they
// must be called through Context.Command. They take effect on the next
// rendered block.
package dynamics

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

// Processor is the contract every dynamics module satisfies.
type Processor interface {
	graph.Module
	// GainReduction is the current reduction in dB, as a positive number.
	GainReduction() float64
}

// blend is a parallel dry/wet split. The caller routes its wet path from
// in to wet.Node.
type blend struct {
	in, out  *graph.Node
	dry, wet *graph.GainNode
}

func newBlend(ctx *graph.Context, g *graph.Group) *blend {
	b := &blend{
		in:  g.New(ctx, "input", nil),
		out: g.New(ctx, "output", nil),
		dry: graph.NewGain(ctx, 0),
		wet: graph.NewGain(ctx, 1),
	}
	g.Add(b.dry.Node, b.wet.Node)
	b.in.Connect(b.dry.Node).Connect(b.out)
	b.wet.Connect(b.out)
	return b
}

// setMix sets the wet share; 0 is fully dry.
func (b *blend) setMix(mix float64) {
	mix = clamp01(mix)
	b.dry.Gain.SetValue(1 - mix)
	b.wet.Gain.SetValue(mix)
}

// compCore carries the setters shared by the single-band processors.
type compCore struct {
	comp *graph.CompressorNode
}

func (c compCore) SetThreshold(db float64) { c.comp.Threshold.SetValue(db) }
func (c compCore) SetRatio(r float64)      { c.comp.Ratio.SetValue(r) }
func (c compCore) SetKnee(db float64)      { c.comp.Knee.SetValue(db) }
func (c compCore) SetAttack(s float64)     { c.comp.Attack.SetValue(s) }
func (c compCore) SetRelease(s float64)    { c.comp.Release.SetValue(s) }
func (c compCore) SetMakeup(db float64)    { c.comp.Makeup.SetValue(db) }
func (c compCore) GainReduction() float64  { return c.comp.GainReduction() }

// Compressor exposes the underlying node for metering and keying.
func (c compCore) Compressor() *graph.CompressorNode { return c.comp }

func dbToGain(db float64) float64 { return math.Pow(10, db/20) }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// orDefault returns v unless it is zero or not a number.
func orDefault(v, def float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return def
	}
	return v
}
