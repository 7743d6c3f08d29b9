// Package effects holds the colour and time stages of a voice chain:
// distortion, saturation, chorus, delay and convolution reverb. Every
// effect is a graph fragment with one input and one output.
package effects

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

// Tailer is implemented by effects that keep sounding after their input
// stops.
type Tailer interface {
	Tail() float64
}

// Chain wires modules in series.
type Chain struct {
	modules []graph.Module
	in, out *graph.Node
	group   graph.Group
}

// NewChain connects modules in order between a fresh input and output
// node. An empty chain passes its input straight through.
func NewChain(ctx *graph.Context, modules ...graph.Module) *Chain {
	c := &Chain{}
	c.in = c.group.New(ctx, "chain-in", nil)
	c.out = c.group.New(ctx, "chain-out", nil)
	c.in.Connect(c.out)
	for _, m := range modules {
		c.Add(m)
	}
	return c
}

func (c *Chain) last() *graph.Node {
	if len(c.modules) == 0 {
		return c.in
	}
	return c.modules[len(c.modules)-1].Output()
}

// Add appends m after the last module.
func (c *Chain) Add(m graph.Module) {
	prev := c.last()
	prev.DisconnectFrom(c.out)
	prev.Connect(m.Input())
	m.Output().Connect(c.out)
	c.modules = append(c.modules, m)
}

func (c *Chain) Input() *graph.Node      { return c.in }
func (c *Chain) Output() *graph.Node     { return c.out }
func (c *Chain) Len() int                { return len(c.modules) }
func (c *Chain) Modules() []graph.Module { return c.modules }

// Tail is the longest tail of any module in the chain.
func (c *Chain) Tail() float64 {
	var t float64
	for _, m := range c.modules {
		if tm, ok := m.(Tailer); ok {
			t = math.Max(t, tm.Tail())
		}
	}
	return t
}

// Dispose tears down every module and the chain's own nodes.
func (c *Chain) Dispose() {
	if c.group.Disposed() {
		return
	}
	for _, m := range c.modules {
		m.Dispose()
	}
	c.group.Dispose()
}

// wetDry is a parallel dry/wet split around a wet path the caller wires
// from in to wet.
type wetDry struct {
	in, out  *graph.Node
	dry, wet *graph.GainNode
}

func newWetDry(ctx *graph.Context, g *graph.Group, mix float64) *wetDry {
	w := &wetDry{
		in:  g.New(ctx, "input", nil),
		out: g.New(ctx, "output", nil),
		dry: graph.NewGain(ctx, 1),
		wet: graph.NewGain(ctx, 0),
	}
	g.Add(w.dry.Node, w.wet.Node)
	w.in.Connect(w.dry.Node).Connect(w.out)
	w.wet.Connect(w.out)
	w.setMix(mix)
	return w
}

func (w *wetDry) setMix(mix float64) {
	mix = clamp(mix, 0, 1)
	w.dry.Gain.SetValue(1 - mix)
	w.wet.Gain.SetValue(mix)
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
