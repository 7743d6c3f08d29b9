package graph

import "math"

type GainNode struct {
	*Node
	Gain *Param
}

func NewGain(ctx *Context, gain float64) *GainNode {
	g := &GainNode{Gain: NewParam(ctx, gain, -math.MaxFloat32, math.MaxFloat32)}
	g.Node = NewNode(ctx, "gain", g)
	return g
}

func (g *GainNode) Process(l, r float32) (float32, float32) {
	k := float32(g.Gain.Value())
	return l * k, r * k
}

// PannerNode is an equal-power panner for a mono source. Its input is
// folded to mono first, so a voice pans the same whichever channel carries
// it. Pan runs from -1 (left) to 1 (right).
type PannerNode struct {
	*Node
	Pan *Param
}

func NewPanner(ctx *Context, pan float64) *PannerNode {
	p := &PannerNode{Pan: NewParam(ctx, pan, -1, 1)}
	p.Node = NewNode(ctx, "panner", p)
	return p
}

func (p *PannerNode) Process(l, r float32) (float32, float32) {
	gl, gr := EqualPowerGains(p.Pan.Value())
	m := float64(l+r) * 0.5
	return float32(m * gl), float32(m * gr)
}

// EqualPowerGains returns the left/right gains a mono signal receives at pan.
func EqualPowerGains(pan float64) (float64, float64) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	x := (pan + 1) * math.Pi / 4
	return math.Cos(x), math.Sin(x)
}
