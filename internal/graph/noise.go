package graph

import "math/rand"

type NoiseColor int

const (
	WhiteNoise NoiseColor = iota
	PinkNoise
	BrownNoise
)

// NoiseNode is a seeded noise source. The same seed renders the same
// sequence, which keeps offline renders reproducible.
type NoiseNode struct {
	*Node
	color NoiseColor
	rng   *rand.Rand

	b0, b1, b2, b3, b4, b5, b6 float64
	brown                      float64
}

func NewNoise(ctx *Context, color NoiseColor, seed int64) *NoiseNode {
	n := &NoiseNode{color: color, rng: rand.New(rand.NewSource(seed))}
	n.Node = NewSource(ctx, "noise", n)
	return n
}

func (n *NoiseNode) Generate() (float32, float32) {
	white := n.rng.Float64()*2 - 1
	var v float64
	switch n.color {
	case PinkNoise:
		n.b0 = 0.99886*n.b0 + white*0.0555179
		n.b1 = 0.99332*n.b1 + white*0.0750759
		n.b2 = 0.96900*n.b2 + white*0.1538520
		n.b3 = 0.86650*n.b3 + white*0.3104856
		n.b4 = 0.55000*n.b4 + white*0.5329522
		n.b5 = -0.7616*n.b5 - white*0.0168980
		v = (n.b0 + n.b1 + n.b2 + n.b3 + n.b4 + n.b5 + n.b6 + white*0.5362) * 0.11
		n.b6 = white * 0.115926
	case BrownNoise:
		n.brown = (n.brown + 0.02*white) / 1.02
		v = n.brown * 3.5
	default:
		v = white
	}
	s := float32(v)
	return s, s
}
