package graph

// WaveShaperNode maps each sample through a transfer curve sampled over
// [-1, 1]. Inputs outside that range clamp to the curve ends.
type WaveShaperNode struct {
	*Node
	curve []float32
}

func NewWaveShaper(ctx *Context, curve []float32) *WaveShaperNode {
	w := &WaveShaperNode{curve: curve}
	w.Node = NewNode(ctx, "waveshaper", w)
	return w
}

// SetCurve swaps the transfer curve. Curves are shared read-only, so the
// slice is not copied.
func (w *WaveShaperNode) SetCurve(curve []float32) { w.curve = curve }

func (w *WaveShaperNode) Curve() []float32 { return w.curve }

func (w *WaveShaperNode) Process(l, r float32) (float32, float32) {
	if len(w.curve) < 2 {
		return l, r
	}
	return Shape(w.curve, l), Shape(w.curve, r)
}

// Shape looks x up in curve with linear interpolation.
func Shape(curve []float32, x float32) float32 {
	n := len(curve)
	if n == 0 {
		return x
	}
	if n == 1 {
		return curve[0]
	}
	pos := (x + 1) * 0.5 * float32(n-1)
	if pos <= 0 {
		return curve[0]
	}
	if pos >= float32(n-1) {
		return curve[n-1]
	}
	i := int(pos)
	frac := pos - float32(i)
	return curve[i] + (curve[i+1]-curve[i])*frac
}
