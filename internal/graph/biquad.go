package graph

import (
	"fmt"
	"math"
	"strings"
)

type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
	Notch
	Allpass
	Peaking
	Lowshelf
	Highshelf
)

func ParseFilterType(s string) (FilterType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lowpass", "":
		return Lowpass, nil
	case "highpass":
		return Highpass, nil
	case "bandpass":
		return Bandpass, nil
	case "notch":
		return Notch, nil
	case "allpass":
		return Allpass, nil
	case "peaking":
		return Peaking, nil
	case "lowshelf":
		return Lowshelf, nil
	case "highshelf":
		return Highshelf, nil
	}
	return Lowpass, fmt.Errorf("unknown filter type %q", s)
}

// BiquadNode is a stereo RBJ biquad whose frequency, Q and gain are
// automatable. Coefficients are recomputed only when a parameter moves.
type BiquadNode struct {
	*Node
	Frequency *Param
	Q         *Param
	Gain      *Param

	typ FilterType
	sr  float64

	lastF, lastQ, lastG float64
	b0, b1, b2, a1, a2  float64
	x1, x2, y1, y2      [2]float64
}

func NewBiquad(ctx *Context, typ FilterType, freq, q float64) *BiquadNode {
	sr := ctx.SampleRate()
	b := &BiquadNode{
		Frequency: NewParam(ctx, freq, 10, sr/2),
		Q:         NewParam(ctx, q, 0.0001, 1000),
		Gain:      NewParam(ctx, 0, -40, 40),
		typ:       typ,
		sr:        sr,
		lastF:     -1,
	}
	b.Node = NewNode(ctx, "biquad", b)
	return b
}

func (b *BiquadNode) Type() FilterType { return b.typ }

func (b *BiquadNode) SetType(t FilterType) {
	b.typ = t
	b.lastF = -1
}

func (b *BiquadNode) Process(l, r float32) (float32, float32) {
	f, q, g := b.Frequency.Value(), b.Q.Value(), b.Gain.Value()
	if f != b.lastF || q != b.lastQ || g != b.lastG {
		b.design(f, q, g)
		b.lastF, b.lastQ, b.lastG = f, q, g
	}
	return float32(b.tick(0, float64(l))), float32(b.tick(1, float64(r)))
}

func (b *BiquadNode) tick(ch int, x float64) float64 {
	y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
	if math.Abs(y) < 1e-20 {
		y = 0
	}
	b.x2[ch], b.x1[ch] = b.x1[ch], x
	b.y2[ch], b.y1[ch] = b.y1[ch], y
	return y
}

// Reset clears the filter memory.
func (b *BiquadNode) Reset() {
	b.x1, b.x2, b.y1, b.y2 = [2]float64{}, [2]float64{}, [2]float64{}, [2]float64{}
}

func (b *BiquadNode) design(freq, q, gainDB float64) {
	w0 := 2 * math.Pi * freq / b.sr
	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / (2 * q)
	A := math.Pow(10, gainDB/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.typ {
	case Highpass:
		b0 = (1 + cw) / 2
		b1 = -(1 + cw)
		b2 = b0
		a0, a1, a2 = 1+alpha, -2*cw, 1-alpha
	case Bandpass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cw, 1-alpha
	case Notch:
		b0, b1, b2 = 1, -2*cw, 1
		a0, a1, a2 = 1+alpha, -2*cw, 1-alpha
	case Allpass:
		b0, b1, b2 = 1-alpha, -2*cw, 1+alpha
		a0, a1, a2 = 1+alpha, -2*cw, 1-alpha
	case Peaking:
		b0, b1, b2 = 1+alpha*A, -2*cw, 1-alpha*A
		a0, a1, a2 = 1+alpha/A, -2*cw, 1-alpha/A
	case Lowshelf:
		sa := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) - (A-1)*cw + sa)
		b1 = 2 * A * ((A - 1) - (A+1)*cw)
		b2 = A * ((A + 1) - (A-1)*cw - sa)
		a0 = (A + 1) + (A-1)*cw + sa
		a1 = -2 * ((A - 1) + (A+1)*cw)
		a2 = (A + 1) + (A-1)*cw - sa
	case Highshelf:
		sa := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) + (A-1)*cw + sa)
		b1 = -2 * A * ((A - 1) + (A+1)*cw)
		b2 = A * ((A + 1) + (A-1)*cw - sa)
		a0 = (A + 1) - (A-1)*cw + sa
		a1 = 2 * ((A - 1) - (A+1)*cw)
		a2 = (A + 1) - (A-1)*cw - sa
	default:
		b0 = (1 - cw) / 2
		b1 = 1 - cw
		b2 = b0
		a0, a1, a2 = 1+alpha, -2*cw, 1-alpha
	}
	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

// MagnitudeAt returns the current linear magnitude response at freq.
func (b *BiquadNode) MagnitudeAt(freq float64) float64 {
	if b.lastF < 0 {
		b.design(b.Frequency.Value(), b.Q.Value(), b.Gain.Value())
	}
	w := 2 * math.Pi * freq / b.sr
	z1 := complexExp(-w)
	z2 := complexExp(-2 * w)
	num := complex(b.b0, 0) + complex(b.b1, 0)*z1 + complex(b.b2, 0)*z2
	den := complex(1, 0) + complex(b.a1, 0)*z1 + complex(b.a2, 0)*z2
	return cabs(num / den)
}

func complexExp(w float64) complex128 { return complex(math.Cos(w), math.Sin(w)) }

func cabs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }
