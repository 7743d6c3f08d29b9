// Package shapers holds the narrowband and envelope-driven voice stages:
// a sub-bass enhancer and a transient shaper.
package shapers

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	butterworthQ = 0.7071067811865476
	dcBlockHz    = 5
	// subDrive sets how hard the tanh stage is pushed.
	subDrive = 1.5
)

type SubBassSettings struct {
	Low    float64 // Hz
	High   float64 // Hz
	Amount float64 // harmonic amount, 0 to 1
	Mix    float64 // share of the enhanced band added to the dry signal
	Mono   bool
}

func DefaultSubBassSettings() SubBassSettings {
	return SubBassSettings{Low: 20, High: 60, Amount: 0.5, Mix: 0.5, Mono: true}
}

// band is a highpass-lowpass window with a DC blocker after the shaper.
type band struct {
	hp, lp, dc *biquad.Section
}

// SubBass isolates a low window, adds a clean second harmonic and a little
// tanh warmth, and mixes the result back under the dry signal.
type SubBass struct {
	group graph.Group
	node  *graph.Node

	sr    float64
	bands [2]band
	curve []float32
	norm  float64
	s     SubBassSettings
}

func NewSubBass(ctx *graph.Context, s SubBassSettings) *SubBass {
	b := &SubBass{sr: ctx.SampleRate()}
	dc := design.Highpass(dcBlockHz, butterworthQ, b.sr)
	for ch := range b.bands {
		b.bands[ch] = band{
			hp: biquad.NewSection(dc),
			lp: biquad.NewSection(dc),
			dc: biquad.NewSection(dc),
		}
	}
	b.node = b.group.New(ctx, "subbass", b)
	b.Configure(s)
	return b
}

func (b *SubBass) Input() *graph.Node        { return b.node }
func (b *SubBass) Output() *graph.Node       { return b.node }
func (b *SubBass) Dispose()                  { b.group.Dispose() }
func (b *SubBass) Settings() SubBassSettings { return b.s }

// Configure applies s. Missing band edges fall back to the defaults and the
// window is kept at least an octave wide.
func (b *SubBass) Configure(s SubBassSettings) {
	def := DefaultSubBassSettings()
	if s.Low <= 0 || math.IsNaN(s.Low) {
		s.Low = def.Low
	}
	if s.High <= 0 || math.IsNaN(s.High) {
		s.High = def.High
	}
	s.Low = math.Min(s.Low, 0.2*b.sr)
	s.High = math.Min(math.Max(s.High, 2*s.Low), 0.45*b.sr)
	s.Amount = clamp01(s.Amount)
	s.Mix = clamp01(s.Mix)
	b.s = s

	hp := design.Highpass(s.Low, butterworthQ, b.sr)
	lp := design.Lowpass(s.High, butterworthQ, b.sr)
	for ch := range b.bands {
		b.bands[ch].hp.Coefficients = hp
		b.bands[ch].lp.Coefficients = lp
	}
	b.curve = curves.Get(curves.SecondHarmonic, s.Amount)
	b.norm = 1 / math.Tanh(subDrive)
}

func (b *SubBass) isolate(ch int, x float64) float64 {
	return b.bands[ch].lp.ProcessSample(b.bands[ch].hp.ProcessSample(x))
}

func (b *SubBass) enhance(ch int, x float64) float64 {
	y := float64(graph.Shape(b.curve, float32(x)))
	y = math.Tanh(subDrive*y) * b.norm
	return b.bands[ch].dc.ProcessSample(y)
}

func (b *SubBass) Process(l, r float32) (float32, float32) {
	if b.s.Mix == 0 {
		return l, r
	}
	bl, br := b.isolate(0, float64(l)), b.isolate(1, float64(r))
	var el, er float64
	if b.s.Mono {
		m := b.enhance(0, (bl+br)*0.5)
		el, er = m, m
	} else {
		el, er = b.enhance(0, bl), b.enhance(1, br)
	}
	return l + float32(b.s.Mix*el), r + float32(b.s.Mix*er)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
