package dynamics

import (
	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

const busKnee = 6

type BusSettings struct {
	Threshold   float64 // dB
	Ratio       float64
	Attack      float64 // seconds
	Release     float64 // seconds
	Makeup      float64 // dB
	AutoRelease bool
	// Color is the amount of second-harmonic saturation, 0 to 1.
	Color float64
	Mix   float64
}

func DefaultBusSettings() BusSettings {
	return BusSettings{
		Threshold:   -12,
		Ratio:       2,
		Attack:      0.01,
		Release:     0.1,
		AutoRelease: true,
		Color:       0.15,
		Mix:         1,
	}
}

// Bus is a glue compressor: a medium knee, optional program-dependent
// release and a touch of second-harmonic color in the wet path.
type Bus struct {
	compCore
	group graph.Group
	mix   *blend
	color *graph.WaveShaperNode
	dc    *graph.BiquadNode
}

func NewBus(ctx *graph.Context, s BusSettings) *Bus {
	b := &Bus{
		compCore: compCore{comp: graph.NewCompressor(ctx)},
		color:    graph.NewWaveShaper(ctx, nil),
		// the x^2 term of the color curve adds DC
		dc: graph.NewBiquad(ctx, graph.Highpass, 10, 0.7071),
	}
	b.mix = newBlend(ctx, &b.group)
	b.group.Add(b.comp.Node, b.color.Node, b.dc.Node)
	b.mix.in.Connect(b.comp.Node).Connect(b.color.Node).Connect(b.dc.Node).Connect(b.mix.wet.Node)
	b.SetKnee(busKnee)
	b.Configure(s)
	return b
}

func (b *Bus) Input() *graph.Node  { return b.mix.in }
func (b *Bus) Output() *graph.Node { return b.mix.out }
func (b *Bus) Dispose()            { b.group.Dispose() }

func (b *Bus) Configure(s BusSettings) {
	def := DefaultBusSettings()
	b.SetThreshold(s.Threshold)
	b.SetRatio(orDefault(s.Ratio, def.Ratio))
	b.SetAttack(orDefault(s.Attack, def.Attack))
	b.SetRelease(orDefault(s.Release, def.Release))
	b.SetMakeup(s.Makeup)
	b.SetAutoRelease(s.AutoRelease)
	b.SetColor(s.Color)
	b.SetMix(s.Mix)
}

func (b *Bus) SetAutoRelease(on bool) { b.comp.AutoRelease = on }

// SetColor sets the saturation amount; 0 bypasses the shaper.
func (b *Bus) SetColor(amount float64) {
	amount = clamp01(amount)
	if amount == 0 {
		b.color.SetCurve(nil)
		return
	}
	b.color.SetCurve(curves.Get(curves.SecondHarmonic, amount))
}

func (b *Bus) SetMix(mix float64) { b.mix.setMix(mix) }
