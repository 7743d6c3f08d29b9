package dynamics

import (
	"fmt"
	"strings"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

type Model int

const (
	FET Model = iota
	Opto
	VariMu
)

func (m Model) String() string {
	switch m {
	case FET:
		return "fet"
	case Opto:
		return "opto"
	case VariMu:
		return "varimu"
	}
	return fmt.Sprintf("model(%d)", int(m))
}

func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fet", "1176":
		return FET, nil
	case "opto", "la2a":
		return Opto, nil
	case "varimu", "vari-mu", "vca":
		return VariMu, nil
	}
	return FET, fmt.Errorf("unknown compressor model %q", s)
}

// character is what sets the models apart.
type character struct {
	knee         float64
	attack       [3]float64 // min, default, max seconds
	release      [3]float64
	autoRelease  bool
	curve        curves.Kind
	curveAmount  float64
	defaultRatio float64
}

var characters = map[Model]character{
	FET: {
		knee:         0,
		attack:       [3]float64{0.00002, 0.0002, 0.0008},
		release:      [3]float64{0.05, 0.1, 1.1},
		curve:        curves.OddHarmonic,
		curveAmount:  0.3,
		defaultRatio: 4,
	},
	Opto: {
		knee:         12,
		attack:       [3]float64{0.01, 0.01, 0.05},
		release:      [3]float64{0.06, 0.5, 5},
		autoRelease:  true,
		curve:        curves.EvenHarmonic,
		curveAmount:  0.4,
		defaultRatio: 3,
	},
	VariMu: {
		knee:         6,
		attack:       [3]float64{0.001, 0.02, 0.08},
		release:      [3]float64{0.1, 0.3, 2},
		autoRelease:  true,
		curve:        curves.OddHarmonic,
		curveAmount:  0.05,
		defaultRatio: 2,
	},
}

type VintageSettings struct {
	Model     Model
	Threshold float64 // dB
	Ratio     float64
	Attack    float64 // seconds, 0 selects the model default
	Release   float64 // seconds, 0 selects the model default
	Makeup    float64 // dB
	Mix       float64
}

func DefaultVintageSettings(m Model) VintageSettings {
	ch := characters[m]
	return VintageSettings{
		Model:     m,
		Threshold: -18,
		Ratio:     ch.defaultRatio,
		Attack:    ch.attack[1],
		Release:   ch.release[1],
		Mix:       1,
	}
}

// Vintage is a character compressor followed by the model's saturation,
// with a parallel blend.
type Vintage struct {
	compCore
	group graph.Group
	mix   *blend
	color *graph.WaveShaperNode
	ch    character
	model Model
}

func NewVintage(ctx *graph.Context, s VintageSettings) *Vintage {
	v := &Vintage{
		compCore: compCore{comp: graph.NewCompressor(ctx)},
		color:    graph.NewWaveShaper(ctx, nil),
	}
	v.mix = newBlend(ctx, &v.group)
	v.group.Add(v.comp.Node, v.color.Node)
	v.mix.in.Connect(v.comp.Node).Connect(v.color.Node).Connect(v.mix.wet.Node)
	v.Configure(s)
	return v
}

func (v *Vintage) Input() *graph.Node  { return v.mix.in }
func (v *Vintage) Output() *graph.Node { return v.mix.out }
func (v *Vintage) Dispose()            { v.group.Dispose() }
func (v *Vintage) Model() Model        { return v.model }

func (v *Vintage) Configure(s VintageSettings) {
	ch, ok := characters[s.Model]
	if !ok {
		s.Model, ch = FET, characters[FET]
	}
	v.model, v.ch = s.Model, ch
	v.comp.AutoRelease = ch.autoRelease
	v.color.SetCurve(curves.Get(ch.curve, ch.curveAmount))
	v.SetKnee(ch.knee)
	v.SetThreshold(s.Threshold)
	v.SetRatio(orDefault(s.Ratio, ch.defaultRatio))
	v.SetAttack(orDefault(s.Attack, ch.attack[1]))
	v.SetRelease(orDefault(s.Release, ch.release[1]))
	v.SetMakeup(s.Makeup)
	v.SetMix(s.Mix)
}

// SetAttack clamps seconds into the model's attack range.
func (v *Vintage) SetAttack(seconds float64) {
	v.compCore.SetAttack(clamp(seconds, v.ch.attack[0], v.ch.attack[2]))
}

// SetRelease clamps seconds into the model's release range.
func (v *Vintage) SetRelease(seconds float64) {
	v.compCore.SetRelease(clamp(seconds, v.ch.release[0], v.ch.release[2]))
}

func (v *Vintage) SetMix(mix float64) { v.mix.setMix(mix) }
