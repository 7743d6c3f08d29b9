package dynamics

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

type SidechainSettings struct {
	Threshold float64 // dB, used while linked
	Ratio     float64
	Knee      float64
	Attack    float64 // seconds
	Release   float64 // seconds
	// Amount is the duck depth: the wet gain falls to 1-Amount.
	Amount float64
}

func DefaultSidechainSettings() SidechainSettings {
	return SidechainSettings{
		Threshold: -24,
		Ratio:     4,
		Knee:      6,
		Attack:    0.01,
		Release:   0.15,
		Amount:    0.6,
	}
}

// Sidechain ducks its signal on demand. TriggerDuck schedules one duck on
// the audio clock; SetKey links a second signal that drives continuous
// compression instead.
type Sidechain struct {
	compCore
	group graph.Group
	duck  *graph.GainNode
	s     SidechainSettings
}

func NewSidechain(ctx *graph.Context, s SidechainSettings) *Sidechain {
	sc := &Sidechain{
		compCore: compCore{comp: graph.NewCompressor(ctx)},
		duck:     graph.NewGain(ctx, 1),
	}
	sc.group.Add(sc.comp.Node, sc.duck.Node)
	sc.comp.Connect(sc.duck.Node)
	sc.Configure(s)
	return sc
}

func (sc *Sidechain) Input() *graph.Node  { return sc.comp.Node }
func (sc *Sidechain) Output() *graph.Node { return sc.duck.Node }
func (sc *Sidechain) Dispose()            { sc.group.Dispose() }

// Duck returns the wet gain the duck envelope is written to.
func (sc *Sidechain) Duck() *graph.Param { return sc.duck.Gain }

func (sc *Sidechain) Configure(s SidechainSettings) {
	def := DefaultSidechainSettings()
	s.Ratio = orDefault(s.Ratio, def.Ratio)
	s.Attack = math.Max(0, s.Attack)
	s.Release = math.Max(0, s.Release)
	s.Amount = clamp01(s.Amount)
	sc.s = s
	sc.SetThreshold(s.Threshold)
	sc.SetKnee(s.Knee)
	sc.SetAttack(orDefault(s.Attack, def.Attack))
	sc.SetRelease(orDefault(s.Release, def.Release))
	sc.applyRatio()
}

// SetRatio sets the linked compression ratio.
func (sc *Sidechain) SetRatio(r float64) {
	sc.s.Ratio = r
	sc.applyRatio()
}

// SetAmount sets the duck depth in [0, 1].
func (sc *Sidechain) SetAmount(a float64) { sc.s.Amount = clamp01(a) }

// SetKey links key as the detector input. A nil key unlinks, and the
// compressor stops reducing.
func (sc *Sidechain) SetKey(key *graph.Node) {
	sc.comp.Key = key
	sc.applyRatio()
}

func (sc *Sidechain) Linked() bool { return sc.comp.Key != nil }

func (sc *Sidechain) applyRatio() {
	if sc.comp.Key == nil {
		sc.comp.Ratio.SetValue(1)
		return
	}
	sc.comp.Ratio.SetValue(sc.s.Ratio)
}

// TriggerDuck ramps the wet gain from its value at time at down to
// 1-Amount over the attack, holds it until at+duration, then ramps back to
// unity over the release.
func (sc *Sidechain) TriggerDuck(at, duration float64) {
	g := sc.duck.Gain
	floor := 1 - sc.s.Amount
	down := at + sc.s.Attack
	up := math.Max(down, at+duration)

	g.CancelAndHoldAtTime(at)
	g.LinearRampToValueAtTime(floor, down)
	if up > down {
		g.SetValueAtTime(floor, up)
	}
	g.LinearRampToValueAtTime(1, up+sc.s.Release)
}
