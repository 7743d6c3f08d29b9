package filters

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	ladderStages = 4
	// ladderFeedbackCeiling bounds res*4 so the loop cannot run away.
	ladderFeedbackCeiling = 3.9
	// ladderLoopGain puts the oscillation threshold (k = 4) at resonance
	// 0.9, so 0.95 and up ring on their own. The loop gain actually applied
	// therefore tops out at 3.9*4/3.6, about 4.33.
	ladderLoopGain = 4 / 3.6
	ladderDither   = 1e-6
)

// Ladder is a four-pole resonant lowpass with tanh saturation inside the
// feedback loop. At high resonance it self-oscillates at the cutoff.
type Ladder struct {
	group graph.Group
	node  *graph.Node

	cutoff    *graph.Param
	resonance *graph.Param
	drive     *graph.Param
	level     *graph.Param

	sr    float64
	state [2][ladderStages]float64
	seed  uint32

	lastDrive float64
	pre, k    float64
	tanhK     float64
}

func NewLadder(ctx *graph.Context, cutoff, resonance, drive float64) *Ladder {
	sr := ctx.SampleRate()
	l := &Ladder{
		cutoff:    graph.NewParam(ctx, ClampCutoff(cutoff, sr), 20, 20000),
		resonance: graph.NewParam(ctx, ClampResonance(resonance), 0, 0.99),
		drive:     graph.NewParam(ctx, clamp01(drive), 0, 1),
		level:     graph.NewParam(ctx, 1, 0, 4),
		sr:        sr,
		seed:      0x9e3779b9,
		lastDrive: -1,
	}
	l.node = l.group.New(ctx, "ladder", l)
	return l
}

func (l *Ladder) Kind() Kind              { return KindLadder }
func (l *Ladder) Input() *graph.Node      { return l.node }
func (l *Ladder) Output() *graph.Node     { return l.node }
func (l *Ladder) Cutoff() *graph.Param    { return l.cutoff }
func (l *Ladder) Resonance() *graph.Param { return l.resonance }
func (l *Ladder) Dispose()                { l.group.Dispose() }

func (l *Ladder) SetCutoff(hz float64) { l.cutoff.SetValue(ClampCutoff(hz, l.sr)) }

func (l *Ladder) SetResonance(r float64) { l.resonance.SetValue(ClampResonance(r)) }

func (l *Ladder) SetDrive(d float64) { l.drive.SetValue(clamp01(d)) }

// SetOutputLevel sets the gain applied after resonance compensation.
func (l *Ladder) SetOutputLevel(v float64) { l.level.SetValue(v) }

// Reset clears the integrator state.
func (l *Ladder) Reset() { l.state = [2][ladderStages]float64{} }

func (l *Ladder) Process(inL, inR float32) (float32, float32) {
	p := newOnePole(ClampCutoff(l.cutoff.Value(), l.sr), l.sr)
	res := ClampResonance(l.resonance.Value())
	fb := math.Min(res*4, ladderFeedbackCeiling) * ladderLoopGain
	if d := l.drive.Value(); d != l.lastDrive {
		l.lastDrive = d
		l.pre = 1 + d*3
		l.k = 1 + d*4
		l.tanhK = math.Tanh(l.k)
	}
	out := l.level.Value() * (1 - res*0.5)
	outL := l.tick(0, float64(inL), p, fb) * out
	outR := l.tick(1, float64(inR), p, fb) * out
	return float32(outL), float32(outR)
}

func (l *Ladder) tick(ch int, x float64, p onePole, fb float64) float64 {
	x = math.Tanh(x*l.pre*l.k) / l.tanhK
	return feedbackCascade(l.state[ch][:], p, x, fb, l.dither())
}

// dither keeps a silent loop excitable so resonance can build up from
// nothing.
func (l *Ladder) dither() float64 {
	x := l.seed
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	l.seed = x
	return (float64(x)/math.MaxUint32*2 - 1) * ladderDither
}
