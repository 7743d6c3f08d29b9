package shapers

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

// Follower times in seconds. The attack pair differs in attack time, the
// sustain pair in release time.
const (
	fastAttack  = 0.001
	slowAttack  = 0.02
	fastRelease = 0.05
	slowRelease = 0.5
	holdRelease = 0.1
	maxShapeDB  = 24
	detectFloor = 1e-6
)

type TransientSettings struct {
	// Attack boosts (positive) or softens (negative) onsets, -1 to 1.
	Attack float64
	// Sustain lifts or trims the body after the onset, -1 to 1.
	Sustain float64
}

// follower is a peak envelope with separate attack and release.
type follower struct {
	att, rel float64
	env      float64
}

func newFollower(attack, release, sampleRate float64) follower {
	return follower{att: coef(attack, sampleRate), rel: coef(release, sampleRate)}
}

func coef(seconds, sampleRate float64) float64 {
	return math.Exp(-1 / (seconds * sampleRate))
}

func (f *follower) step(x float64) float64 {
	c := f.rel
	if x > f.env {
		c = f.att
	}
	f.env = c*f.env + (1-c)*x
	return f.env
}

// Transient shapes onsets and sustain independently of level. Two
// followers that differ in attack time open a gap on each onset; two that
// differ in release time open a gap while the sound decays. Each gap, in
// dB, is scaled by its setting and applied as gain.
type Transient struct {
	group graph.Group
	node  *graph.Node

	fastA, slowA follower
	fastS, slowS follower
	s            TransientSettings
	gainDB       float64
}

func NewTransient(ctx *graph.Context, s TransientSettings) *Transient {
	sr := ctx.SampleRate()
	t := &Transient{
		fastA: newFollower(fastAttack, holdRelease, sr),
		slowA: newFollower(slowAttack, holdRelease, sr),
		fastS: newFollower(fastAttack, fastRelease, sr),
		slowS: newFollower(fastAttack, slowRelease, sr),
	}
	t.node = t.group.New(ctx, "transient", t)
	t.Configure(s)
	return t
}

func (t *Transient) Input() *graph.Node  { return t.node }
func (t *Transient) Output() *graph.Node { return t.node }
func (t *Transient) Dispose()            { t.group.Dispose() }

func (t *Transient) Configure(s TransientSettings) {
	t.s = TransientSettings{Attack: clampSigned(s.Attack), Sustain: clampSigned(s.Sustain)}
}

func (t *Transient) Settings() TransientSettings { return t.s }

// Gain returns the gain applied to the last frame, in dB.
func (t *Transient) Gain() float64 { return t.gainDB }

func (t *Transient) Process(l, r float32) (float32, float32) {
	if t.s.Attack == 0 && t.s.Sustain == 0 {
		return l, r
	}
	x := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	onset := gapDB(t.fastA.step(x), t.slowA.step(x))
	body := gapDB(t.slowS.step(x), t.fastS.step(x))
	g := t.s.Attack*onset + t.s.Sustain*body
	g = math.Max(-maxShapeDB, math.Min(maxShapeDB, g))
	t.gainDB = g
	k := float32(math.Pow(10, g/20))
	return l * k, r * k
}

// gapDB is how far a sits above b, in dB, never negative.
func gapDB(a, b float64) float64 {
	d := 20 * math.Log10((a+detectFloor)/(b+detectFloor))
	return math.Max(0, math.Min(maxShapeDB, d))
}

func clampSigned(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
