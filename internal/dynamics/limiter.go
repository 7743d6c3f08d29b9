package dynamics

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	// ispMargin is taken off the ceiling when inter-sample peaks are
	// tracked.
	ispMargin    = 0.8 // dB
	maxLookahead = 0.05
	// clipKnee is the share of the ceiling below which soft clipping is
	// a no-op.
	clipKnee = 0.7
	// detectorFloor keeps the gain readable while the key is silent.
	detectorFloor = 1e-9
)

type LimiterSettings struct {
	Ceiling   float64 // dBFS
	Release   float64 // seconds
	Lookahead float64 // seconds
	TruePeak  bool
	SoftClip  bool
}

func DefaultLimiterSettings() LimiterSettings {
	return LimiterSettings{
		Ceiling:   -1,
		Release:   0.05,
		Lookahead: 0.005,
		TruePeak:  true,
		SoftClip:  true,
	}
}

// Limiter is a brick-wall limiter. The detector listens to the input
// directly while the audio passes through a lookahead delay, so gain is
// already down when a transient reaches the gain stage. A final clip
// stage holds the ceiling.
type Limiter struct {
	group graph.Group
	ctx   *graph.Context
	in    *graph.Node
	delay *graph.DelayNode
	out   *graph.Node

	// det is mono; it hears the louder channel of the key and its gain
	// is applied to both.
	det       *effects.Limiter
	isp       [2]graph.PeakEstimator
	reduction float64

	ceiling  float64 // linear
	softClip bool
	s        LimiterSettings
}

func NewLimiter(ctx *graph.Context, s LimiterSettings) *Limiter {
	// the context rate is always positive, so this cannot fail
	det, _ := effects.NewLimiter(ctx.SampleRate())
	l := &Limiter{
		ctx:   ctx,
		delay: graph.NewDelay(ctx, maxLookahead, 0),
		det:   det,
	}
	l.in = l.group.New(ctx, "limiter-in", nil)
	l.out = l.group.New(ctx, "limiter", l)
	l.group.Add(l.delay.Node)
	l.in.Connect(l.delay.Node).Connect(l.out)
	l.Configure(s)
	return l
}

func (l *Limiter) Input() *graph.Node        { return l.in }
func (l *Limiter) Output() *graph.Node       { return l.out }
func (l *Limiter) Dispose()                  { l.group.Dispose() }
func (l *Limiter) GainReduction() float64    { return l.reduction }
func (l *Limiter) Settings() LimiterSettings { return l.s }

func (l *Limiter) Configure(s LimiterSettings) {
	l.s = s
	l.SetLookahead(s.Lookahead)
	l.SetRelease(orDefault(s.Release, DefaultLimiterSettings().Release))
	l.SetTruePeak(s.TruePeak)
	l.SetSoftClip(s.SoftClip)
	l.SetCeiling(s.Ceiling)
}

// SetCeiling sets the output ceiling in dBFS.
func (l *Limiter) SetCeiling(db float64) {
	if math.IsNaN(db) {
		db = 0
	}
	db = math.Min(0, db)
	l.s.Ceiling = db
	l.ceiling = dbToGain(db)
	l.det.SetThreshold(l.Threshold())
}

// Threshold is the level the gain stage limits to: the ceiling, less the
// inter-sample margin when true-peak tracking is on.
func (l *Limiter) Threshold() float64 {
	if l.s.TruePeak {
		return l.s.Ceiling - ispMargin
	}
	return l.s.Ceiling
}

// SetRelease sets the detector release, kept within 1 ms and 5 s.
func (l *Limiter) SetRelease(seconds float64) {
	seconds = clamp(seconds, 0.001, 5)
	l.s.Release = seconds
	l.det.SetRelease(seconds * 1000)
}

// SetLookahead sets the delay in front of the gain stage. The detector
// attacks in 0.1 ms, so reduction is in place when the peak arrives.
func (l *Limiter) SetLookahead(seconds float64) {
	seconds = clamp(seconds, 0, maxLookahead)
	l.s.Lookahead = seconds
	l.delay.DelayTime.SetValue(seconds)
}

func (l *Limiter) SetTruePeak(on bool) {
	l.s.TruePeak = on
	l.det.SetThreshold(l.Threshold())
}

func (l *Limiter) SetSoftClip(on bool) {
	l.s.SoftClip = on
	l.softClip = on
}

// Process runs the detector on the undelayed input and applies its gain
// and the clip stage to the delayed signal.
func (l *Limiter) Process(left, right float32) (float32, float32) {
	kl, kr := l.in.Pull(l.ctx.Frame())
	dl, dr := float64(kl), float64(kr)
	level := math.Max(math.Abs(dl), math.Abs(dr))
	if l.s.TruePeak {
		level = math.Max(level, l.isp[0].Next(dl))
		level = math.Max(level, l.isp[1].Next(dr))
	}
	level = math.Max(level, detectorFloor)
	gain := l.det.ProcessSample(level) / level
	l.reduction = math.Max(0, -20*math.Log10(gain))
	g := float32(gain)
	return l.clipSample(left * g), l.clipSample(right * g)
}

func (l *Limiter) clipSample(x float32) float32 {
	c := l.ceiling
	v := float64(x)
	if !l.softClip {
		return float32(clamp(v, -c, c))
	}
	return float32(SoftClip(v, c))
}

// SoftClip passes |x| up to 0.7*ceiling untouched and bends the rest with
// an atan curve that meets it at unity slope and never reaches ceiling.
func SoftClip(x, ceiling float64) float64 {
	knee := clipKnee * ceiling
	a := math.Abs(x)
	if a <= knee {
		return x
	}
	span := ceiling - knee
	y := knee + span*2/math.Pi*math.Atan((a-knee)*math.Pi/(2*span))
	return math.Copysign(y, x)
}
