package effects

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	maxDelayTime = 5
	maxFeedback  = 0.95
)

type DelaySettings struct {
	Time      float64 // seconds
	Feedback  float64 // 0 to 0.95
	CrossFeed float64 // share of the feedback sent to the other channel
	Mix       float64
}

func DefaultDelaySettings() DelaySettings {
	return DelaySettings{Time: 0.375, Feedback: 0.35, Mix: 0.25}
}

// Delay is a stereo feedback delay. The feedback path can cross-feed
// between channels, which gives ping-pong repeats.
type Delay struct {
	group graph.Group
	mix   *wetDry
	line  *graph.DelayNode
	fb    *crossFeed
	s     DelaySettings
}

// crossFeed scales the repeats and mixes them across channels.
type crossFeed struct {
	feedback float64
	cross    float64
}

func (x *crossFeed) Process(l, r float32) (float32, float32) {
	fb, c := float32(x.feedback), float32(x.cross)
	return fb * (l*(1-c) + r*c), fb * (r*(1-c) + l*c)
}

func NewDelay(ctx *graph.Context, s DelaySettings) *Delay {
	d := &Delay{
		line: graph.NewDelay(ctx, maxDelayTime, 0),
		fb:   &crossFeed{},
	}
	d.mix = newWetDry(ctx, &d.group, s.Mix)
	fbNode := d.group.New(ctx, "delay-feedback", d.fb)
	d.group.Add(d.line.Node)
	d.mix.in.Connect(d.line.Node).Connect(d.mix.wet.Node)
	d.line.Connect(fbNode).Connect(d.line.Node)
	d.Configure(s)
	return d
}

func (d *Delay) Input() *graph.Node      { return d.mix.in }
func (d *Delay) Output() *graph.Node     { return d.mix.out }
func (d *Delay) Dispose()                { d.group.Dispose() }
func (d *Delay) Settings() DelaySettings { return d.s }

// Configure applies s. Call it through Context.Command while rendering.
func (d *Delay) Configure(s DelaySettings) {
	s.Time = clamp(s.Time, 0, maxDelayTime)
	s.Feedback = clamp(s.Feedback, 0, maxFeedback)
	s.CrossFeed = clamp(s.CrossFeed, 0, 1)
	s.Mix = clamp(s.Mix, 0, 1)
	d.s = s
	d.line.DelayTime.SetValue(s.Time)
	d.fb.feedback = s.Feedback
	d.fb.cross = s.CrossFeed
	d.mix.setMix(s.Mix)
}

// Tail is how long the repeats ring after the input stops: one delay
// time plus the number of repeats it takes to fall 60 dB.
func (d *Delay) Tail() float64 {
	return DelayTail(d.s.Time, d.s.Feedback)
}

// DelayTail returns time*(1+cycles), where cycles is the number of
// feedback passes to reach -60 dB.
func DelayTail(time, feedback float64) float64 {
	if time <= 0 {
		return 0
	}
	if feedback <= 0 {
		return time
	}
	feedback = math.Min(feedback, maxFeedback)
	return time * (1 + math.Log(0.001)/math.Log(feedback))
}
