package effects

import "github.com/cbegin/synthgraph-go/internal/graph"

const (
	chorusMaxDelay = 0.1
	// chorusMaxDepth is the sweep, in seconds either side of the base
	// delay, at depth 1.
	chorusMaxDepth = 0.005
	chorusMinDelay = 0.001
)

type ChorusSettings struct {
	Rate     float64 // Hz
	Depth    float64 // 0 to 1
	Delay    float64 // base delay in seconds
	Feedback float64 // 0 to 0.9
	Mix      float64
}

func DefaultChorusSettings() ChorusSettings {
	return ChorusSettings{Rate: 1.5, Depth: 0.5, Delay: 0.02, Mix: 0.5}
}

// Chorus is a modulated delay in parallel with the dry signal. A sine LFO
// sweeps the delay time; a feedback path turns it into a flanger.
type Chorus struct {
	group    graph.Group
	mix      *wetDry
	delay    *graph.DelayNode
	feedback *graph.GainNode
	lfo      *graph.OscillatorNode
	s        ChorusSettings
}

// NewChorus builds a chorus whose LFO runs from start.
func NewChorus(ctx *graph.Context, s ChorusSettings, start float64) *Chorus {
	c := &Chorus{
		delay:    graph.NewDelay(ctx, chorusMaxDelay+chorusMaxDepth+chorusMinDelay, 0),
		feedback: graph.NewGain(ctx, 0),
		lfo:      graph.NewOscillator(ctx, graph.Sine, 0),
	}
	c.mix = newWetDry(ctx, &c.group, s.Mix)
	c.group.Add(c.delay.Node, c.feedback.Node, c.lfo.Node)
	c.mix.in.Connect(c.delay.Node).Connect(c.mix.wet.Node)
	c.delay.Connect(c.feedback.Node).Connect(c.delay.Node)
	c.Configure(s)
	c.lfo.Start(start)
	return c
}

func (c *Chorus) Input() *graph.Node       { return c.mix.in }
func (c *Chorus) Output() *graph.Node      { return c.mix.out }
func (c *Chorus) Dispose()                 { c.group.Dispose() }
func (c *Chorus) Settings() ChorusSettings { return c.s }

// Stop ends the LFO at t. The delay keeps its last position.
func (c *Chorus) Stop(t float64) { c.lfo.Stop(t) }

func (c *Chorus) Configure(s ChorusSettings) {
	s.Rate = clamp(s.Rate, 0, 20)
	s.Depth = clamp(s.Depth, 0, 1)
	s.Feedback = clamp(s.Feedback, 0, 0.9)
	s.Mix = clamp(s.Mix, 0, 1)
	sweep := s.Depth * chorusMaxDepth
	// the sweep must never reach below zero delay
	s.Delay = clamp(s.Delay, sweep+chorusMinDelay, chorusMaxDelay)
	c.s = s

	c.lfo.Frequency.SetValue(s.Rate)
	c.delay.DelayTime.SetValue(s.Delay)
	c.delay.DelayTime.Modulate(c.lfo.Node, sweep)
	c.feedback.Gain.SetValue(s.Feedback)
	c.mix.setMix(s.Mix)
}

// Tail is the time the feedback path takes to fall 60 dB.
func (c *Chorus) Tail() float64 {
	return DelayTail(c.s.Delay, c.s.Feedback)
}
