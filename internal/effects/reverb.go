package effects

import (
	"context"
	"fmt"
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
	"github.com/cbegin/synthgraph-go/internal/impulse"
)

const maxPreDelay = 0.5

// ImpulseSource hands out impulse responses by id. *impulse.Cache is the
// usual implementation.
type ImpulseSource interface {
	Get(ctx context.Context, id string, decay float64) *impulse.Response
}

type ReverbSettings struct {
	// Impulse names a recorded response. Empty, or one that cannot be
	// loaded, gets a synthesized response of Decay seconds.
	Impulse  string
	Decay    float64 // seconds
	PreDelay float64 // seconds
	Mix      float64
}

func DefaultReverbSettings() ReverbSettings {
	return ReverbSettings{Decay: 2, Mix: 0.3}
}

// Reverb convolves its input with an impulse response, behind an optional
// pre-delay, in parallel with the dry signal.
type Reverb struct {
	group    graph.Group
	mix      *wetDry
	preDelay *graph.DelayNode
	conv     *graph.ConvolverNode
	ir       *impulse.Response
	s        ReverbSettings
	latency  float64
}

func NewReverb(ctx context.Context, ac *graph.Context, src ImpulseSource, s ReverbSettings) (*Reverb, error) {
	s.Decay = clamp(s.Decay, 0.1, 10)
	s.PreDelay = clamp(s.PreDelay, 0, maxPreDelay)
	s.Mix = clamp(s.Mix, 0, 1)
	ir := src.Get(ctx, s.Impulse, s.Decay)
	if ir == nil {
		return nil, fmt.Errorf("reverb: no impulse response for %q", s.Impulse)
	}
	conv, err := graph.NewConvolver(ac, ir.Channels, true)
	if err != nil {
		return nil, fmt.Errorf("reverb %s: %w", ir.ID, err)
	}
	r := &Reverb{
		preDelay: graph.NewDelay(ac, maxPreDelay, s.PreDelay),
		conv:     conv,
		ir:       ir,
		s:        s,
		latency:  float64(graph.ConvolverBlock) / ac.SampleRate(),
	}
	r.mix = newWetDry(ac, &r.group, s.Mix)
	r.group.Add(r.preDelay.Node, r.conv.Node)
	r.mix.in.Connect(r.preDelay.Node).Connect(r.conv.Node).Connect(r.mix.wet.Node)
	return r, nil
}

func (r *Reverb) Input() *graph.Node       { return r.mix.in }
func (r *Reverb) Output() *graph.Node      { return r.mix.out }
func (r *Reverb) Dispose()                 { r.group.Dispose() }
func (r *Reverb) Settings() ReverbSettings { return r.s }

// Impulse returns the response in use.
func (r *Reverb) Impulse() *impulse.Response { return r.ir }

func (r *Reverb) SetMix(mix float64) {
	r.s.Mix = clamp(mix, 0, 1)
	r.mix.setMix(r.s.Mix)
}

// Tail covers the pre-delay, the longer of the decay and the response
// itself, and the convolver's one block of latency.
func (r *Reverb) Tail() float64 {
	return r.s.PreDelay + math.Max(r.s.Decay, r.ir.Duration()) + r.latency
}
