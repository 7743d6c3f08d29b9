// Package filters implements the resonant filter family: a standard
// biquad, a four-pole ladder and a three-pole acid filter. All variants
// sit behind FilterModule so a voice selects one once and never branches
// on the type again.
package filters

import (
	"fmt"
	"math"

	"github.com/cbegin/synthgraph-go/internal/envelope"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

type Kind int

const (
	KindBiquad Kind = iota
	KindLadder
	KindAcid
)

func (k Kind) String() string {
	switch k {
	case KindBiquad:
		return "biquad"
	case KindLadder:
		return "ladder"
	case KindAcid:
		return "acid"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FilterModule is the common contract of every filter variant. Setters
// take effect from the next rendered block.
type FilterModule interface {
	graph.Module
	Kind() Kind
	Cutoff() *graph.Param
	SetCutoff(hz float64)
	SetResonance(r float64)
	SetDrive(d float64)
}

// Triggerable is implemented by filters with a per-note envelope trigger.
type Triggerable interface {
	TriggerEnvelope(at, velocity float64)
}

// Settings configures a filter. Type uses the preset names: lowpass,
// highpass, bandpass, notch, moog or tb303.
type Settings struct {
	Type      string
	Cutoff    float64
	Resonance float64
	Drive     float64
	EnvAmount float64
	Envelope  envelope.ADSR
	Accent    float64
}

// New builds the variant selected by s.Type.
func New(ctx *graph.Context, s Settings) (FilterModule, error) {
	switch s.Type {
	case "moog":
		return NewLadder(ctx, s.Cutoff, s.Resonance, s.Drive), nil
	case "tb303":
		a := NewAcid(ctx, s.Cutoff, s.Resonance)
		a.SetDrive(s.Drive)
		a.SetEnvMod(s.EnvAmount)
		a.SetAccent(s.Accent)
		if s.Envelope.Decay > 0 {
			a.SetDecay(s.Envelope.Decay)
		}
		return a, nil
	}
	typ, err := graph.ParseFilterType(s.Type)
	if err != nil {
		return nil, err
	}
	switch typ {
	case graph.Lowpass, graph.Highpass, graph.Bandpass, graph.Notch:
	default:
		return nil, fmt.Errorf("filter type %q not supported", s.Type)
	}
	b := NewBiquad(ctx, typ, s.Cutoff, s.Resonance)
	b.SetDrive(s.Drive)
	return b, nil
}

// ClampResonance limits r to [0, 0.99]. NaN maps to 0.
func ClampResonance(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 0.99 {
		return 0.99
	}
	return r
}

// ClampCutoff limits hz to [20, min(20000, 0.45*sampleRate)].
func ClampCutoff(hz, sampleRate float64) float64 {
	hi := math.Min(20000, 0.45*sampleRate)
	if math.IsNaN(hz) || hz < 20 {
		return 20
	}
	if hz > hi {
		return hi
	}
	return hz
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScheduleCutoffEnvelope applies an ADSR to a cutoff param between base
// and base+amount*5000 Hz.
func ScheduleCutoffEnvelope(f FilterModule, env envelope.ADSR, amount, start, end float64) {
	if amount == 0 {
		return
	}
	p := f.Cutoff()
	base := p.ValueAt(start)
	peak := math.Max(20, math.Min(20000, base+amount*5000))
	env.Schedule(p, start, end, base, peak)
}
