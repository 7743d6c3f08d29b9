package graph

import (
	"fmt"
	"math"
	"strings"
)

type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
	Custom
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("waveform(%d)", int(w))
}

// ParseWaveform accepts the names used in preset files. "saw" is an alias
// for sawtooth.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "":
		return Sine, nil
	case "square":
		return Square, nil
	case "saw", "sawtooth":
		return Sawtooth, nil
	case "triangle", "tri":
		return Triangle, nil
	case "custom":
		return Custom, nil
	}
	return Sine, fmt.Errorf("unknown waveform %q", s)
}

// OscillatorNode is a band-limited periodic source. Saw and square use
// polyBLEP correction; custom waveforms read a single-cycle table.
type OscillatorNode struct {
	*Node
	Frequency *Param
	Detune    *Param

	waveform Waveform
	table    []float32
	phase    float64
	sr       float64
}

func NewOscillator(ctx *Context, waveform Waveform, freq float64) *OscillatorNode {
	o := &OscillatorNode{
		Frequency: NewParam(ctx, freq, -ctx.SampleRate()/2, ctx.SampleRate()/2),
		Detune:    NewParam(ctx, 0, -153600, 153600),
		waveform:  waveform,
		sr:        ctx.SampleRate(),
	}
	o.Node = NewSource(ctx, "oscillator", o)
	return o
}

func (o *OscillatorNode) Waveform() Waveform { return o.waveform }

func (o *OscillatorNode) SetWaveform(w Waveform) { o.waveform = w }

// SetPeriodicWave installs a single-cycle table and switches to Custom.
// An empty table falls back to a sine.
func (o *OscillatorNode) SetPeriodicWave(table []float32) {
	if len(table) == 0 {
		o.waveform = Sine
		o.table = nil
		return
	}
	o.table = append(o.table[:0], table...)
	o.waveform = Custom
}

// SetPhase sets the normalised starting phase in [0, 1).
func (o *OscillatorNode) SetPhase(p float64) {
	o.phase = p - math.Floor(p)
}

func (o *OscillatorNode) Generate() (float32, float32) {
	freq := o.Frequency.Value()
	if cents := o.Detune.Value(); cents != 0 {
		freq *= math.Exp2(cents / 1200)
	}
	dt := math.Abs(freq) / o.sr
	if dt > 0.5 {
		dt = 0.5
	}
	t := o.phase
	var v float64
	switch o.waveform {
	case Square:
		if t < 0.5 {
			v = 1
		} else {
			v = -1
		}
		v += polyBLEP(t, dt)
		v -= polyBLEP(math.Mod(t+0.5, 1), dt)
	case Sawtooth:
		v = 2*t - 1 - polyBLEP(t, dt)
	case Triangle:
		v = 1 - 4*math.Abs(t-0.5)
	case Custom:
		v = o.readTable(t)
	default:
		v = math.Sin(2 * math.Pi * t)
	}
	o.phase += freq / o.sr
	o.phase -= math.Floor(o.phase)
	s := float32(v)
	return s, s
}

func (o *OscillatorNode) readTable(t float64) float64 {
	n := len(o.table)
	if n == 0 {
		return math.Sin(2 * math.Pi * t)
	}
	pos := t * float64(n)
	i := int(pos)
	frac := pos - float64(i)
	a := float64(o.table[i%n])
	b := float64(o.table[(i+1)%n])
	return a + (b-a)*frac
}

func polyBLEP(t, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

// ConstantNode is a source emitting the value of its Offset param. It is
// used to drive parameter modulation from automation.
type ConstantNode struct {
	*Node
	Offset *Param
}

func NewConstant(ctx *Context, value float64) *ConstantNode {
	c := &ConstantNode{Offset: NewParam(ctx, value, -math.MaxFloat32, math.MaxFloat32)}
	c.Node = NewSource(ctx, "constant", c)
	return c
}

func (c *ConstantNode) Generate() (float32, float32) {
	v := float32(c.Offset.Value())
	return v, v
}
