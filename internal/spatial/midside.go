// Package spatial holds stereo-image and master-bus processing: a mid/side
// processor and the mastering chain.
package spatial

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	butterworthQ = 0.7071067811865476
	shelfQ       = 0.7071067811865476
	lowShelfHz   = 200
	highShelfHz  = 6000
)

// Shelf is a low/high shelving pair applied to one of mid or side.
type Shelf struct {
	Low  float64 // dB at lowShelfHz
	High float64 // dB at highShelfHz
}

type MidSideSettings struct {
	Mid   float64 // dB
	Side  float64 // dB
	Width float64 // 0 mono, 1 unchanged, 2 twice as wide
	// MonoBelow removes side content under this frequency. 0 disables.
	MonoBelow float64
	MidEQ     Shelf
	SideEQ    Shelf
}

func DefaultMidSideSettings() MidSideSettings {
	return MidSideSettings{Width: 1}
}

// shelfPair holds the filter state for one component.
type shelfPair struct {
	gains    Shelf
	low, hi  *biquad.Section
	disabled bool
}

func newShelfPair(sampleRate float64) *shelfPair {
	return &shelfPair{
		low:      biquad.NewSection(design.LowShelf(lowShelfHz, 0, shelfQ, sampleRate)),
		hi:       biquad.NewSection(design.HighShelf(highShelfHz, 0, shelfQ, sampleRate)),
		disabled: true,
	}
}

func (p *shelfPair) set(s Shelf, sampleRate float64) {
	p.gains = s
	p.low.Coefficients = design.LowShelf(lowShelfHz, s.Low, shelfQ, sampleRate)
	p.hi.Coefficients = design.HighShelf(highShelfHz, s.High, shelfQ, sampleRate)
	p.disabled = s.Low == 0 && s.High == 0
}

func (p *shelfPair) process(x float64) float64 {
	if p.disabled {
		return x
	}
	return p.hi.ProcessSample(p.low.ProcessSample(x))
}

// MidSide decodes stereo into mid and side, processes each and encodes
// back.
type MidSide struct {
	group graph.Group
	node  *graph.Node

	MidGain  *graph.Param // linear
	SideGain *graph.Param // linear
	Width    *graph.Param

	sr        float64
	midEQ     *shelfPair
	sideEQ    *shelfPair
	monoBelow float64
	monoHP    [2]*biquad.Section
	s         MidSideSettings
}

func NewMidSide(ctx *graph.Context, s MidSideSettings) *MidSide {
	sr := ctx.SampleRate()
	m := &MidSide{
		MidGain:  graph.NewParam(ctx, 1, 0, 16),
		SideGain: graph.NewParam(ctx, 1, 0, 16),
		Width:    graph.NewParam(ctx, 1, 0, 2),
		sr:       sr,
		midEQ:    newShelfPair(sr),
		sideEQ:   newShelfPair(sr),
	}
	hp := design.Highpass(100, butterworthQ, sr)
	for i := range m.monoHP {
		m.monoHP[i] = biquad.NewSection(hp)
	}
	m.node = m.group.New(ctx, "midside", m)
	m.Configure(s)
	return m
}

func (m *MidSide) Input() *graph.Node  { return m.node }
func (m *MidSide) Output() *graph.Node { return m.node }
func (m *MidSide) Dispose()            { m.group.Dispose() }

// Settings returns the settings in effect, including changes made through
// the individual setters.
func (m *MidSide) Settings() MidSideSettings { return m.s }

func (m *MidSide) Configure(s MidSideSettings) {
	m.SetMidGain(s.Mid)
	m.SetSideGain(s.Side)
	m.SetWidth(s.Width)
	m.SetMonoBelow(s.MonoBelow)
	m.SetMidEQ(s.MidEQ)
	m.SetSideEQ(s.SideEQ)
}

func (m *MidSide) SetMidGain(db float64) {
	m.s.Mid = db
	m.MidGain.SetValue(math.Pow(10, db/20))
}

func (m *MidSide) SetSideGain(db float64) {
	m.s.Side = db
	m.SideGain.SetValue(math.Pow(10, db/20))
}

// SetWidth scales the side signal; values are clamped to [0, 2].
func (m *MidSide) SetWidth(w float64) {
	m.Width.SetValue(w)
	m.s.Width = m.Width.ValueAt(0)
}

func (m *MidSide) SetMidEQ(s Shelf) {
	m.s.MidEQ = s
	m.midEQ.set(s, m.sr)
}

func (m *MidSide) SetSideEQ(s Shelf) {
	m.s.SideEQ = s
	m.sideEQ.set(s, m.sr)
}

// SetMonoBelow high-passes the side signal at hz with a 24 dB/oct slope,
// which keeps the low end mono. hz <= 0 turns it off.
func (m *MidSide) SetMonoBelow(hz float64) {
	if hz <= 0 || math.IsNaN(hz) {
		m.monoBelow = 0
		m.s.MonoBelow = 0
		return
	}
	hz = math.Min(hz, 0.45*m.sr)
	if hz != m.monoBelow {
		hp := design.Highpass(hz, butterworthQ, m.sr)
		for _, sec := range m.monoHP {
			sec.Coefficients = hp
			sec.Reset()
		}
	}
	m.monoBelow = hz
	m.s.MonoBelow = hz
}

// Encode returns mid and side for a stereo frame.
func Encode(l, r float64) (mid, side float64) {
	return (l + r) * 0.5, (l - r) * 0.5
}

// Decode returns the stereo frame for mid and side.
func Decode(mid, side float64) (l, r float64) {
	return mid + side, mid - side
}

func (m *MidSide) Process(l, r float32) (float32, float32) {
	mid, side := Encode(float64(l), float64(r))
	mid = m.midEQ.process(mid) * m.MidGain.Value()
	side = m.sideEQ.process(side) * m.SideGain.Value() * m.Width.Value()
	if m.monoBelow > 0 {
		side = m.monoHP[1].ProcessSample(m.monoHP[0].ProcessSample(side))
	}
	ol, or := Decode(mid, side)
	return float32(ol), float32(or)
}
