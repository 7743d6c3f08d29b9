package spatial

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/dynamics"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

// EQ band indices.
const (
	LowShelf = iota
	LowMid
	HighMid
	HighShelf
	numEQBands
)

var (
	eqFreqs = [numEQBands]float64{100, 400, 2500, 10000}
	eqQ     = [numEQBands]float64{shelfQ, 1, 1, shelfQ}
)

const (
	exciterHz       = 3000
	exciterMaxBlend = 0.25
)

type MasteringSettings struct {
	EQ      [numEQBands]float64 // dB per band
	Exciter float64             // 0 to 1
	Limiter dynamics.LimiterSettings
	Trim    float64 // dB
}

func DefaultMasteringSettings() MasteringSettings {
	return MasteringSettings{
		Exciter: 0.1,
		Limiter: dynamics.DefaultLimiterSettings(),
	}
}

// masterEQ runs the four bands in series. Gains are stored as uint64
// (bit-cast float64) so the UI thread can change them without a lock; the
// audio thread redesigns a band when it sees a new gain.
type masterEQ struct {
	gains    [numEQBands]atomic.Uint64
	designed [numEQBands]float64
	sections [2][numEQBands]*biquad.Section
	sr       float64
}

func newMasterEQ(sampleRate float64) *masterEQ {
	eq := &masterEQ{sr: sampleRate}
	for b := range eq.gains {
		c := eq.design(b, 0)
		for ch := range eq.sections {
			eq.sections[ch][b] = biquad.NewSection(c)
		}
	}
	return eq
}

func (eq *masterEQ) design(band int, gainDB float64) biquad.Coefficients {
	f, q := eqFreqs[band], eqQ[band]
	switch band {
	case LowShelf:
		return design.LowShelf(f, gainDB, q, eq.sr)
	case HighShelf:
		return design.HighShelf(f, gainDB, q, eq.sr)
	default:
		return design.Peak(f, gainDB, q, eq.sr)
	}
}

func (eq *masterEQ) setGain(band int, db float64) {
	if band >= 0 && band < numEQBands && !math.IsNaN(db) {
		eq.gains[band].Store(math.Float64bits(db))
	}
}

func (eq *masterEQ) gain(band int) float64 {
	if band < 0 || band >= numEQBands {
		return 0
	}
	return math.Float64frombits(eq.gains[band].Load())
}

func (eq *masterEQ) process(l, r float64) (float64, float64) {
	for b := range eq.gains {
		g := eq.gain(b)
		if g != eq.designed[b] {
			c := eq.design(b, g)
			eq.sections[0][b].Coefficients = c
			eq.sections[1][b].Coefficients = c
			eq.designed[b] = g
		}
		if g == 0 {
			continue
		}
		l = eq.sections[0][b].ProcessSample(l)
		r = eq.sections[1][b].ProcessSample(r)
	}
	return l, r
}

// exciter adds high-passed even harmonics back under the signal.
type exciter struct {
	amount atomic.Uint64
	hp     [2][2]*biquad.Section
	curve  []float32
}

func newExciter(sampleRate float64) *exciter {
	x := &exciter{curve: curves.Get(curves.EvenHarmonic, 0.5)}
	c := design.Highpass(exciterHz, butterworthQ, sampleRate)
	for ch := range x.hp {
		for i := range x.hp[ch] {
			x.hp[ch][i] = biquad.NewSection(c)
		}
	}
	return x
}

func (x *exciter) setAmount(a float64) {
	if math.IsNaN(a) {
		a = 0
	}
	x.amount.Store(math.Float64bits(math.Max(0, math.Min(1, a))))
}

func (x *exciter) level() float64 { return math.Float64frombits(x.amount.Load()) }

func (x *exciter) process(ch int, v float64) float64 {
	a := x.level()
	if a == 0 {
		return v
	}
	h := x.hp[ch][1].ProcessSample(x.hp[ch][0].ProcessSample(v))
	return v + a*exciterMaxBlend*float64(graph.Shape(x.curve, float32(h)))
}

// Mastering is the master-bus chain: EQ, exciter, limiter and trim.
type Mastering struct {
	group   graph.Group
	tone    *graph.Node
	limiter *dynamics.Limiter
	trim    *graph.GainNode

	eq      *masterEQ
	exciter *exciter
}

func NewMastering(ctx *graph.Context, s MasteringSettings) *Mastering {
	sr := ctx.SampleRate()
	m := &Mastering{
		limiter: dynamics.NewLimiter(ctx, s.Limiter),
		trim:    graph.NewGain(ctx, 1),
		eq:      newMasterEQ(sr),
		exciter: newExciter(sr),
	}
	m.tone = m.group.New(ctx, "mastering-tone", graph.KernelFunc(m.processTone))
	m.group.Add(m.trim.Node)
	m.tone.Connect(m.limiter.Input())
	m.limiter.Output().Connect(m.trim.Node)
	m.Configure(s)
	return m
}

func (m *Mastering) Input() *graph.Node  { return m.tone }
func (m *Mastering) Output() *graph.Node { return m.trim.Node }

func (m *Mastering) Dispose() {
	m.limiter.Dispose()
	m.group.Dispose()
}

func (m *Mastering) Configure(s MasteringSettings) {
	for b, g := range s.EQ {
		m.SetEQGain(b, g)
	}
	m.SetExciter(s.Exciter)
	m.limiter.Configure(s.Limiter)
	m.SetTrim(s.Trim)
}

// SetEQGain sets one band's gain in dB. Safe to call from any goroutine.
func (m *Mastering) SetEQGain(band int, db float64) { m.eq.setGain(band, db) }
func (m *Mastering) EQGain(band int) float64        { return m.eq.gain(band) }

// SetExciter sets the exciter amount in [0, 1]. Safe to call from any
// goroutine.
func (m *Mastering) SetExciter(amount float64) { m.exciter.setAmount(amount) }

func (m *Mastering) SetTrim(db float64) { m.trim.Gain.SetValue(math.Pow(10, db/20)) }

func (m *Mastering) Limiter() *dynamics.Limiter { return m.limiter }

func (m *Mastering) GainReduction() float64 { return m.limiter.GainReduction() }

func (m *Mastering) processTone(l, r float32) (float32, float32) {
	el, er := m.eq.process(float64(l), float64(r))
	return float32(m.exciter.process(0, el)), float32(m.exciter.process(1, er))
}
