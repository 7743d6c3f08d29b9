package dynamics

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

// NumBands is the number of multiband compressor bands: sub, low, mid and
// high.
const NumBands = 4

const (
	butterworthQ = 0.7071067811865476
	bandKnee     = 6 // dB
)

// lr4 is a Linkwitz-Riley crossover: two cascaded Butterworth sections on
// each side, so the low and high outputs sum back to an allpass.
type lr4 struct {
	lp [2]*biquad.Section
	hp [2]*biquad.Section
}

func newLR4(fc, sampleRate float64) *lr4 {
	x := &lr4{}
	lp, hp := design.Lowpass(fc, butterworthQ, sampleRate), design.Highpass(fc, butterworthQ, sampleRate)
	for i := range x.lp {
		x.lp[i] = biquad.NewSection(lp)
		x.hp[i] = biquad.NewSection(hp)
	}
	return x
}

func (x *lr4) tune(fc, sampleRate float64) {
	lp, hp := design.Lowpass(fc, butterworthQ, sampleRate), design.Highpass(fc, butterworthQ, sampleRate)
	for i := range x.lp {
		x.lp[i].Coefficients = lp
		x.hp[i].Coefficients = hp
	}
}

func (x *lr4) split(v float64) (lo, hi float64) {
	lo = x.lp[1].ProcessSample(x.lp[0].ProcessSample(v))
	hi = x.hp[1].ProcessSample(x.hp[0].ProcessSample(v))
	return lo, hi
}

// allpass runs v through both sides and sums them, matching the phase a
// band picks up from a crossover it does not pass through.
func (x *lr4) allpass(v float64) float64 {
	lo, hi := x.split(v)
	return lo + hi
}

func (x *lr4) reset() {
	for i := range x.lp {
		x.lp[i].Reset()
		x.hp[i].Reset()
	}
}

// crossoverBank splits one channel into four bands.
type crossoverBank struct {
	split [3]*lr4
	// phase compensation: sub through the 2nd and 3rd corners, low
	// through the 3rd
	subAP2, subAP3, lowAP3 *lr4
}

func newCrossoverBank(freqs [3]float64, sampleRate float64) *crossoverBank {
	b := &crossoverBank{
		subAP2: newLR4(freqs[1], sampleRate),
		subAP3: newLR4(freqs[2], sampleRate),
		lowAP3: newLR4(freqs[2], sampleRate),
	}
	for i, f := range freqs {
		b.split[i] = newLR4(f, sampleRate)
	}
	return b
}

func (b *crossoverBank) tune(freqs [3]float64, sampleRate float64) {
	for i, f := range freqs {
		b.split[i].tune(f, sampleRate)
	}
	b.subAP2.tune(freqs[1], sampleRate)
	b.subAP3.tune(freqs[2], sampleRate)
	b.lowAP3.tune(freqs[2], sampleRate)
}

func (b *crossoverBank) process(v float64) [NumBands]float64 {
	var out [NumBands]float64
	sub, rest := b.split[0].split(v)
	low, rest := b.split[1].split(rest)
	mid, high := b.split[2].split(rest)
	out[0] = b.subAP3.allpass(b.subAP2.allpass(sub))
	out[1] = b.lowAP3.allpass(low)
	out[2] = mid
	out[3] = high
	return out
}

// bandCompressor rides one band. The compressor is mono, so it is fed the
// louder of the two channels and its gain is applied to both.
type bandCompressor struct {
	comp      *effects.Compressor
	makeup    float64 // dB
	reduction float64 // dB
}

func newBandCompressor(sampleRate float64) *bandCompressor {
	// the context rate is always positive, so this cannot fail
	c, _ := effects.NewCompressor(sampleRate)
	c.SetKnee(bandKnee)
	c.SetMakeupGain(0)
	return &bandCompressor{comp: c}
}

// configure maps b onto the compressor, clamped to the ranges it accepts.
func (bc *bandCompressor) configure(b Band) {
	bc.setThreshold(b.Threshold)
	bc.setRatio(orDefault(b.Ratio, 1))
	bc.comp.SetAttack(clamp(b.Attack*1000, 0.1, 1000))
	bc.comp.SetRelease(clamp(b.Release*1000, 1, 5000))
	bc.makeup = clamp(orDefault(b.Makeup, 0), -24, 48)
	bc.comp.SetMakeupGain(bc.makeup)
}

func (bc *bandCompressor) setThreshold(db float64) { bc.comp.SetThreshold(clamp(db, -100, 0)) }
func (bc *bandCompressor) setRatio(r float64)      { bc.comp.SetRatio(clamp(r, 1, 100)) }

func (bc *bandCompressor) process(l, r float64) (float64, float64) {
	level := math.Max(math.Abs(l), math.Abs(r))
	out := bc.comp.ProcessSample(level)
	if level == 0 {
		return 0, 0
	}
	g := out / level
	bc.reduction = math.Max(0, bc.makeup-20*math.Log10(g))
	return l * g, r * g
}

// Band is the per-band compressor setting.
type Band struct {
	Threshold float64 // dB
	Ratio     float64
	Attack    float64 // seconds
	Release   float64 // seconds
	Makeup    float64 // dB
}

type MultibandSettings struct {
	// Crossovers are the three band edges in Hz, ascending.
	Crossovers [3]float64
	Bands      [NumBands]Band
	Output     float64 // dB
	Mix        float64
}

func DefaultMultibandSettings() MultibandSettings {
	return MultibandSettings{
		Crossovers: [3]float64{120, 1000, 6000},
		Bands: [NumBands]Band{
			{Threshold: -20, Ratio: 3, Attack: 0.03, Release: 0.3},
			{Threshold: -18, Ratio: 2.5, Attack: 0.02, Release: 0.2},
			{Threshold: -16, Ratio: 2, Attack: 0.01, Release: 0.15},
			{Threshold: -14, Ratio: 2, Attack: 0.005, Release: 0.1},
		},
		Mix: 1,
	}
}

// Multiband splits its input into four phase-coherent bands, compresses
// each on its own and sums them back.
type Multiband struct {
	group  graph.Group
	mix    *blend
	node   *graph.Node
	output *graph.GainNode

	sr    float64
	freqs [3]float64
	banks [2]*crossoverBank
	comps [NumBands]*bandCompressor
}

func NewMultiband(ctx *graph.Context, s MultibandSettings) *Multiband {
	m := &Multiband{
		sr:     ctx.SampleRate(),
		output: graph.NewGain(ctx, 1),
	}
	for i := range m.comps {
		m.comps[i] = newBandCompressor(m.sr)
	}
	m.freqs = sanitizeCrossovers(s.Crossovers, m.sr)
	for ch := range m.banks {
		m.banks[ch] = newCrossoverBank(m.freqs, m.sr)
	}
	m.mix = newBlend(ctx, &m.group)
	m.node = m.group.New(ctx, "multiband", m)
	m.group.Add(m.output.Node)
	m.mix.in.Connect(m.node).Connect(m.output.Node).Connect(m.mix.wet.Node)
	m.Configure(s)
	return m
}

func (m *Multiband) Input() *graph.Node  { return m.mix.in }
func (m *Multiband) Output() *graph.Node { return m.mix.out }
func (m *Multiband) Dispose()            { m.group.Dispose() }

func (m *Multiband) Configure(s MultibandSettings) {
	m.SetCrossovers(s.Crossovers)
	for i, b := range s.Bands {
		m.SetBand(i, b)
	}
	m.SetOutputGain(s.Output)
	m.SetMix(s.Mix)
}

// SetCrossovers retunes the band edges. Edges are kept ascending, an octave
// apart and inside the audio band.
func (m *Multiband) SetCrossovers(freqs [3]float64) {
	m.freqs = sanitizeCrossovers(freqs, m.sr)
	for _, b := range m.banks {
		b.tune(m.freqs, m.sr)
	}
}

func (m *Multiband) Crossovers() [3]float64 { return m.freqs }

func sanitizeCrossovers(freqs [3]float64, sampleRate float64) [3]float64 {
	def := DefaultMultibandSettings().Crossovers
	hi := 0.45 * sampleRate
	prev := 10.0
	for i := range freqs {
		f := freqs[i]
		if f <= 0 || math.IsNaN(f) {
			f = def[i]
		}
		top := hi / math.Pow(2, float64(len(freqs)-1-i))
		f = clamp(f, prev*2, top)
		freqs[i] = f
		prev = f
	}
	return freqs
}

func (m *Multiband) SetBand(i int, b Band) {
	if i < 0 || i >= NumBands {
		return
	}
	m.comps[i].configure(b)
}

func (m *Multiband) SetThreshold(band int, db float64) {
	if band >= 0 && band < NumBands {
		m.comps[band].setThreshold(db)
	}
}

func (m *Multiband) SetRatio(band int, r float64) {
	if band >= 0 && band < NumBands {
		m.comps[band].setRatio(r)
	}
}

// SetOutputGain sets the master gain applied to the band sum, in dB.
func (m *Multiband) SetOutputGain(db float64) { m.output.Gain.SetValue(dbToGain(db)) }

func (m *Multiband) SetMix(mix float64) { m.mix.setMix(mix) }

// BandReduction returns the reduction of one band in dB.
func (m *Multiband) BandReduction(band int) float64 {
	if band < 0 || band >= NumBands {
		return 0
	}
	return m.comps[band].reduction
}

// GainReduction returns the largest band reduction.
func (m *Multiband) GainReduction() float64 {
	var gr float64
	for i := range m.comps {
		gr = math.Max(gr, m.comps[i].reduction)
	}
	return gr
}

func (m *Multiband) Process(l, r float32) (float32, float32) {
	bl := m.banks[0].process(float64(l))
	br := m.banks[1].process(float64(r))
	var outL, outR float64
	for i, c := range m.comps {
		cl, cr := c.process(bl[i], br[i])
		outL += cl
		outR += cr
	}
	return float32(outL), float32(outR)
}

// Reset clears the crossover state.
func (m *Multiband) Reset() {
	for _, b := range m.banks {
		for _, x := range b.split {
			x.reset()
		}
		b.subAP2.reset()
		b.subAP3.reset()
		b.lowAP3.reset()
	}
}
