// Package voice builds the per-note signal graph from a preset: unison
// oscillators, noise, the amplitude envelope and the optional stage chain.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cbegin/synthgraph-go/internal/dynamics"
	"github.com/cbegin/synthgraph-go/internal/effects"
	"github.com/cbegin/synthgraph-go/internal/envelope"
	"github.com/cbegin/synthgraph-go/internal/filters"
	"github.com/cbegin/synthgraph-go/internal/graph"
	"github.com/cbegin/synthgraph-go/internal/lfo"
	"github.com/cbegin/synthgraph-go/internal/preset"
	"github.com/cbegin/synthgraph-go/internal/shapers"
)

var ErrInvalidNote = errors.New("invalid note")

// noiseTail keeps noise running past the note end so a release never
// cuts it short.
const noiseTail = 1.0

// Stage names, in chain order.
const (
	StageSubBass    = "subbass"
	StageTransient  = "transient"
	StageDistortion = "distortion"
	StageVintage    = "vintage"
	StageSidechain  = "sidechain"
	StageSaturation = "saturation"
	StageFilter     = "filter"
	StageChorus     = "chorus"
	StageDelay      = "delay"
	StageReverb     = "reverb"
)

// WavetableSource resolves custom single-cycle waveforms by name.
// *preset.Library implements it.
type WavetableSource interface {
	Wavetable(name string) ([]float32, bool)
}

type Config struct {
	// Destination receives every voice. Defaults to the context output.
	Destination *graph.Node
	Impulses    effects.ImpulseSource
	Wavetables  WavetableSource
	Logger      *slog.Logger
	// AutoDispose lets Collect tear down voices once their tail has
	// elapsed, without an explicit DisposeAt.
	AutoDispose bool
}

// Engine starts voices on one graph context. Start and Collect change the
// graph: while the context is rendering on another goroutine, call them
// through Context.Command.
type Engine struct {
	ctx *graph.Context
	cfg Config

	mu     sync.Mutex
	live   map[*Handle]struct{}
	nextID atomic.Uint64
}

func NewEngine(ctx *graph.Context, cfg Config) *Engine {
	if cfg.Destination == nil {
		cfg.Destination = ctx.Destination()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{ctx: ctx, cfg: cfg, live: make(map[*Handle]struct{})}
}

func (e *Engine) Context() *graph.Context { return e.ctx }

// Live returns the number of voices not yet disposed.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Collect disposes every voice that is due at now and returns how many
// were disposed.
func (e *Engine) Collect(now float64) int {
	e.mu.Lock()
	var due []*Handle
	for h := range e.live {
		if h.due(now, e.cfg.AutoDispose) {
			due = append(due, h)
		}
	}
	e.mu.Unlock()
	for _, h := range due {
		h.Dispose()
	}
	return len(due)
}

// DisposeAll tears down every live voice.
func (e *Engine) DisposeAll() {
	e.mu.Lock()
	all := make([]*Handle, 0, len(e.live))
	for h := range e.live {
		all = append(all, h)
	}
	e.mu.Unlock()
	for _, h := range all {
		h.Dispose()
	}
}

// Prefetch loads the impulse response p needs, so that Start never waits
// on a fetch while the render lock is held.
func (e *Engine) Prefetch(ctx context.Context, p *preset.Preset) {
	if r := p.Reverb; r != nil && r.Enabled && e.cfg.Impulses != nil {
		e.cfg.Impulses.Get(ctx, r.Impulse, r.Decay)
	}
}

func validate(freq, velocity, start, duration float64) error {
	var errs []error
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq < 0 {
		errs = append(errs, fmt.Errorf("frequency %v", freq))
	}
	if math.IsNaN(velocity) || velocity < 0 || velocity > 127 {
		errs = append(errs, fmt.Errorf("velocity %v outside [0, 127]", velocity))
	}
	if math.IsNaN(start) || math.IsInf(start, 0) || start < 0 {
		errs = append(errs, fmt.Errorf("start %v", start))
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		errs = append(errs, fmt.Errorf("duration %v", duration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidNote, errors.Join(errs...))
	}
	return nil
}

// Start builds and schedules one note. Invalid input is rejected with
// ErrInvalidNote before any node is created.
func (e *Engine) Start(p *preset.Preset, freq, velocity, start, duration float64) (*Handle, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil preset", ErrInvalidNote)
	}
	if err := validate(freq, velocity, start, duration); err != nil {
		return nil, err
	}
	b := &builder{
		e:     e,
		p:     p,
		freq:  freq * math.Pow(2, float64(p.Oscillator.Octave)),
		vel:   velocity / 127,
		start: start,
		end:   start + duration,
	}
	h := b.build()
	h.id = e.nextID.Add(1)
	h.onDispose = e.forget

	e.mu.Lock()
	e.live[h] = struct{}{}
	e.mu.Unlock()
	e.cfg.Logger.Debug("voice started", "preset", p.ID, "id", h.id, "freq", freq, "start", start, "duration", duration, "stages", h.stages)
	return h, nil
}

func (e *Engine) forget(h *Handle) {
	e.mu.Lock()
	delete(e.live, h)
	e.mu.Unlock()
	e.cfg.Logger.Debug("voice disposed", "preset", h.preset, "id", h.id)
}

// builder carries the state of one Start call.
type builder struct {
	e          *Engine
	p          *preset.Preset
	freq, vel  float64
	start, end float64

	h       *Handle
	oscs    []*graph.OscillatorNode
	modules []graph.Module
}

func (b *builder) build() *Handle {
	ctx := b.e.ctx
	b.h = &Handle{preset: b.p.ID, start: b.start, end: b.end}

	mixer := b.h.group.New(ctx, "unison-mix", nil)
	b.unison(mixer)
	b.noise(mixer)

	amp := graph.NewGain(ctx, 0)
	b.h.group.Add(amp.Node)
	mixer.Connect(amp.Node)
	env := envelope.ADSR{
		Attack:  b.p.Envelope.Attack,
		Decay:   b.p.Envelope.Decay,
		Sustain: b.p.Envelope.Sustain,
		Release: b.p.Envelope.Release,
	}
	env.Schedule(amp.Gain, b.start, b.end, 0, b.p.Volume*b.vel)

	b.stages()
	b.h.chain = effects.NewChain(ctx, b.modules...)
	b.lfo(amp.Node)
	b.h.chain.Output().Connect(b.e.cfg.Destination)
	return b.h
}

func (b *builder) unison(mixer *graph.Node) {
	ctx := b.e.ctx
	o := b.p.Oscillator
	n := b.p.UnisonCount()
	wave, table := b.waveform()
	for i := 0; i < n; i++ {
		detune := UnisonDetune(i, n, o.Detune)
		pan := graph.NewPanner(ctx, UnisonPan(i, n, b.p.Spread))
		gain := graph.NewGain(ctx, UnisonGain(n))
		b.h.group.Add(pan.Node, gain.Node)
		pan.Connect(gain.Node).Connect(mixer)

		primary := b.oscillator(wave, table, detune)
		if o.Secondary == "" {
			primary.Connect(pan.Node)
			continue
		}
		sw, err := graph.ParseWaveform(o.Secondary)
		if err != nil {
			b.e.cfg.Logger.Warn("unknown secondary waveform, using sine", "preset", b.p.ID, "waveform", o.Secondary)
		}
		mix := math.Max(0, math.Min(1, o.SecondaryMix))
		pg, sg := graph.NewGain(ctx, 1-mix), graph.NewGain(ctx, mix)
		b.h.group.Add(pg.Node, sg.Node)
		primary.Connect(pg.Node).Connect(pan.Node)
		b.oscillator(sw, nil, detune+secondaryDetune).Connect(sg.Node).Connect(pan.Node)
	}
}

// waveform resolves the primary waveform. A wavetable that cannot be found
// falls back to the named waveform.
func (b *builder) waveform() (graph.Waveform, []float32) {
	o := b.p.Oscillator
	if o.Wavetable != "" {
		if src := b.e.cfg.Wavetables; src != nil {
			if t, ok := src.Wavetable(o.Wavetable); ok {
				return graph.Custom, t
			}
		}
		b.e.cfg.Logger.Warn("unknown wavetable, using default waveform", "preset", b.p.ID, "wavetable", o.Wavetable)
	}
	w, err := graph.ParseWaveform(o.Waveform)
	if err != nil {
		b.e.cfg.Logger.Warn("unknown waveform, using sine", "preset", b.p.ID, "waveform", o.Waveform)
	}
	return w, nil
}

func (b *builder) oscillator(w graph.Waveform, table []float32, detune float64) *graph.OscillatorNode {
	osc := graph.NewOscillator(b.e.ctx, w, b.freq)
	if table != nil {
		osc.SetPeriodicWave(table)
	}
	osc.Detune.SetValue(detune)
	osc.Start(b.start)
	osc.Stop(b.end)
	b.h.group.Add(osc.Node)
	b.oscs = append(b.oscs, osc)
	return osc
}

func (b *builder) noise(mixer *graph.Node) {
	n := b.p.Noise
	if n == nil || n.Amount <= 0 {
		return
	}
	color := graph.WhiteNoise
	switch n.Type {
	case "pink":
		color = graph.PinkNoise
	case "brown":
		color = graph.BrownNoise
	}
	src := graph.NewNoise(b.e.ctx, color, int64(b.e.nextID.Load()+1))
	gain := graph.NewGain(b.e.ctx, math.Min(1, n.Amount))
	b.h.group.Add(src.Node, gain.Node)
	src.Connect(gain.Node).Connect(mixer)
	src.Start(b.start)
	src.Stop(b.end + noiseTail)
}

// stages builds the optional modules in their fixed order.
func (b *builder) stages() {
	ctx, p := b.e.ctx, b.p
	add := func(name string, m graph.Module) {
		b.modules = append(b.modules, m)
		b.h.stages = append(b.h.stages, name)
	}
	if s := p.SubBass; s != nil && s.Enabled {
		add(StageSubBass, shapers.NewSubBass(ctx, shapers.SubBassSettings{
			Low: s.Low, High: s.High, Amount: s.Amount, Mix: s.Mix, Mono: s.Mono,
		}))
	}
	if s := p.Transient; s != nil && s.Enabled {
		add(StageTransient, shapers.NewTransient(ctx, shapers.TransientSettings{Attack: s.Attack, Sustain: s.Sustain}))
	}
	if p.Distortion > 0 {
		add(StageDistortion, effects.NewDistortion(ctx, p.Distortion))
	}
	if s := p.Vintage; s != nil && s.Enabled {
		add(StageVintage, b.vintage(s))
	}
	if s := p.Sidechain; s != nil && s.Enabled {
		add(StageSidechain, b.sidechain(s))
	}
	if s := p.Saturation; s != nil && s.Enabled {
		kind, err := effects.ParseSaturation(s.Type)
		if err != nil {
			b.e.cfg.Logger.Warn("unknown saturation type, using tape", "preset", p.ID, "type", s.Type)
		}
		add(StageSaturation, effects.NewSaturation(ctx, effects.SaturationSettings{Kind: kind, Drive: s.Drive, Mix: s.Mix}))
	}
	if p.Filter != nil {
		if f := b.filter(p.Filter); f != nil {
			add(StageFilter, f)
		}
	}
	if s := p.Chorus; s != nil && s.Enabled {
		c := effects.NewChorus(ctx, effects.ChorusSettings{Rate: s.Rate, Depth: s.Depth, Delay: s.Delay, Mix: s.Mix}, b.start)
		c.Stop(b.end)
		add(StageChorus, c)
	}
	if s := p.Delay; s != nil && s.Enabled {
		add(StageDelay, effects.NewDelay(ctx, effects.DelaySettings{
			Time: s.Time, Feedback: s.Feedback, CrossFeed: s.CrossFeed, Mix: s.Mix,
		}))
	}
	if s := p.Reverb; s != nil && s.Enabled {
		if r := b.reverb(s); r != nil {
			add(StageReverb, r)
		}
	}
}

func (b *builder) vintage(s *preset.Vintage) *dynamics.Vintage {
	m, err := dynamics.ParseModel(s.Model)
	if err != nil {
		b.e.cfg.Logger.Warn("unknown vintage model, using fet", "preset", b.p.ID, "model", s.Model)
	}
	vs := dynamics.DefaultVintageSettings(m)
	vs.Threshold = s.Threshold
	if s.Ratio > 0 {
		vs.Ratio = s.Ratio
	}
	vs.Makeup = s.Makeup
	vs.Mix = s.Mix
	return dynamics.NewVintage(b.e.ctx, vs)
}

// sidechain ducks on a fixed grid: once at the note start, then every
// Interval seconds until the note ends.
func (b *builder) sidechain(s *preset.Sidechain) *dynamics.Sidechain {
	set := dynamics.DefaultSidechainSettings()
	set.Amount = s.Amount
	if s.Attack > 0 {
		set.Attack = s.Attack
	}
	if s.Release > 0 {
		set.Release = s.Release
	}
	sc := dynamics.NewSidechain(b.e.ctx, set)
	sc.TriggerDuck(b.start, 0)
	if s.Interval > 0 {
		for t := b.start + s.Interval; t < b.end; t += s.Interval {
			sc.TriggerDuck(t, 0)
		}
	}
	return sc
}

func (b *builder) filter(pf *preset.Filter) filters.FilterModule {
	env := envelope.ADSR{Attack: pf.Attack, Decay: pf.Decay, Sustain: pf.Sustain, Release: pf.Release}
	f, err := filters.New(b.e.ctx, filters.Settings{
		Type:      pf.Type,
		Cutoff:    pf.Cutoff,
		Resonance: pf.Resonance,
		Drive:     pf.Drive,
		EnvAmount: pf.EnvAmount,
		Envelope:  env,
		Accent:    pf.Accent,
	})
	if err != nil {
		b.e.cfg.Logger.Warn("filter skipped", "preset", b.p.ID, "err", err)
		return nil
	}
	if t, ok := f.(filters.Triggerable); ok {
		t.TriggerEnvelope(b.start, b.vel)
	} else {
		filters.ScheduleCutoffEnvelope(f, env, pf.EnvAmount, b.start, b.end)
	}
	b.h.filter = f
	return f
}

func (b *builder) reverb(s *preset.Reverb) *effects.Reverb {
	if b.e.cfg.Impulses == nil {
		b.e.cfg.Logger.Warn("reverb skipped: no impulse source", "preset", b.p.ID)
		return nil
	}
	r, err := effects.NewReverb(context.Background(), b.e.ctx, b.e.cfg.Impulses, effects.ReverbSettings{
		Impulse: s.Impulse, Decay: s.Decay, PreDelay: s.PreDelay, Mix: s.Mix,
	})
	if err != nil {
		b.e.cfg.Logger.Warn("reverb skipped", "preset", b.p.ID, "err", err)
		return nil
	}
	return r
}

// lfo wires the preset LFO onto its target. Amp and pan get a dedicated
// node between the envelope and the chain.
func (b *builder) lfo(amp *graph.Node) {
	ctx, l := b.e.ctx, b.p.LFO
	if l == nil || l.Depth <= 0 || l.Rate <= 0 {
		amp.Connect(b.h.chain.Input())
		return
	}
	src := lfo.NewSource(ctx, 1, l.Rate, lfo.ParseWaveform(l.Waveform))
	src.Start(b.start)
	src.Stop(b.end)
	b.h.group.Add(src.Node)

	switch l.Target {
	case preset.TargetPitch:
		depth := lfo.ScaledDepth(l.Target, l.Depth, 0)
		for _, o := range b.oscs {
			o.Detune.Modulate(src.Node, depth)
		}
	case preset.TargetFilter:
		if f := b.h.filter; f != nil {
			f.Cutoff().Modulate(src.Node, lfo.ScaledDepth(l.Target, l.Depth, b.p.Filter.Cutoff))
		}
	case preset.TargetAmp:
		trem := graph.NewGain(ctx, 1-l.Depth/2)
		trem.Gain.Modulate(src.Node, l.Depth/2)
		b.h.group.Add(trem.Node)
		amp.Connect(trem.Node).Connect(b.h.chain.Input())
		return
	case preset.TargetPan:
		pan := graph.NewPanner(ctx, 0)
		pan.Pan.Modulate(src.Node, l.Depth)
		b.h.group.Add(pan.Node)
		amp.Connect(pan.Node).Connect(b.h.chain.Input())
		return
	}
	amp.Connect(b.h.chain.Input())
}
