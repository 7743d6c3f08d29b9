// Package synthgraph is a real-time modular synthesis engine. Notes are
// built from declarative presets into a per-voice signal graph that is
// rendered against a sample-accurate audio clock, either live through
// Player or offline through RenderNotes.
package synthgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/dynamics"
	"github.com/cbegin/synthgraph-go/internal/effects"
	"github.com/cbegin/synthgraph-go/internal/graph"
	"github.com/cbegin/synthgraph-go/internal/impulse"
	"github.com/cbegin/synthgraph-go/internal/preset"
	"github.com/cbegin/synthgraph-go/internal/spatial"
	"github.com/cbegin/synthgraph-go/internal/voice"
)

var (
	ErrInvalidNote = voice.ErrInvalidNote
	ErrClosed      = errors.New("synthgraph: engine closed")
)

// Engine starts voices on a graph context and owns the master bus. All
// methods are safe to call while the context renders on another goroutine.
type Engine struct {
	cfg        engineConfig
	sampleRate int
	ctx        *graph.Context
	log        *slog.Logger

	initOnce sync.Once
	initErr  error
	library  *preset.Library
	impulses *impulse.Cache
	voices   *voice.Engine

	master    *effects.Chain
	mastering *spatial.Mastering
	closed    bool
}

// NewEngine creates an engine with its own realtime context. Presets and
// caches are loaded on first use, or eagerly by Initialize.
func NewEngine(sampleRate int, opts ...EngineOption) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	return newEngine(graph.NewContext(sampleRate), opts...), nil
}

func newEngine(ctx *graph.Context, opts ...EngineOption) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Engine{
		cfg:        cfg,
		sampleRate: int(ctx.SampleRate()),
		ctx:        ctx,
		log:        cfg.logger,
	}
	e.buildMaster()
	return e
}

// buildMaster wires voices → glue → multiband → stereo → mastering → output.
// Every stage is optional.
func (e *Engine) buildMaster() {
	var stages []graph.Module
	if s := e.cfg.glue; s != nil {
		stages = append(stages, dynamics.NewBus(e.ctx, *s))
	}
	if s := e.cfg.multiband; s != nil {
		stages = append(stages, dynamics.NewMultiband(e.ctx, *s))
	}
	if s := e.cfg.stereo; s != nil {
		stages = append(stages, spatial.NewMidSide(e.ctx, *s))
	}
	if s := e.cfg.mastering; s != nil {
		e.mastering = spatial.NewMastering(e.ctx, *s)
		stages = append(stages, e.mastering)
	}
	e.master = effects.NewChain(e.ctx, stages...)
	e.master.Output().Connect(e.ctx.Destination())
}

// Initialize loads the preset library and prepares the caches. It is
// idempotent; later calls return the first result.
func (e *Engine) Initialize() error {
	e.initOnce.Do(func() {
		e.initErr = e.initialize()
		if e.initErr != nil {
			e.log.Error("engine initialization failed", "err", e.initErr)
			return
		}
		e.log.Info("engine initialized", "diagnostics", e.Describe())
	})
	return e.initErr
}

func (e *Engine) initialize() error {
	lib := e.cfg.library
	if lib == nil {
		var err error
		if lib, err = preset.Factory(); err != nil {
			return fmt.Errorf("factory presets: %w", err)
		}
	}
	if dir := e.cfg.presetDir; dir != "" {
		pack, err := preset.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("preset dir %s: %w", dir, err)
		}
		if err := lib.Add(pack); err != nil {
			return fmt.Errorf("preset dir %s: %w", dir, err)
		}
	}
	e.library = lib
	e.impulses = impulse.NewCache(e.cfg.fetcher, e.sampleRate, e.log)
	e.voices = voice.NewEngine(e.ctx, voice.Config{
		Destination: e.master.Input(),
		Impulses:    e.impulses,
		Wavetables:  lib,
		Logger:      e.log,
		AutoDispose: e.cfg.autoDispose,
	})
	return nil
}

func (e *Engine) SampleRate() int { return e.sampleRate }

// Context returns the graph context for hosts that render it themselves.
func (e *Engine) Context() *graph.Context { return e.ctx }

// Mastering returns the master bus mastering chain, or nil.
func (e *Engine) Mastering() *spatial.Mastering { return e.mastering }

// Presets returns the preset library, loading it if needed.
func (e *Engine) Presets() (*Presets, error) {
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	return e.library, nil
}

// Time returns the audio clock in seconds.
func (e *Engine) Time() float64 { return e.ctx.Time() }

// StartVoice schedules a note at start (audio clock seconds) lasting
// duration seconds. An unknown presetID plays the default preset and logs a
// warning. Invalid note values return ErrInvalidNote.
func (e *Engine) StartVoice(presetID string, freq, velocity, start, duration float64) (*VoiceHandle, error) {
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	p, found := e.library.LookupOrDefault(presetID)
	if !found {
		e.log.Warn("preset not found, using default", "preset", presetID, "default", p.ID)
	}
	// Fetch outside the render lock; Start then hits the cache.
	e.voices.Prefetch(context.Background(), p)

	var (
		h   *voice.Handle
		err error
	)
	e.ctx.Command(func() {
		if e.closed {
			err = ErrClosed
			return
		}
		h, err = e.voices.Start(p, freq, velocity, start, duration)
	})
	if err != nil {
		return nil, err
	}
	return &VoiceHandle{Handle: h, ctx: e.ctx}, nil
}

// Collect disposes voices that are due at the current audio time and
// returns how many it disposed.
func (e *Engine) Collect() int {
	if e.voices == nil {
		return 0
	}
	var n int
	e.ctx.Command(func() { n = e.voices.Collect(e.ctx.Time()) })
	return n
}

// Close disposes every voice and the master bus. The engine cannot start
// voices afterwards.
func (e *Engine) Close() {
	e.ctx.Command(func() {
		if e.closed {
			return
		}
		e.closed = true
		if e.voices != nil {
			e.voices.DisposeAll()
		}
		e.master.Dispose()
	})
	if e.impulses != nil {
		e.impulses.Close()
	}
}

// Diagnostics is a snapshot of engine state.
type Diagnostics struct {
	SampleRate     int
	Time           float64
	Initialized    bool
	Presets        int
	LiveVoices     int
	CachedCurves   int
	CachedImpulses int
	MasterStages   int
	GainReduction  float64 // dB, from the mastering limiter
}

func (d Diagnostics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("sample_rate", d.SampleRate),
		slog.Float64("time", d.Time),
		slog.Bool("initialized", d.Initialized),
		slog.Int("presets", d.Presets),
		slog.Int("live_voices", d.LiveVoices),
		slog.Int("cached_curves", d.CachedCurves),
		slog.Int("cached_impulses", d.CachedImpulses),
		slog.Int("master_stages", d.MasterStages),
		slog.Float64("gain_reduction_db", d.GainReduction),
	)
}

// Describe reports engine state without changing it.
func (e *Engine) Describe() Diagnostics {
	d := Diagnostics{
		SampleRate:   e.sampleRate,
		Time:         e.ctx.Time(),
		CachedCurves: curves.Shared.Len(),
		MasterStages: e.master.Len(),
	}
	if e.voices != nil {
		d.Initialized = true
		d.Presets = e.library.Len()
		d.LiveVoices = e.voices.Live()
		d.CachedImpulses = e.impulses.Len()
	}
	if e.mastering != nil {
		d.GainReduction = e.mastering.GainReduction()
	}
	return d
}

// VoiceHandle is a started note.
type VoiceHandle struct {
	*voice.Handle
	ctx *graph.Context
}

// Dispose stops the note immediately, tail included. It is safe to call
// more than once.
func (v *VoiceHandle) Dispose() { v.ctx.Command(v.Handle.Dispose) }

// DisposeAt schedules disposal for audio time t, applied by Engine.Collect.
func (v *VoiceHandle) DisposeAt(t float64) { v.ctx.Command(func() { v.Handle.DisposeAt(t) }) }
