package synthgraph

import (
	"errors"
	"math"
	"sync"

	intaudio "github.com/cbegin/synthgraph-go/internal/audio"
)

// noteLead is how far ahead of the audio clock PlayNote schedules, so a
// note never starts inside a block that is already rendering.
const noteLead = 0.05

type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleTap func([]float32)
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// Player streams an engine to the audio device.
type Player struct {
	mu        sync.Mutex
	engine    *Engine
	audio     *intaudio.Player
	volume    float64
	sampleTap func([]float32)
}

// engineSource renders the engine context and collects finished voices
// after every block.
type engineSource struct {
	e *Engine
}

func (s engineSource) Process(dst []float32) {
	s.e.ctx.Process(dst)
	s.e.Collect()
}

func NewPlayer(engine *Engine, opts ...PlayerOption) (*Player, error) {
	if engine == nil {
		return nil, errors.New("engine must not be nil")
	}
	var cfg playerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Player{engine: engine, volume: 1, sampleTap: cfg.sampleTap}, nil
}

func (p *Player) Engine() *Engine { return p.engine }

// Play opens the audio device on first use and starts streaming.
func (p *Player) Play() error {
	if err := p.engine.Initialize(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		a, err := intaudio.NewPlayer(p.engine.SampleRate(), engineSource{p.engine}, p.sampleTap)
		if err != nil {
			return err
		}
		a.SetVolume(p.volume)
		p.audio = a
	}
	p.audio.Play()
	return nil
}

// PlayNote starts a note just ahead of the current audio time.
func (p *Player) PlayNote(presetID string, freq, velocity, duration float64) (*VoiceHandle, error) {
	return p.engine.StartVoice(presetID, freq, velocity, p.engine.Time()+noteLead, duration)
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil && p.audio.IsPlaying()
}

// Stop closes the audio stream. Voices stay scheduled; a later Play
// reopens the stream where the clock left off.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	return err
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 || math.IsNaN(volume) {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.audio != nil {
		p.audio.SetVolume(volume)
	}
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	pos := a.Position()
	return int64(pos.Seconds() * float64(p.engine.SampleRate()))
}

// Peak returns the absolute peak of the last streamed block.
func (p *Player) Peak() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return 0
	}
	return p.audio.Peak()
}
