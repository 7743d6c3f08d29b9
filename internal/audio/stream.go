// Package audio streams a rendered graph to the ebiten audio driver.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Source renders interleaved stereo frames. *graph.Context implements it.
type Source interface {
	Process(dst []float32)
}

// FinishingSource is a Source that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	Source
	Finished() bool
}

// Tap observes every rendered block after the volume is applied. It runs on
// the audio thread.
type Tap func(block []float32)

// StreamReader adapts a Source to the float32 little-endian byte stream
// ebiten expects.
type StreamReader struct {
	mu     sync.Mutex
	source Source
	tap    Tap
	buf    []float32

	volume atomic.Uint64
	peak   atomic.Uint32
}

func NewStreamReader(source Source, tap Tap) *StreamReader {
	r := &StreamReader{source: source, tap: tap}
	r.SetVolume(1)
	return r
}

// SetVolume scales the stream. Negative and NaN values mute it.
func (r *StreamReader) SetVolume(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	r.volume.Store(math.Float64bits(v))
}

func (r *StreamReader) Volume() float64 { return math.Float64frombits(r.volume.Load()) }

// Peak returns the absolute peak of the last block read.
func (r *StreamReader) Peak() float32 { return math.Float32frombits(r.peak.Load()) }

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)

	gain := float32(r.Volume())
	var peak float32
	for i, v := range r.buf {
		v *= gain
		r.buf[i] = v
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	r.peak.Store(math.Float32bits(peak))
	if r.tap != nil {
		r.tap(r.buf)
	}
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// ebiten allows one audio context per process.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(sampleRate int, source Source, tap Tap) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, tap)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play()                 { p.player.Play() }
func (p *Player) Pause()                { p.player.Pause() }
func (p *Player) IsPlaying() bool       { return p.player.IsPlaying() }
func (p *Player) SetVolume(v float64)   { p.reader.SetVolume(v) }
func (p *Player) Volume() float64       { return p.reader.Volume() }
func (p *Player) Peak() float32         { return p.reader.Peak() }
func (p *Player) Reader() *StreamReader { return p.reader }

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
