// Package lfo provides the low-frequency modulator used for vibrato,
// filter sweeps, tremolo and auto-pan.
package lfo

import (
	"math"
	"strings"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

const (
	WaveSaw = iota
	WaveSquare
	WaveTriangle
	WaveRandom
	WaveSine
)

// ParseWaveform maps a preset waveform name to a wave constant. Unknown
// names select the triangle.
func ParseWaveform(name string) int {
	switch strings.ToLower(name) {
	case "saw", "sawtooth":
		return WaveSaw
	case "square":
		return WaveSquare
	case "random":
		return WaveRandom
	case "sine":
		return WaveSine
	}
	return WaveTriangle
}

// LFO produces per-sample modulation in [-depth, +depth].
type LFO struct {
	depth    float64
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
	held     float64 // sample-and-hold value
	seed     uint32
}

func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSaw || waveform > WaveSine {
		waveform = WaveTriangle
	}
	l.waveform = waveform
}

// SetPhase sets the normalised phase in [0, 1).
func (l *LFO) SetPhase(p float64) { l.phase = p - math.Floor(p) }

// Sample advances the LFO by one sample.
func (l *LFO) Sample(sampleRate float64) float64 {
	if l.depth == 0 || l.rateHz == 0 || sampleRate == 0 {
		return 0
	}

	var v float64
	switch l.waveform {
	case WaveSaw:
		v = 1 - 2*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case WaveRandom:
		v = l.held
	case WaveSine:
		v = math.Sin(2 * math.Pi * l.phase)
	default:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	}

	prev := l.phase
	l.phase += l.rateHz / sampleRate
	l.phase -= math.Floor(l.phase)

	if l.waveform == WaveRandom && l.phase < prev {
		l.held = l.next()
	}
	return v * l.depth
}

// next is a xorshift step mapped to [-1, 1).
func (l *LFO) next() float64 {
	if l.seed == 0 {
		l.seed = 0x9e3779b9
	}
	l.seed ^= l.seed << 13
	l.seed ^= l.seed >> 17
	l.seed ^= l.seed << 5
	return float64(l.seed)/float64(1<<31) - 1
}

func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

func (l *LFO) Reset() {
	l.phase = 0
	l.held = 0
	l.seed = 0
}

// Source runs an LFO as a scheduled graph source. Its output drives a
// Param through Param.Modulate.
type Source struct {
	*graph.Node
	LFO LFO
	sr  float64
}

func NewSource(ctx *graph.Context, depth, rateHz float64, waveform int) *Source {
	s := &Source{sr: ctx.SampleRate()}
	s.LFO.Set(depth, rateHz, waveform)
	s.Node = graph.NewSource(ctx, "lfo", s)
	return s
}

func (s *Source) Generate() (float32, float32) {
	v := float32(s.LFO.Sample(s.sr))
	return v, v
}

// PitchCentsPerDepth is the vibrato width at full depth.
const PitchCentsPerDepth = 100

// ScaledDepth converts a normalised preset depth into parameter units:
// cents for pitch, Hz (relative to cutoff) for filter, and gain or pan
// position for amp and pan.
func ScaledDepth(target string, depth, cutoff float64) float64 {
	switch target {
	case "pitch":
		return depth * PitchCentsPerDepth
	case "filter":
		return depth * cutoff
	}
	return depth
}
