package preset

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotFound = errors.New("preset not found")
	ErrInvalid  = errors.New("invalid preset")
)

// Validate checks every field and reports all violations at once.
func (p *Preset) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	inRange := func(name string, v, lo, hi float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
			bad("%s %v outside [%v, %v]", name, v, lo, hi)
		}
	}
	nonNeg := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			bad("%s %v must be a non-negative number", name, v)
		}
	}

	if p.ID == "" {
		bad("missing id")
	}

	o := p.Oscillator
	if o.Wavetable == "" && !validWaveform(o.Waveform) {
		bad("oscillator waveform %q unknown", o.Waveform)
	}
	if o.Secondary != "" && !validWaveform(o.Secondary) {
		bad("secondary waveform %q unknown", o.Secondary)
	}
	inRange("secondaryMix", o.SecondaryMix, 0, 1)
	inRange("detune", o.Detune, -1200, 1200)
	if o.Octave < -4 || o.Octave > 4 {
		bad("octave %d outside [-4, 4]", o.Octave)
	}

	e := p.Envelope
	nonNeg("attack", e.Attack)
	nonNeg("decay", e.Decay)
	nonNeg("release", e.Release)
	inRange("sustain", e.Sustain, 0, 1)

	if f := p.Filter; f != nil {
		switch f.Type {
		case FilterLowpass, FilterHighpass, FilterBandpass, FilterNotch, FilterMoog, FilterTB303:
		default:
			bad("filter type %q unknown", f.Type)
		}
		inRange("filter cutoff", f.Cutoff, 20, 20000)
		inRange("filter resonance", f.Resonance, 0, 1)
		inRange("filter drive", f.Drive, 0, 1)
		inRange("filter envAmount", f.EnvAmount, -1, 1)
		nonNeg("filter attack", f.Attack)
		nonNeg("filter decay", f.Decay)
		nonNeg("filter release", f.Release)
		inRange("filter sustain", f.Sustain, 0, 1)
		inRange("filter accent", f.Accent, 0, 1)
	}

	if l := p.LFO; l != nil {
		if !validWaveform(l.Waveform) && l.Waveform != "random" {
			bad("lfo waveform %q unknown", l.Waveform)
		}
		inRange("lfo rate", l.Rate, 0, 100)
		inRange("lfo depth", l.Depth, 0, 1)
		switch l.Target {
		case TargetPitch, TargetFilter, TargetAmp, TargetPan:
		default:
			bad("lfo target %q unknown", l.Target)
		}
	}

	if n := p.Noise; n != nil {
		switch n.Type {
		case "white", "pink", "brown":
		default:
			bad("noise type %q unknown", n.Type)
		}
		inRange("noise amount", n.Amount, 0, 1)
	}

	if s := p.Saturation; s != nil {
		switch s.Type {
		case "tape", "tube", "warm":
		default:
			bad("saturation type %q unknown", s.Type)
		}
		inRange("saturation drive", s.Drive, 0, 1)
		inRange("saturation mix", s.Mix, 0, 1)
	}
	if s := p.SubBass; s != nil {
		inRange("subBass low", s.Low, 10, 200)
		inRange("subBass high", s.High, 10, 300)
		if s.High <= s.Low {
			bad("subBass window [%v, %v] is empty", s.Low, s.High)
		}
		inRange("subBass amount", s.Amount, 0, 1)
		inRange("subBass mix", s.Mix, 0, 1)
	}
	if s := p.Transient; s != nil {
		inRange("transient attack", s.Attack, -1, 1)
		inRange("transient sustain", s.Sustain, -1, 1)
	}
	if s := p.Sidechain; s != nil {
		inRange("sidechain amount", s.Amount, 0, 1)
		nonNeg("sidechain attack", s.Attack)
		nonNeg("sidechain release", s.Release)
		nonNeg("sidechain interval", s.Interval)
	}
	if v := p.Vintage; v != nil {
		switch v.Model {
		case ModelFET, ModelOpto, ModelVariMu:
		default:
			bad("vintage model %q unknown", v.Model)
		}
		inRange("vintage threshold", v.Threshold, -60, 0)
		inRange("vintage ratio", v.Ratio, 1, 20)
		inRange("vintage makeup", v.Makeup, -12, 24)
		inRange("vintage mix", v.Mix, 0, 1)
	}
	if c := p.Chorus; c != nil {
		inRange("chorus rate", c.Rate, 0, 20)
		inRange("chorus depth", c.Depth, 0, 1)
		inRange("chorus delay", c.Delay, 0, 0.1)
		inRange("chorus mix", c.Mix, 0, 1)
	}
	if d := p.Delay; d != nil {
		inRange("delay time", d.Time, 0, 5)
		inRange("delay feedback", d.Feedback, 0, 0.95)
		inRange("delay crossFeed", d.CrossFeed, 0, 1)
		inRange("delay mix", d.Mix, 0, 1)
	}
	if r := p.Reverb; r != nil {
		inRange("reverb decay", r.Decay, 0.1, 10)
		inRange("reverb preDelay", r.PreDelay, 0, 0.5)
		inRange("reverb mix", r.Mix, 0, 1)
	}

	inRange("distortion", p.Distortion, 0, 1)
	if p.Unison < 0 || p.Unison > 16 {
		bad("unison %d outside [0, 16]", p.Unison)
	}
	inRange("spread", p.Spread, 0, 1)
	inRange("volume", p.Volume, 0, 1)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalid, p.ID, errors.Join(errs...))
}

func validWaveform(w string) bool {
	switch w {
	case "sine", "square", "sawtooth", "saw", "triangle":
		return true
	}
	return false
}
