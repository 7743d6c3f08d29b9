// Package preset holds the declarative sound description a voice is built
// from. Presets are loaded from JSON packs, validated once, and treated as
// read-only afterwards.
package preset

import (
	"slices"
	"strings"
)

// DefaultID names the preset substituted for unknown ids.
const DefaultID = "default"

type Preset struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Oscillator Oscillator `json:"oscillator"`
	Envelope   Envelope   `json:"envelope"`
	Filter     *Filter    `json:"filter,omitempty"`
	LFO        *LFO       `json:"lfo,omitempty"`
	Noise      *Noise     `json:"noise,omitempty"`

	Saturation *Saturation `json:"saturation,omitempty"`
	SubBass    *SubBass    `json:"subBass,omitempty"`
	Transient  *Transient  `json:"transient,omitempty"`
	Sidechain  *Sidechain  `json:"sidechain,omitempty"`
	Vintage    *Vintage    `json:"vintage,omitempty"`
	Chorus     *Chorus     `json:"chorus,omitempty"`
	Delay      *Delay      `json:"delay,omitempty"`
	Reverb     *Reverb     `json:"reverb,omitempty"`

	Distortion float64 `json:"distortion,omitempty"`
	Unison     int     `json:"unison,omitempty"`
	Spread     float64 `json:"spread,omitempty"`
	Volume     float64 `json:"volume"`

	caps   Capability
	sealed bool
}

type Oscillator struct {
	Waveform     string  `json:"waveform"`
	Wavetable    string  `json:"wavetable,omitempty"`
	Secondary    string  `json:"secondary,omitempty"`
	SecondaryMix float64 `json:"secondaryMix,omitempty"`
	Detune       float64 `json:"detune,omitempty"`
	Octave       int     `json:"octave,omitempty"`
}

type Envelope struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

// Filter types. Moog selects the ladder filter, TB303 the acid filter.
const (
	FilterLowpass  = "lowpass"
	FilterHighpass = "highpass"
	FilterBandpass = "bandpass"
	FilterNotch    = "notch"
	FilterMoog     = "moog"
	FilterTB303    = "tb303"
)

type Filter struct {
	Type      string  `json:"type"`
	Cutoff    float64 `json:"cutoff"`
	Resonance float64 `json:"resonance"`
	Drive     float64 `json:"drive,omitempty"`
	EnvAmount float64 `json:"envAmount,omitempty"`
	Attack    float64 `json:"attack,omitempty"`
	Decay     float64 `json:"decay,omitempty"`
	Sustain   float64 `json:"sustain,omitempty"`
	Release   float64 `json:"release,omitempty"`
	Accent    float64 `json:"accent,omitempty"`
}

// IsBiquad reports whether the filter is a standard second-order type.
func (f *Filter) IsBiquad() bool {
	switch f.Type {
	case FilterLowpass, FilterHighpass, FilterBandpass, FilterNotch:
		return true
	}
	return false
}

// LFO targets.
const (
	TargetPitch  = "pitch"
	TargetFilter = "filter"
	TargetAmp    = "amp"
	TargetPan    = "pan"
)

type LFO struct {
	Waveform string  `json:"waveform"`
	Rate     float64 `json:"rate"`
	Depth    float64 `json:"depth"`
	Target   string  `json:"target"`
}

type Noise struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

type Saturation struct {
	Enabled bool    `json:"enabled"`
	Type    string  `json:"type"`
	Drive   float64 `json:"drive"`
	Mix     float64 `json:"mix"`
}

type SubBass struct {
	Enabled bool    `json:"enabled"`
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Amount  float64 `json:"amount"`
	Mix     float64 `json:"mix"`
	Mono    bool    `json:"mono"`
}

type Transient struct {
	Enabled bool    `json:"enabled"`
	Attack  float64 `json:"attack"`
	Sustain float64 `json:"sustain"`
}

type Sidechain struct {
	Enabled  bool    `json:"enabled"`
	Amount   float64 `json:"amount"`
	Attack   float64 `json:"attack"`
	Release  float64 `json:"release"`
	Interval float64 `json:"interval,omitempty"`
}

// Vintage compressor models.
const (
	ModelFET    = "fet"
	ModelOpto   = "opto"
	ModelVariMu = "varimu"
)

type Vintage struct {
	Enabled   bool    `json:"enabled"`
	Model     string  `json:"model"`
	Threshold float64 `json:"threshold"`
	Ratio     float64 `json:"ratio"`
	Makeup    float64 `json:"makeup,omitempty"`
	Mix       float64 `json:"mix"`
}

type Chorus struct {
	Enabled bool    `json:"enabled"`
	Rate    float64 `json:"rate"`
	Depth   float64 `json:"depth"`
	Delay   float64 `json:"delay"`
	Mix     float64 `json:"mix"`
}

type Delay struct {
	Enabled   bool    `json:"enabled"`
	Time      float64 `json:"time"`
	Feedback  float64 `json:"feedback"`
	CrossFeed float64 `json:"crossFeed,omitempty"`
	Mix       float64 `json:"mix"`
}

type Reverb struct {
	Enabled  bool    `json:"enabled"`
	Impulse  string  `json:"impulse,omitempty"`
	Decay    float64 `json:"decay"`
	PreDelay float64 `json:"preDelay,omitempty"`
	Mix      float64 `json:"mix"`
}

// Capability is a bitset of the optional blocks a preset enables.
type Capability uint32

const (
	CapFilter Capability = 1 << iota
	CapLFO
	CapNoise
	CapDistortion
	CapSaturation
	CapSubBass
	CapTransient
	CapSidechain
	CapVintage
	CapChorus
	CapDelay
	CapReverb
	CapUnison
	CapSecondary
	CapWavetable
)

var capNames = []struct {
	c    Capability
	name string
}{
	{CapFilter, "filter"},
	{CapLFO, "lfo"},
	{CapNoise, "noise"},
	{CapDistortion, "distortion"},
	{CapSaturation, "saturation"},
	{CapSubBass, "subbass"},
	{CapTransient, "transient"},
	{CapSidechain, "sidechain"},
	{CapVintage, "vintage"},
	{CapChorus, "chorus"},
	{CapDelay, "delay"},
	{CapReverb, "reverb"},
	{CapUnison, "unison"},
	{CapSecondary, "secondary"},
	{CapWavetable, "wavetable"},
}

func (c Capability) Has(flag Capability) bool { return c&flag == flag }

func (c Capability) String() string {
	var names []string
	for _, n := range capNames {
		if c.Has(n.c) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Capabilities returns the enabled optional blocks. Published presets
// return the flags computed at load.
func (p *Preset) Capabilities() Capability {
	if p.sealed {
		return p.caps
	}
	return p.computeCapabilities()
}

func (p *Preset) computeCapabilities() Capability {
	var c Capability
	if p.Filter != nil {
		c |= CapFilter
	}
	if p.LFO != nil && p.LFO.Depth != 0 && p.LFO.Rate > 0 {
		c |= CapLFO
	}
	if p.Noise != nil && p.Noise.Amount > 0 {
		c |= CapNoise
	}
	if p.Distortion > 0 {
		c |= CapDistortion
	}
	if p.Saturation != nil && p.Saturation.Enabled {
		c |= CapSaturation
	}
	if p.SubBass != nil && p.SubBass.Enabled {
		c |= CapSubBass
	}
	if p.Transient != nil && p.Transient.Enabled {
		c |= CapTransient
	}
	if p.Sidechain != nil && p.Sidechain.Enabled {
		c |= CapSidechain
	}
	if p.Vintage != nil && p.Vintage.Enabled {
		c |= CapVintage
	}
	if p.Chorus != nil && p.Chorus.Enabled {
		c |= CapChorus
	}
	if p.Delay != nil && p.Delay.Enabled {
		c |= CapDelay
	}
	if p.Reverb != nil && p.Reverb.Enabled {
		c |= CapReverb
	}
	if p.Unison > 1 {
		c |= CapUnison
	}
	if p.Oscillator.Secondary != "" && p.Oscillator.SecondaryMix > 0 {
		c |= CapSecondary
	}
	if p.Oscillator.Wavetable != "" {
		c |= CapWavetable
	}
	return c
}

// Clone returns a copy of p that shares no memory with it.
func (p *Preset) Clone() *Preset {
	cp := *p
	cp.Tags = slices.Clone(p.Tags)
	cp.Filter = clonePtr(p.Filter)
	cp.LFO = clonePtr(p.LFO)
	cp.Noise = clonePtr(p.Noise)
	cp.Saturation = clonePtr(p.Saturation)
	cp.SubBass = clonePtr(p.SubBass)
	cp.Transient = clonePtr(p.Transient)
	cp.Sidechain = clonePtr(p.Sidechain)
	cp.Vintage = clonePtr(p.Vintage)
	cp.Chorus = clonePtr(p.Chorus)
	cp.Delay = clonePtr(p.Delay)
	cp.Reverb = clonePtr(p.Reverb)
	return &cp
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (p *Preset) seal() {
	p.caps = p.computeCapabilities()
	p.sealed = true
}

// UnisonCount returns the number of stacked voices, at least one.
func (p *Preset) UnisonCount() int {
	if p.Unison < 1 {
		return 1
	}
	return p.Unison
}

// Fallback is the built-in preset used when even the default preset is
// missing from a library.
func Fallback() *Preset {
	p := &Preset{
		ID:         DefaultID,
		Name:       "Init",
		Category:   "basic",
		Oscillator: Oscillator{Waveform: "sawtooth"},
		Envelope:   Envelope{Attack: 0.01, Decay: 0.1, Sustain: 0.7, Release: 0.2},
		Filter:     &Filter{Type: FilterLowpass, Cutoff: 4000, Resonance: 0.1},
		Volume:     0.7,
	}
	p.seal()
	return p
}
