package preset

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
)

//go:embed presets/*.json
var factoryFS embed.FS

// WavetableSize is the length of a generated single-cycle table.
const WavetableSize = 2048

// WavetableSpec describes a single-cycle wave as sine harmonic amplitudes,
// fundamental first.
type WavetableSpec struct {
	Harmonics []float64 `json:"harmonics"`
}

// Pack is the on-disk unit: a set of presets plus the wavetables they
// reference.
type Pack struct {
	Presets    []*Preset                `json:"presets"`
	Wavetables map[string]WavetableSpec `json:"wavetables,omitempty"`
}

// Parse decodes a pack. A bare preset object or an array of presets is
// accepted as a pack without wavetables.
func Parse(data []byte) (*Pack, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}
	if trimmed[0] == '[' {
		var presets []*Preset
		if err := json.Unmarshal(trimmed, &presets); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		return &Pack{Presets: presets}, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, ok := keys["presets"]; ok {
		var pack Pack
		if err := json.Unmarshal(trimmed, &pack); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		return &pack, nil
	}
	var p Preset
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &Pack{Presets: []*Preset{&p}}, nil
}

// Load reads every *.json file in dir of fsys and merges them into one
// pack, in file name order.
func Load(fsys fs.FS, dir string) (*Pack, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	merged := &Pack{Wavetables: map[string]WavetableSpec{}}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		pack, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		merged.merge(pack)
	}
	return merged, nil
}

// LoadFile reads a single pack file from disk.
func LoadFile(name string) (*Pack, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	pack, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return pack, nil
}

// LoadDir reads every pack in a directory on disk.
func LoadDir(dir string) (*Pack, error) {
	return Load(os.DirFS(dir), ".")
}

func (p *Pack) merge(other *Pack) {
	p.Presets = append(p.Presets, other.Presets...)
	if p.Wavetables == nil {
		p.Wavetables = map[string]WavetableSpec{}
	}
	for k, v := range other.Wavetables {
		p.Wavetables[k] = v
	}
}

// Validate checks every preset, duplicate ids and wavetable definitions.
func (p *Pack) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(p.Presets))
	for i, pr := range p.Presets {
		if pr == nil {
			errs = append(errs, fmt.Errorf("%w: entry %d is null", ErrInvalid, i))
			continue
		}
		if err := pr.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[pr.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate id %q", ErrInvalid, pr.ID))
		}
		seen[pr.ID] = true
	}
	for name, spec := range p.Wavetables {
		if len(spec.Harmonics) == 0 {
			errs = append(errs, fmt.Errorf("%w: wavetable %q has no harmonics", ErrInvalid, name))
		}
	}
	return errors.Join(errs...)
}

// Library is the published preset set. Lookups are safe while Reload
// swaps the contents.
type Library struct {
	mu         sync.RWMutex
	presets    map[string]*Preset
	wavetables map[string][]float32
	specs      map[string]WavetableSpec
}

// NewLibrary validates pack and publishes it.
func NewLibrary(pack *Pack) (*Library, error) {
	l := &Library{}
	if err := l.Reload(pack); err != nil {
		return nil, err
	}
	return l, nil
}

// Factory returns a library holding the embedded factory presets.
func Factory() (*Library, error) {
	pack, err := Load(factoryFS, "presets")
	if err != nil {
		return nil, err
	}
	return NewLibrary(pack)
}

// Reload validates pack and atomically replaces the library contents.
// On error the current contents are kept.
func (l *Library) Reload(pack *Pack) error {
	if pack == nil {
		pack = &Pack{}
	}
	if err := pack.Validate(); err != nil {
		return err
	}
	presets := make(map[string]*Preset, len(pack.Presets))
	for _, p := range pack.Presets {
		cp := p.Clone()
		cp.seal()
		presets[cp.ID] = cp
	}
	tables := make(map[string][]float32, len(pack.Wavetables))
	specs := make(map[string]WavetableSpec, len(pack.Wavetables))
	for name, spec := range pack.Wavetables {
		tables[name] = spec.Render(WavetableSize)
		specs[name] = WavetableSpec{Harmonics: slices.Clone(spec.Harmonics)}
	}
	l.mu.Lock()
	l.presets = presets
	l.wavetables = tables
	l.specs = specs
	l.mu.Unlock()
	return nil
}

// Add validates pack and merges it over the current contents.
func (l *Library) Add(pack *Pack) error {
	if pack == nil {
		return nil
	}
	merged := l.snapshot()
	merged.merge(pack)
	dedup := make(map[string]int, len(merged.Presets))
	out := merged.Presets[:0]
	for _, p := range merged.Presets {
		if i, ok := dedup[p.ID]; ok {
			out[i] = p
			continue
		}
		dedup[p.ID] = len(out)
		out = append(out, p)
	}
	merged.Presets = out
	return l.Reload(merged)
}

func (l *Library) snapshot() *Pack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pack := &Pack{Wavetables: map[string]WavetableSpec{}}
	for _, id := range sortedKeys(l.presets) {
		pack.Presets = append(pack.Presets, l.presets[id])
	}
	for name, spec := range l.specs {
		pack.Wavetables[name] = spec
	}
	return pack
}

// Lookup returns the preset for id or ErrNotFound.
func (l *Library) Lookup(id string) (*Preset, error) {
	l.mu.RLock()
	p, ok := l.presets[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// LookupOrDefault returns the preset for id, or the default preset with
// found set to false. It never returns nil.
func (l *Library) LookupOrDefault(id string) (p *Preset, found bool) {
	if p, err := l.Lookup(id); err == nil {
		return p, true
	}
	if p, err := l.Lookup(DefaultID); err == nil {
		return p, false
	}
	return Fallback(), false
}

// Wavetable returns the rendered table for name.
func (l *Library) Wavetable(name string) ([]float32, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.wavetables[name]
	return t, ok
}

// IDs returns the preset ids in sorted order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedKeys(l.presets)
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.presets)
}

func sortedKeys(m map[string]*Preset) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render sums the harmonics into a peak-normalised single cycle.
func (w WavetableSpec) Render(n int) []float32 {
	out := make([]float32, n)
	peak := 0.0
	vals := make([]float64, n)
	for i := range vals {
		phase := 2 * math.Pi * float64(i) / float64(n)
		var v float64
		for h, amp := range w.Harmonics {
			v += amp * math.Sin(phase*float64(h+1))
		}
		vals[i] = v
		peak = math.Max(peak, math.Abs(v))
	}
	if peak == 0 {
		peak = 1
	}
	for i, v := range vals {
		out[i] = float32(v / peak)
	}
	return out
}
