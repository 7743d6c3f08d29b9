package preset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFactoryLibrary(t *testing.T) {
	lib, err := Factory()
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if lib.Len() < 8 {
		t.Fatalf("factory has %d presets", lib.Len())
	}
	for _, id := range lib.IDs() {
		p, err := lib.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", id, err)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("published preset %q invalid: %v", id, err)
		}
		if p.Oscillator.Wavetable != "" {
			if _, ok := lib.Wavetable(p.Oscillator.Wavetable); !ok {
				t.Fatalf("preset %q references missing wavetable %q", id, p.Oscillator.Wavetable)
			}
		}
	}
	if _, err := lib.Lookup(DefaultID); err != nil {
		t.Fatalf("factory lacks the default preset: %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	lib, err := Factory()
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	if _, err := lib.Lookup("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	p, found := lib.LookupOrDefault("nope")
	if found || p == nil || p.ID != DefaultID {
		t.Fatalf("LookupOrDefault = %v/%v", p, found)
	}

	empty, err := NewLibrary(nil)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	p, found = empty.LookupOrDefault("anything")
	if found || p == nil || p.ID != DefaultID {
		t.Fatalf("empty library should fall back to the built-in preset")
	}
}

func TestCapabilities(t *testing.T) {
	lib, err := Factory()
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	cases := []struct {
		id   string
		want Capability
		not  Capability
	}{
		{"default", CapFilter, CapReverb | CapUnison},
		{"acid-bass", CapFilter | CapDelay | CapDistortion, CapReverb},
		{"super-saw", CapUnison | CapChorus | CapReverb, CapNoise},
		{"noise-sweep", CapNoise | CapLFO | CapReverb, CapSidechain},
		{"pluck", CapWavetable | CapTransient | CapSidechain | CapSaturation, CapFilter},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			p, err := lib.Lookup(tc.id)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			c := p.Capabilities()
			if !c.Has(tc.want) {
				t.Fatalf("caps %s missing %s", c, tc.want)
			}
			if c&tc.not != 0 {
				t.Fatalf("caps %s unexpectedly has %s", c, c&tc.not)
			}
		})
	}
}

func TestDisabledBlockIsNotACapability(t *testing.T) {
	p := Fallback()
	cp := *p
	cp.sealed = false
	cp.Reverb = &Reverb{Enabled: false, Decay: 2, Mix: 0.5}
	if cp.Capabilities().Has(CapReverb) {
		t.Fatalf("disabled reverb reported as capability")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := &Preset{
		Oscillator: Oscillator{Waveform: "wobble"},
		Envelope:   Envelope{Attack: -1, Sustain: 2},
		Filter:     &Filter{Type: "comb", Cutoff: 5},
		Volume:     math.NaN(),
	}
	err := p.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	msg := err.Error()
	for _, want := range []string{"missing id", "wobble", "attack", "sustain", "comb", "cutoff", "volume"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %q", msg, want)
		}
	}
}

func TestParseForms(t *testing.T) {
	single := `{"id":"a","oscillator":{"waveform":"sine"},"envelope":{"sustain":1},"volume":0.5}`
	array := `[` + single + `]`
	pack := `{"presets":[` + single + `],"wavetables":{"w":{"harmonics":[1]}}}`
	for name, doc := range map[string]string{"single": single, "array": array, "pack": pack} {
		t.Run(name, func(t *testing.T) {
			p, err := Parse([]byte(doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(p.Presets) != 1 || p.Presets[0].ID != "a" {
				t.Fatalf("unexpected pack %+v", p)
			}
		})
	}
	if _, err := Parse([]byte("  ")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty document err = %v", err)
	}
	if _, err := Parse([]byte("{oops")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad JSON err = %v", err)
	}
}

func TestReloadKeepsContentsOnError(t *testing.T) {
	lib, err := Factory()
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	before := lib.Len()
	bad := &Pack{Presets: []*Preset{{ID: "x", Volume: 3}}}
	if err := lib.Reload(bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if lib.Len() != before {
		t.Fatalf("failed reload changed library")
	}
}

func TestAddFromDisk(t *testing.T) {
	dir := t.TempDir()
	doc := `{"id":"disk-lead","name":"Disk","oscillator":{"waveform":"square"},"envelope":{"attack":0.01,"sustain":0.5},"volume":0.4}`
	if err := os.WriteFile(filepath.Join(dir, "lead.json"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pack, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	lib, err := Factory()
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	before := lib.Len()
	if err := lib.Add(pack); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if lib.Len() != before+1 {
		t.Fatalf("len = %d, want %d", lib.Len(), before+1)
	}
	if _, ok := lib.Wavetable("harp"); !ok {
		t.Fatalf("Add dropped factory wavetables")
	}
	if err := lib.Add(pack); err != nil || lib.Len() != before+1 {
		t.Fatalf("re-adding should replace, err=%v len=%d", err, lib.Len())
	}
}

func TestPublishedPresetIsACopy(t *testing.T) {
	src := &Preset{ID: "c", Oscillator: Oscillator{Waveform: "sine"}, Volume: 0.5}
	lib, err := NewLibrary(&Pack{Presets: []*Preset{src}})
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	src.Volume = 0.9
	p, _ := lib.Lookup("c")
	if p.Volume != 0.5 {
		t.Fatalf("library preset aliased caller's struct")
	}
}

func TestReloadCopiesNestedBlocks(t *testing.T) {
	src := &Preset{
		ID:         "c",
		Tags:       []string{"bass"},
		Oscillator: Oscillator{Waveform: "sine"},
		Filter:     &Filter{Type: "lowpass", Cutoff: 800},
		Reverb:     &Reverb{Enabled: true, Decay: 1, Mix: 0.2},
		Volume:     0.5,
	}
	lib, err := NewLibrary(&Pack{Presets: []*Preset{src}})
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	src.Filter.Cutoff = 5000
	src.Reverb.Mix = 1
	src.Tags[0] = "lead"

	p, _ := lib.Lookup("c")
	if p.Filter.Cutoff != 800 || p.Reverb.Mix != 0.2 || p.Tags[0] != "bass" {
		t.Fatalf("stored preset follows the caller's pack: %+v %+v %v", *p.Filter, *p.Reverb, p.Tags)
	}
}

func TestWavetableRender(t *testing.T) {
	table := WavetableSpec{Harmonics: []float64{1}}.Render(64)
	peak := 0.0
	for _, v := range table {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if math.Abs(peak-1) > 1e-6 {
		t.Fatalf("peak = %v, want 1", peak)
	}
	if math.Abs(float64(table[16])-1) > 1e-6 {
		t.Fatalf("quarter cycle = %v, want 1", table[16])
	}
}
