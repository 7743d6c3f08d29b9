package filters

import (
	"math"
	"testing"

	"github.com/cbegin/synthgraph-go/internal/envelope"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

const testRate = 48000

// render pulls frames of stereo output from f with src feeding it.
func render(ctx *graph.Context, src *graph.Node, f FilterModule, frames int) []float32 {
	if src != nil {
		src.Connect(f.Input())
	}
	f.Output().Connect(ctx.Destination())
	out := make([]float32, frames*2)
	ctx.Process(out)
	return out
}

func rms(buf []float32) float64 {
	var sum float64
	for _, v := range buf {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func TestResonantFiltersStayFinite(t *testing.T) {
	builders := map[string]func(ctx *graph.Context, cutoff, res float64) FilterModule{
		"biquad": func(ctx *graph.Context, cutoff, res float64) FilterModule {
			b := NewBiquad(ctx, graph.Lowpass, cutoff, res)
			b.SetDrive(1)
			return b
		},
		"ladder": func(ctx *graph.Context, cutoff, res float64) FilterModule {
			return NewLadder(ctx, cutoff, res, 1)
		},
		"acid": func(ctx *graph.Context, cutoff, res float64) FilterModule {
			a := NewAcid(ctx, cutoff, res)
			a.SetDrive(1)
			a.SetEnvMod(1)
			a.SetAccent(1)
			return a
		},
	}
	for name, build := range builders {
		for _, res := range []float64{0, 0.5, 0.95, 0.99} {
			for _, cutoff := range []float64{20, 1000, 8000, 20000} {
				ctx := graph.NewContext(testRate)
				noise := graph.NewNoise(ctx, graph.WhiteNoise, 1)
				noise.Start(0)
				gain := graph.NewGain(ctx, 4)
				noise.Connect(gain.Node)
				f := build(ctx, cutoff, res)
				if trig, ok := f.(Triggerable); ok {
					for i := 0; i < 20; i++ {
						trig.TriggerEnvelope(float64(i)*0.25, 1)
					}
				}
				// The destination sanitizes, so inspect the raw filter output.
				bad := -1
				frame := 0
				tap := graph.NewNode(ctx, "tap", graph.KernelFunc(func(l, r float32) (float32, float32) {
					if bad < 0 && (!finite(l) || !finite(r)) {
						bad = frame
					}
					frame++
					return l, r
				}))
				gain.Connect(f.Input())
				f.Output().Connect(tap).Connect(ctx.Destination())
				buf := make([]float32, 2*1024)
				for rendered := 0; rendered < 5*testRate; rendered += 1024 {
					ctx.Process(buf)
				}
				if bad >= 0 {
					t.Fatalf("%s res=%v cutoff=%v: non-finite sample at %d", name, res, cutoff, bad)
				}
			}
		}
	}
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func TestLadderSelfOscillates(t *testing.T) {
	for _, res := range []float64{0.95, 0.97, 0.99} {
		ctx := graph.NewContext(testRate)
		l := NewLadder(ctx, 1000, res, 0)
		out := render(ctx, nil, l, 2*testRate)

		tail := out[len(out)-testRate/2:]
		if got := rms(tail); got < 0.01 {
			t.Fatalf("res=%v: rms with no input = %v, want an audible tone", res, got)
		}
		crossings := 0
		for i := 2; i < len(tail); i += 2 {
			if tail[i-2] < 0 && tail[i] >= 0 {
				crossings++
			}
		}
		hz := float64(crossings) / 0.25
		if hz < 900 || hz > 1100 {
			t.Fatalf("res=%v: oscillation at %v Hz, want near the 1000 Hz cutoff", res, hz)
		}
	}
}

func TestLadderQuietBelowThreshold(t *testing.T) {
	ctx := graph.NewContext(testRate)
	l := NewLadder(ctx, 1000, 0.5, 0)
	out := render(ctx, nil, l, testRate)
	if got := rms(out); got > 1e-4 {
		t.Fatalf("rms with no input = %v, want silence", got)
	}
}

func TestAcidTriggerEnvelope(t *testing.T) {
	ctx := graph.NewContext(testRate)
	a := NewAcid(ctx, 600, 0.5)
	a.SetEnvMod(1)
	a.SetAccent(0.5)
	a.SetDecay(0.2)

	const at = 1.0
	a.TriggerEnvelope(at, 1)
	c := a.Cutoff()
	// 600 + 5000*1*(1+0.5*0.5)
	if got := c.ValueAt(at); math.Abs(got-6850) > 1e-6 {
		t.Fatalf("peak cutoff = %v, want 6850", got)
	}
	if got := c.ValueAt(at + 0.2); math.Abs(got-600) > 1e-6 {
		t.Fatalf("cutoff after decay = %v, want 600", got)
	}
	mid := c.ValueAt(at + 0.1)
	if want := math.Sqrt(6850 * 600); math.Abs(mid-want) > 1e-6 {
		t.Fatalf("midpoint = %v, want exponential %v", mid, want)
	}
	if got := c.ValueAt(at - 0.01); got != 600 {
		t.Fatalf("cutoff before trigger = %v, want 600", got)
	}
	if got := a.InputGain().ValueAt(at); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("accent gain = %v, want 1.5", got)
	}
	if got := a.InputGain().ValueAt(at + 2); math.Abs(got-1) > 1e-3 {
		t.Fatalf("accent gain did not settle: %v", got)
	}
}

func TestAcidPeakCutoffIsCapped(t *testing.T) {
	ctx := graph.NewContext(testRate)
	a := NewAcid(ctx, 18000, 0)
	a.SetEnvMod(1)
	a.SetAccent(1)
	if got := a.PeakCutoff(1); got != 20000 {
		t.Fatalf("peak = %v, want 20000", got)
	}
	if got := a.PeakCutoff(0); got != 18000 {
		t.Fatalf("peak at zero velocity = %v, want base", got)
	}
}

func TestAcidRetriggerReplacesEnvelope(t *testing.T) {
	ctx := graph.NewContext(testRate)
	a := NewAcid(ctx, 500, 0)
	a.SetEnvMod(0.5)
	a.TriggerEnvelope(1, 1)
	a.TriggerEnvelope(1.05, 0.5)
	want := a.PeakCutoff(0.5)
	if got := a.Cutoff().ValueAt(1.05); math.Abs(got-want) > 1e-6 {
		t.Fatalf("retrigger peak = %v, want %v", got, want)
	}
}

func TestAcidRetriggerKeepsDecaying(t *testing.T) {
	ctx := graph.NewContext(testRate)
	a := NewAcid(ctx, 600, 0)
	a.SetEnvMod(1)
	a.SetDecay(0.5)
	a.TriggerEnvelope(1.0, 1)
	a.TriggerEnvelope(1.4, 1)

	c := a.Cutoff()
	prev := c.ValueAt(1.0)
	if prev != 5600 {
		t.Fatalf("first peak = %v, want 5600", prev)
	}
	for _, at := range []float64{1.1, 1.2, 1.3, 1.39} {
		got := c.ValueAt(at)
		want := 5600 * math.Pow(600.0/5600, (at-1)/0.5)
		if math.Abs(got-want) > 1e-6 {
			t.Fatalf("cutoff at %v = %v, want %v", at, got, want)
		}
		if got >= prev {
			t.Fatalf("cutoff at %v = %v did not fall below %v", at, got, prev)
		}
		prev = got
	}
	if got := c.ValueAt(1.4); got != 5600 {
		t.Fatalf("second peak = %v, want 5600", got)
	}
	if got := c.ValueAt(1.9); math.Abs(got-600) > 1e-6 {
		t.Fatalf("cutoff after second decay = %v, want 600", got)
	}
}

func TestClampResonance(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{0.99, 0.99},
		{1, 0.99},
		{7, 0.99},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := ClampResonance(tc.in); got != tc.want {
			t.Fatalf("ClampResonance(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if got := ClampCutoff(30000, 48000); got != 20000 {
		t.Fatalf("ClampCutoff high = %v", got)
	}
	if got := ClampCutoff(30000, 22050); math.Abs(got-0.45*22050) > 1e-9 {
		t.Fatalf("ClampCutoff at low rate = %v", got)
	}
	if got := ClampCutoff(1, 48000); got != 20 {
		t.Fatalf("ClampCutoff low = %v", got)
	}
}

func TestNewSelectsVariant(t *testing.T) {
	ctx := graph.NewContext(testRate)
	cases := []struct {
		typ  string
		want Kind
	}{
		{"lowpass", KindBiquad},
		{"highpass", KindBiquad},
		{"bandpass", KindBiquad},
		{"notch", KindBiquad},
		{"moog", KindLadder},
		{"tb303", KindAcid},
	}
	for _, tc := range cases {
		f, err := New(ctx, Settings{Type: tc.typ, Cutoff: 800, Resonance: 0.3})
		if err != nil {
			t.Fatalf("New(%q): %v", tc.typ, err)
		}
		if f.Kind() != tc.want {
			t.Fatalf("New(%q) kind = %v, want %v", tc.typ, f.Kind(), tc.want)
		}
		_, trig := f.(Triggerable)
		if trig != (tc.want == KindAcid) {
			t.Fatalf("New(%q) triggerable = %v", tc.typ, trig)
		}
		f.Dispose()
		f.Dispose()
	}
	if _, err := New(ctx, Settings{Type: "comb"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := New(ctx, Settings{Type: "peaking"}); err == nil {
		t.Fatalf("expected error for non-filter biquad type")
	}
}

func TestScheduleCutoffEnvelope(t *testing.T) {
	ctx := graph.NewContext(testRate)
	f := NewBiquad(ctx, graph.Lowpass, 1000, 0)
	env := envelope.ADSR{Attack: 0.1, Decay: 0.1, Sustain: 0.5, Release: 0.2}
	ScheduleCutoffEnvelope(f, env, 0.5, 0, 1)

	c := f.Cutoff()
	cases := []struct{ at, want float64 }{
		{0, 1000},
		{0.1, 3500},
		{0.5, 2250},
		{1, 1000},
	}
	for _, tc := range cases {
		if got := c.ValueAt(tc.at); math.Abs(got-tc.want) > 1e-6 {
			t.Fatalf("cutoff at %v = %v, want %v", tc.at, got, tc.want)
		}
	}

	flat := NewBiquad(ctx, graph.Lowpass, 1000, 0)
	ScheduleCutoffEnvelope(flat, env, 0, 0, 1)
	if flat.Cutoff().NumEvents() != 0 {
		t.Fatalf("zero amount should schedule nothing")
	}
}

func TestLadderPassesLowFrequencies(t *testing.T) {
	ctx := graph.NewContext(testRate)
	osc := graph.NewOscillator(ctx, graph.Sine, 100)
	osc.Start(0)
	in := graph.NewGain(ctx, 0.25)
	osc.Connect(in.Node)
	l := NewLadder(ctx, 5000, 0, 0)
	out := render(ctx, in.Node, l, testRate/2)
	if got := rms(out[len(out)/2:]); got < 0.1 {
		t.Fatalf("passband rms = %v, want signal through", got)
	}

	ctx = graph.NewContext(testRate)
	osc = graph.NewOscillator(ctx, graph.Sine, 8000)
	osc.Start(0)
	in = graph.NewGain(ctx, 0.25)
	osc.Connect(in.Node)
	l = NewLadder(ctx, 200, 0, 0)
	out = render(ctx, in.Node, l, testRate/2)
	if got := rms(out[len(out)/2:]); got > 1e-3 {
		t.Fatalf("stopband rms = %v, want heavy attenuation", got)
	}
}
