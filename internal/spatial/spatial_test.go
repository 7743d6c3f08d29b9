package spatial

import (
	"math"
	"testing"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

const testRate = 48000

// stereo feeds a different sine into each channel.
func stereo(ctx *graph.Context, fl, fr, amp float64) *graph.Node {
	l := graph.NewOscillator(ctx, graph.Sine, fl)
	r := graph.NewOscillator(ctx, graph.Sine, fr)
	l.Start(0)
	r.Start(0)
	pl := graph.NewPanner(ctx, -1)
	pr := graph.NewPanner(ctx, 1)
	mix := graph.NewGain(ctx, amp)
	l.Connect(pl.Node).Connect(mix.Node)
	r.Connect(pr.Node).Connect(mix.Node)
	return mix.Node
}

func render(ctx *graph.Context, seconds float64) []float32 {
	out := make([]float32, 2*int(seconds*testRate))
	ctx.Process(out)
	return out
}

func channelRMS(buf []float32, ch int) float64 {
	var sum float64
	n := 0
	for i := ch; i < len(buf); i += 2 {
		sum += float64(buf[i]) * float64(buf[i])
		n++
	}
	return math.Sqrt(sum / float64(n))
}

func TestMidSideRoundTrip(t *testing.T) {
	for _, frame := range [][2]float64{{0.5, -0.25}, {1, 1}, {-0.3, 0.9}, {0, 0}} {
		m, s := Encode(frame[0], frame[1])
		l, r := Decode(m, s)
		if math.Abs(l-frame[0]) > 1e-12 || math.Abs(r-frame[1]) > 1e-12 {
			t.Fatalf("round trip of %v = (%v, %v)", frame, l, r)
		}
	}

	ctx := graph.NewContext(testRate)
	ms := NewMidSide(ctx, DefaultMidSideSettings())
	var in []float32
	tap := graph.NewNode(ctx, "tap", graph.KernelFunc(func(l, r float32) (float32, float32) {
		in = append(in, l, r)
		return l, r
	}))
	stereo(ctx, 220, 330, 0.5).Connect(tap).Connect(ms.Input())
	ms.Output().Connect(ctx.Destination())
	out := render(ctx, 0.1)
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestMidSideWidth(t *testing.T) {
	cases := []struct {
		name  string
		width float64
		check func(l, r float32) bool
	}{
		{"mono", 0, func(l, r float32) bool { return l == r }},
		{"clamped", 5, func(l, r float32) bool { return true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := graph.NewContext(testRate)
			s := DefaultMidSideSettings()
			s.Width = tc.width
			ms := NewMidSide(ctx, s)
			if got := ms.Width.ValueAt(0); got > 2 {
				t.Fatalf("width %v not clamped", got)
			}
			stereo(ctx, 220, 330, 0.5).Connect(ms.Input())
			ms.Output().Connect(ctx.Destination())
			out := render(ctx, 0.05)
			for i := 0; i < len(out); i += 2 {
				if !tc.check(out[i], out[i+1]) {
					t.Fatalf("frame %d = (%v, %v)", i/2, out[i], out[i+1])
				}
			}
		})
	}
}

func TestMidSideSettersUpdateSettings(t *testing.T) {
	ctx := graph.NewContext(testRate)
	m := NewMidSide(ctx, DefaultMidSideSettings())
	m.SetWidth(3)
	m.SetMidGain(-2)
	m.SetSideGain(1.5)
	m.SetMonoBelow(120)
	m.SetSideEQ(Shelf{High: 3})

	want := MidSideSettings{Mid: -2, Side: 1.5, Width: 2, MonoBelow: 120, SideEQ: Shelf{High: 3}}
	if got := m.Settings(); got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
	m.Configure(m.Settings())
	if got := m.Settings(); got != want {
		t.Fatalf("reconfigured settings = %+v, want %+v", got, want)
	}
	m.SetMonoBelow(0)
	if got := m.Settings().MonoBelow; got != 0 {
		t.Fatalf("MonoBelow = %v after disabling", got)
	}
}

func TestMidSideMonoBelow(t *testing.T) {
	side := func(freq float64) float64 {
		ctx := graph.NewContext(testRate)
		s := DefaultMidSideSettings()
		s.MonoBelow = 150
		ms := NewMidSide(ctx, s)
		// hard left only: mid and side carry equal energy
		stereo(ctx, freq, freq, 0.5).Connect(graph.NewPanner(ctx, -1).Node).Connect(ms.Input())
		ms.Output().Connect(ctx.Destination())
		out := render(ctx, 0.5)
		half := out[len(out)/2:]
		var sum float64
		for i := 0; i < len(half); i += 2 {
			d := float64(half[i]-half[i+1]) / 2
			sum += d * d
		}
		return math.Sqrt(sum / float64(len(half)/2))
	}
	if lo, hi := side(40), side(2000); lo > hi*0.05 {
		t.Fatalf("side at 40 Hz = %v, at 2 kHz = %v; low end should be mono", lo, hi)
	}
}

func TestMidSideShelfBoostsSide(t *testing.T) {
	ctx := graph.NewContext(testRate)
	s := DefaultMidSideSettings()
	s.SideEQ = Shelf{High: 6}
	ms := NewMidSide(ctx, s)
	stereo(ctx, 10000, 10000, 0.25).Connect(graph.NewPanner(ctx, -1).Node).Connect(ms.Input())
	ms.Output().Connect(ctx.Destination())
	out := render(ctx, 0.2)
	half := out[len(out)/2:]
	// hard-left input: L = M+S, R = M-S with M = S before the shelf
	if channelRMS(half, 1) < 0.02 {
		t.Fatalf("boosted side should leak into the right channel")
	}
}

func TestMasteringQuietPassThrough(t *testing.T) {
	ctx := graph.NewContext(testRate)
	s := DefaultMasteringSettings()
	s.Exciter = 0
	m := NewMastering(ctx, s)
	stereo(ctx, 440, 440, 0.1).Connect(m.Input())
	m.Output().Connect(ctx.Destination())
	out := render(ctx, 0.3)
	want := 0.1 / math.Sqrt2
	for ch := 0; ch < 2; ch++ {
		if got := channelRMS(out[len(out)/2:], ch); math.Abs(got-want)/want > 0.02 {
			t.Fatalf("channel %d rms = %v, want %v", ch, got, want)
		}
	}
}

func TestMasteringEQAndTrim(t *testing.T) {
	level := func(band int, gain, trim float64) float64 {
		ctx := graph.NewContext(testRate)
		s := DefaultMasteringSettings()
		s.Exciter = 0
		s.Trim = trim
		m := NewMastering(ctx, s)
		m.SetEQGain(band, gain)
		if m.EQGain(band) != gain {
			t.Fatalf("EQGain(%d) = %v", band, m.EQGain(band))
		}
		stereo(ctx, 40, 40, 0.05).Connect(m.Input())
		m.Output().Connect(ctx.Destination())
		out := render(ctx, 0.5)
		return channelRMS(out[len(out)/2:], 0)
	}
	flat := level(LowShelf, 0, 0)
	boosted := level(LowShelf, 6, 0)
	if db := 20 * math.Log10(boosted/flat); db < 4 || db > 7 {
		t.Fatalf("low shelf boost = %.2f dB, want about 6", db)
	}
	trimmed := level(HighShelf, 0, -6)
	if db := 20 * math.Log10(trimmed/flat); math.Abs(db+6) > 0.2 {
		t.Fatalf("trim = %.2f dB, want -6", db)
	}
}

func TestMasteringHoldsCeiling(t *testing.T) {
	ctx := graph.NewContext(testRate)
	s := DefaultMasteringSettings()
	s.Exciter = 1
	m := NewMastering(ctx, s)
	stereo(ctx, 5000, 5000, 3).Connect(m.Input())
	m.Output().Connect(ctx.Destination())
	out := render(ctx, 0.3)
	ceiling := math.Pow(10, -1.0/20)
	for i, v := range out {
		if math.Abs(float64(v)) > ceiling+1e-6 {
			t.Fatalf("sample %d = %v over ceiling", i, v)
		}
	}
	if m.GainReduction() <= 0 {
		t.Fatalf("limiter idle on a hot signal")
	}
}
