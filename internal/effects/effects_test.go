package effects

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
	"github.com/cbegin/synthgraph-go/internal/impulse"
)

const testRate = 44100

// click emits one frame of (l, r) and silence afterwards.
type click struct {
	l, r float32
	done bool
}

func (c *click) Generate() (float32, float32) {
	if c.done {
		return 0, 0
	}
	c.done = true
	return c.l, c.r
}

func newClick(ctx *graph.Context, l, r float32) *graph.Node {
	n := graph.NewSource(ctx, "click", &click{l: l, r: r})
	n.Start(0)
	return n
}

func sine(ctx *graph.Context, freq, amp float64) *graph.Node {
	osc := graph.NewOscillator(ctx, graph.Sine, freq)
	osc.Start(0)
	g := graph.NewGain(ctx, amp)
	osc.Connect(g.Node)
	return g.Node
}

func render(ctx *graph.Context, seconds float64) []float32 {
	out := make([]float32, 2*int(seconds*testRate))
	ctx.Process(out)
	return out
}

// loudest returns the frame index and value of the largest sample of ch in
// frames [from, to).
func loudest(buf []float32, ch, from, to int) (int, float32) {
	idx, best := -1, float32(0)
	for i := from; i < to && 2*i+ch < len(buf); i++ {
		if v := buf[2*i+ch]; math.Abs(float64(v)) > math.Abs(float64(best)) {
			idx, best = i, v
		}
	}
	return idx, best
}

func TestDelayProducesOutput(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx, DelaySettings{Time: 0.1, Feedback: 0.5, Mix: 0.5})
	newClick(ctx, 1, 1).Connect(d.Input())
	d.Output().Connect(ctx.Destination())
	out := render(ctx, 0.5)

	if out[0] != 0.5 {
		t.Fatalf("dry click = %v, want 0.5", out[0])
	}
	echo := int(0.1 * testRate)
	i, v := loudest(out, 0, 10, echo+100)
	if i < echo-1 || i > echo+1 || math.Abs(float64(v)-0.5) > 0.01 {
		t.Fatalf("first echo at frame %d = %v, want about 0.5 at %d", i, v, echo)
	}
	i, v = loudest(out, 0, echo+100, 2*echo+100)
	if i < 2*echo-1 || i > 2*echo+2 || math.Abs(float64(v)-0.25) > 0.01 {
		t.Fatalf("second echo at frame %d = %v, want about 0.25 at %d", i, v, 2*echo)
	}
}

func TestDelayCrossFeedPingPongs(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx, DelaySettings{Time: 0.05, Feedback: 0.8, CrossFeed: 1, Mix: 1})
	newClick(ctx, 1, 0).Connect(d.Input())
	d.Output().Connect(ctx.Destination())
	out := render(ctx, 0.2)

	echo := int(0.05 * testRate)
	if _, v := loudest(out, 0, 10, echo+50); v < 0.9 {
		t.Fatalf("first echo left = %v", v)
	}
	if _, v := loudest(out, 1, 10, echo+50); v != 0 {
		t.Fatalf("first echo leaked right: %v", v)
	}
	if _, v := loudest(out, 1, echo+50, 2*echo+50); math.Abs(float64(v)-0.8) > 0.01 {
		t.Fatalf("second echo right = %v, want 0.8", v)
	}
	if _, v := loudest(out, 0, echo+50, 2*echo+50); v != 0 {
		t.Fatalf("second echo should be right only, left = %v", v)
	}
}

func TestDelayTail(t *testing.T) {
	cases := []struct {
		time, feedback, want float64
	}{
		{0.5, 0, 0.5},
		{0, 0.5, 0},
		{0.5, 0.5, 0.5 * (1 + math.Log(0.001)/math.Log(0.5))},
		{1, 0.99, 1 + math.Log(0.001)/math.Log(maxFeedback)},
	}
	for _, tc := range cases {
		if got := DelayTail(tc.time, tc.feedback); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("DelayTail(%v, %v) = %v, want %v", tc.time, tc.feedback, got, tc.want)
		}
	}
}

func TestDistortionClips(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDistortion(ctx, 1)
	sine(ctx, 220, 1).Connect(d.Input())
	d.Output().Connect(ctx.Destination())
	out := render(ctx, 0.1)
	var peak float64
	for _, v := range out {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > 1 {
		t.Fatalf("distortion output should be bounded, peak %v", peak)
	}
	if peak < 0.01 {
		t.Fatalf("expected non-zero distortion output")
	}
}

func TestSaturationDryMixPassesThrough(t *testing.T) {
	ctx := graph.NewContext(testRate)
	s := NewSaturation(ctx, SaturationSettings{Kind: curves.Tube, Drive: 1, Mix: 0})
	var in []float32
	tap := graph.NewNode(ctx, "tap", graph.KernelFunc(func(l, r float32) (float32, float32) {
		in = append(in, l)
		return l, r
	}))
	sine(ctx, 330, 0.5).Connect(tap).Connect(s.Input())
	s.Output().Connect(ctx.Destination())
	out := render(ctx, 0.05)
	for i := range in {
		if out[2*i] != in[i] {
			t.Fatalf("frame %d = %v, want %v", i, out[2*i], in[i])
		}
	}
}

func TestSaturationTubeIsAsymmetric(t *testing.T) {
	ctx := graph.NewContext(testRate)
	s := NewSaturation(ctx, SaturationSettings{Kind: curves.Tube, Drive: 1, Mix: 1})
	sine(ctx, 100, 0.8).Connect(s.Input())
	s.Output().Connect(ctx.Destination())
	out := render(ctx, 0.1)
	var sum float64
	for i := 0; i < len(out); i += 2 {
		sum += float64(out[i])
	}
	if mean := sum / float64(len(out)/2); math.Abs(mean) < 0.01 {
		t.Fatalf("tube curve should add an offset, mean %v", mean)
	}
}

func TestParseSaturation(t *testing.T) {
	for name, want := range map[string]curves.Kind{"tape": curves.Tape, "TUBE": curves.Tube, " warm ": curves.Warm, "": curves.Tape} {
		if got, err := ParseSaturation(name); err != nil || got != want {
			t.Fatalf("ParseSaturation(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseSaturation("fuzz"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestChorusModulatesAndStops(t *testing.T) {
	ctx := graph.NewContext(testRate)
	c := NewChorus(ctx, ChorusSettings{Rate: 2, Depth: 1, Delay: 0.001, Mix: 0.5}, 0)
	if got := c.Settings().Delay; got < chorusMaxDepth {
		t.Fatalf("base delay %v lets the sweep go negative", got)
	}
	var in []float32
	tap := graph.NewNode(ctx, "tap", graph.KernelFunc(func(l, r float32) (float32, float32) {
		in = append(in, l)
		return l, r
	}))
	sine(ctx, 440, 0.5).Connect(tap).Connect(c.Input())
	c.Output().Connect(ctx.Destination())
	c.Stop(0.2)
	out := render(ctx, 0.3)

	var diff float64
	for i := range in {
		diff = math.Max(diff, math.Abs(float64(out[2*i]-in[i])))
	}
	if diff < 0.05 {
		t.Fatalf("chorus output matches the dry input")
	}
	if !c.lfo.Ended() {
		t.Fatalf("LFO still running after Stop")
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReverbProducesOutput(t *testing.T) {
	ctx := graph.NewContext(testRate)
	cache := impulse.NewCache(nil, testRate, quietLogger())
	r, err := NewReverb(context.Background(), ctx, cache, ReverbSettings{Decay: 0.5, Mix: 0.5})
	if err != nil {
		t.Fatalf("NewReverb: %v", err)
	}
	if !r.Impulse().Synthetic {
		t.Fatalf("expected a synthesized impulse")
	}
	if want := 0.5 + float64(graph.ConvolverBlock)/testRate; math.Abs(r.Tail()-want) > 1e-9 {
		t.Fatalf("Tail = %v, want %v", r.Tail(), want)
	}
	newClick(ctx, 1, 1).Connect(r.Input())
	r.Output().Connect(ctx.Destination())
	out := render(ctx, 0.5)
	if _, v := loudest(out, 0, int(0.05*testRate), int(0.3*testRate)); math.Abs(float64(v)) < 0.001 {
		t.Fatalf("expected reverb tail")
	}
}

func TestReverbTailIncludesPreDelayAndResponse(t *testing.T) {
	ctx := graph.NewContext(testRate)
	long := impulse.FetcherFunc(func(_ context.Context, id string, sr int) (*impulse.Response, error) {
		return &impulse.Response{ID: id, SampleRate: sr, Channels: impulse.Synthesize(sr, 3, 1)}, nil
	})
	cache := impulse.NewCache(long, testRate, quietLogger())
	defer cache.Close()
	r, err := NewReverb(context.Background(), ctx, cache, ReverbSettings{Impulse: "hall", Decay: 1, PreDelay: 0.25, Mix: 1})
	if err != nil {
		t.Fatalf("NewReverb: %v", err)
	}
	want := 0.25 + 3 + float64(graph.ConvolverBlock)/testRate
	if math.Abs(r.Tail()-want) > 1e-9 {
		t.Fatalf("Tail = %v, want %v", r.Tail(), want)
	}
}

func TestChainAppliesEffectsInOrder(t *testing.T) {
	ctx := graph.NewContext(testRate)
	d := NewDelay(ctx, DelaySettings{Time: 0.01, Feedback: 0.5, Mix: 0.5})
	dist := NewDistortion(ctx, 0.2)
	c := NewChain(ctx, dist, d)
	if c.Len() != 2 || c.Modules()[0] != dist {
		t.Fatalf("chain order = %v", c.Modules())
	}
	if c.Tail() != d.Tail() {
		t.Fatalf("chain tail = %v, want the delay's %v", c.Tail(), d.Tail())
	}
	sine(ctx, 220, 0.5).Connect(c.Input())
	c.Output().Connect(ctx.Destination())
	out := render(ctx, 0.05)
	if _, v := loudest(out, 0, 0, len(out)/2); v == 0 {
		t.Fatalf("chain should produce output")
	}
	c.Dispose()
	c.Dispose()
}

func TestEmptyChainPassesThrough(t *testing.T) {
	ctx := graph.NewContext(testRate)
	c := NewChain(ctx)
	src := graph.NewConstant(ctx, 0.25)
	src.Start(0)
	src.Connect(c.Input())
	c.Output().Connect(ctx.Destination())
	out := render(ctx, 0.01)
	if got := out[len(out)-2]; got != 0.25 {
		t.Fatalf("empty chain output = %v, want 0.25", got)
	}
}
