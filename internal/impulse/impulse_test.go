package impulse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestWAV(t *testing.T, dir, name string, sr int, frames []int) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sr, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sr},
		Data:           frames,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
}

func TestDirFetcherDecodesWAV(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, dir, "hall.wav", 48000, []int{16384, -16384, 0, 8192, 0, 0})

	r, err := NewDirFetcher(dir).Fetch(context.Background(), "hall", 48000)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(r.Channels) != 2 || len(r.Channels[0]) != 3 {
		t.Fatalf("shape = %dx%d, want 2x3", len(r.Channels), len(r.Channels[0]))
	}
	if math.Abs(float64(r.Channels[0][0])-0.5) > 1e-4 || math.Abs(float64(r.Channels[1][0])+0.5) > 1e-4 {
		t.Fatalf("first frame = %v/%v", r.Channels[0][0], r.Channels[1][0])
	}
	if math.Abs(float64(r.Channels[1][1])-0.25) > 1e-4 {
		t.Fatalf("second right sample = %v", r.Channels[1][1])
	}
}

func TestDirFetcherResamples(t *testing.T) {
	dir := t.TempDir()
	frames := make([]int, 2*240)
	writeTestWAV(t, dir, "room.wav", 24000, frames)
	r, err := NewDirFetcher(dir).Fetch(context.Background(), "room", 48000)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := len(r.Channels[0]); got != 480 {
		t.Fatalf("resampled length = %d, want 480", got)
	}
}

func TestResampleRejectsAliases(t *testing.T) {
	tone := func(hz float64) []float32 {
		buf := make([]float32, 9600)
		for i := range buf {
			buf[i] = float32(0.5 * math.Sin(2*math.Pi*hz*float64(i)/96000))
		}
		return buf
	}
	level := func(buf []float32) float64 {
		mid := buf[len(buf)/4 : 3*len(buf)/4]
		var sum float64
		for _, v := range mid {
			sum += float64(v) * float64(v)
		}
		return math.Sqrt(sum / float64(len(mid)))
	}

	cases := []struct {
		name     string
		hz       float64
		min, max float64
	}{
		{"passband", 1000, 0.33, 0.37},
		{"above new nyquist", 40000, 0, 0.005},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := resampleTo(tone(tc.hz), 96000, 48000)
			if err != nil {
				t.Fatalf("resample: %v", err)
			}
			if len(out) != 4800 {
				t.Fatalf("length = %d, want 4800", len(out))
			}
			if got := level(out); got < tc.min || got > tc.max {
				t.Fatalf("rms = %v, want within [%v, %v]", got, tc.min, tc.max)
			}
		})
	}
}

func TestResampleKeepsOnset(t *testing.T) {
	in := make([]float32, 480)
	in[0] = 1
	out, err := resampleTo(in, 24000, 48000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	peak := 0
	for i, v := range out {
		if math.Abs(float64(v)) > math.Abs(float64(out[peak])) {
			peak = i
		}
	}
	if peak > 1 {
		t.Fatalf("impulse moved to sample %d", peak)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, id string, sr int) (*Response, error) {
		calls.Add(1)
		<-release
		return &Response{SampleRate: sr, Channels: [][]float32{{1, 0.5}}}, nil
	})
	c := NewCache(fetcher, 48000, quietLogger())

	var wg sync.WaitGroup
	got := make([]*Response, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = c.Get(context.Background(), "plate", 2)
		}(i)
	}
	close(release)
	wg.Wait()

	for i, r := range got {
		if r != got[0] {
			t.Fatalf("request %d got a different response", i)
		}
	}
	if got[0].Synthetic || got[0].ID != "plate" {
		t.Fatalf("unexpected response %+v", got[0])
	}
	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("fetch calls = %d", n)
	}
	c.Get(context.Background(), "plate", 2)
	before := calls.Load()
	c.Get(context.Background(), "plate", 2)
	if calls.Load() != before {
		t.Fatalf("cached entry was refetched")
	}
}

func TestCacheFallsBackToSynthesized(t *testing.T) {
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, id string, sr int) (*Response, error) {
		calls.Add(1)
		return nil, errors.New("not found")
	})
	c := NewCache(fetcher, 8000, quietLogger())
	r := c.Get(context.Background(), "missing", 1.5)
	if !r.Synthetic {
		t.Fatalf("expected synthesized response")
	}
	if math.Abs(r.Duration()-1.5) > 1e-3 {
		t.Fatalf("duration = %v, want 1.5", r.Duration())
	}
	c.Get(context.Background(), "missing", 1.5)
	if calls.Load() != 1 {
		t.Fatalf("failed id fetched %d times, want 1", calls.Load())
	}
	if _, err := c.Lookup(context.Background(), "missing"); !errors.Is(err, ErrFetch) {
		t.Fatalf("Lookup err = %v, want ErrFetch", err)
	}
}

func TestSynthesizeDecays(t *testing.T) {
	ir := Synthesize(8000, 1, 7)
	n := len(ir[0])
	if n != 8000 {
		t.Fatalf("length = %d", n)
	}
	peak := func(from, to int) float64 {
		p := 0.0
		for i := from; i < to; i++ {
			p = math.Max(p, math.Abs(float64(ir[0][i])))
		}
		return p
	}
	head, tail := peak(0, 400), peak(n-400, n)
	if tail > 0.002 || head < 0.5 {
		t.Fatalf("head=%v tail=%v, want about -60 dB decay", head, tail)
	}
	again := Synthesize(8000, 1, 7)
	for i := range ir[1] {
		if ir[1][i] != again[1][i] {
			t.Fatalf("synthesis not deterministic at %d", i)
		}
	}
}

func TestSynthesizeChannelsDiffer(t *testing.T) {
	ir := Synthesize(8000, 0.5, 3)
	same := 0
	for i := range ir[0] {
		if ir[0][i] == ir[1][i] {
			same++
		}
	}
	if same > len(ir[0])/100 {
		t.Fatalf("%d of %d samples identical across channels", same, len(ir[0]))
	}
}

func TestCloseDropsEntries(t *testing.T) {
	c := NewCache(nil, 8000, quietLogger())
	c.Get(context.Background(), "", 0.5)
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	c.Close()
	if c.Len() != 0 {
		t.Fatalf("len after close = %d", c.Len())
	}
	if r := c.Get(context.Background(), "", 0.5); r == nil || c.Len() != 0 {
		t.Fatalf("get after close should work uncached")
	}
}
