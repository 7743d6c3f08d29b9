// Package impulse loads and caches reverb impulse responses. A failed
// fetch degrades to a synthesized decaying-noise response so a voice
// always gets a usable reverb.
package impulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/signal"
	"golang.org/x/sync/singleflight"
)

var ErrFetch = errors.New("impulse: fetch failed")

// Response is a decoded impulse response at the engine sample rate.
type Response struct {
	ID         string
	SampleRate int
	Channels   [][]float32
	Synthetic  bool
}

// Duration returns the response length in seconds.
func (r *Response) Duration() float64 {
	if r == nil || len(r.Channels) == 0 || r.SampleRate <= 0 {
		return 0
	}
	return float64(len(r.Channels[0])) / float64(r.SampleRate)
}

// Fetcher retrieves an impulse response by id, resampled to sampleRate.
type Fetcher interface {
	Fetch(ctx context.Context, id string, sampleRate int) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string, sampleRate int) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, id string, sampleRate int) (*Response, error) {
	return f(ctx, id, sampleRate)
}

// Cache shares impulse responses across voices. Concurrent requests for one
// key perform a single fetch; entries are published only when complete.
type Cache struct {
	fetcher    Fetcher
	sampleRate int
	logger     *slog.Logger

	mu        sync.RWMutex
	fetched   map[string]*Response
	failed    map[string]error
	synthetic map[int64]*Response
	closed    bool
	group     singleflight.Group
}

func NewCache(fetcher Fetcher, sampleRate int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetcher:    fetcher,
		sampleRate: sampleRate,
		logger:     logger,
		fetched:    make(map[string]*Response),
		failed:     make(map[string]error),
		synthetic:  make(map[int64]*Response),
	}
}

// Get returns the response for id. When id is empty, no fetcher is set or
// the fetch fails, a synthesized response of decay seconds is returned.
func (c *Cache) Get(ctx context.Context, id string, decay float64) *Response {
	if id != "" && c.fetcher != nil {
		if r, err := c.fetch(ctx, id); err == nil {
			return r
		}
	}
	return c.synth(decay)
}

// Lookup returns the fetched response for id without falling back.
func (c *Cache) Lookup(ctx context.Context, id string) (*Response, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: %s: no fetcher", ErrFetch, id)
	}
	return c.fetch(ctx, id)
}

func (c *Cache) fetch(ctx context.Context, id string) (*Response, error) {
	c.mu.RLock()
	r, ok := c.fetched[id]
	ferr := c.failed[id]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}
	if ferr != nil {
		return nil, ferr
	}
	v, err, _ := c.group.Do("f:"+id, func() (any, error) {
		r, err := c.fetcher.Fetch(ctx, id, c.sampleRate)
		if err == nil && (r == nil || len(r.Channels) == 0 || len(r.Channels[0]) == 0) {
			err = errors.New("empty response")
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrFetch, id, err)
			if ctx.Err() == nil && !c.closed {
				c.failed[id] = err
			}
			c.logger.Warn("impulse fetch failed, using synthesized response", "impulse", id, "err", err)
			return nil, err
		}
		r.ID = id
		if !c.closed {
			c.fetched[id] = r
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

func (c *Cache) synth(decay float64) *Response {
	decay = clampDecay(decay)
	key := int64(math.Round(decay * 1000))
	c.mu.RLock()
	r, ok := c.synthetic[key]
	c.mu.RUnlock()
	if ok {
		return r
	}
	v, _, _ := c.group.Do(fmt.Sprintf("s:%d", key), func() (any, error) {
		c.mu.RLock()
		r, ok := c.synthetic[key]
		c.mu.RUnlock()
		if ok {
			return r, nil
		}
		r = &Response{
			ID:         fmt.Sprintf("synthetic-%dms", key),
			SampleRate: c.sampleRate,
			Channels:   Synthesize(c.sampleRate, decay, key),
			Synthetic:  true,
		}
		c.mu.Lock()
		if !c.closed {
			c.synthetic[key] = r
		}
		c.mu.Unlock()
		return r, nil
	})
	return v.(*Response)
}

// Len returns the number of cached responses, fetched and synthetic.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fetched) + len(c.synthetic)
}

// Close drops every cached response. Later calls still work but are not
// cached.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.fetched = make(map[string]*Response)
	c.failed = make(map[string]error)
	c.synthetic = make(map[int64]*Response)
}

func clampDecay(d float64) float64 {
	if math.IsNaN(d) || d < 0.1 {
		return 0.1
	}
	if d > 10 {
		return 10
	}
	return d
}

// Synthesize builds a stereo decaying-noise response that falls 60 dB over
// decay seconds. The same seed yields the same response. The channels use
// adjacent seeds so the tail is decorrelated.
func Synthesize(sampleRate int, decay float64, seed int64) [][]float32 {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	decay = clampDecay(decay)
	n := int(decay * float64(sampleRate))
	rate := math.Log(1000) / decay
	gen := signal.NewGeneratorWithOptions(nil, signal.WithSeed(seed))
	out := make([][]float32, 2)
	for ch := range out {
		gen.SetSeed(seed + int64(ch))
		// n > 0 and amplitude 1 cannot fail.
		white, _ := gen.WhiteNoise(1, n)
		out[ch] = make([]float32, n)
		for i, v := range white {
			out[ch][i] = float32(v * math.Exp(-rate*float64(i)/float64(sampleRate)))
		}
	}
	return out
}
