// Package graph is the render backend: a sample-accurate pull graph that
// executes nodes against a monotonic audio clock.
package graph

import (
	"math"
	"sync"
	"sync/atomic"
)

// Context owns the audio clock and the destination node. Rendering and
// control commands are serialised on one mutex, so a command issued while
// a block is rendering takes effect on the next block.
type Context struct {
	mu         sync.Mutex
	sampleRate float64
	frame      atomic.Int64
	dest       *Node
}

func NewContext(sampleRate int) *Context {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	c := &Context{sampleRate: float64(sampleRate)}
	c.dest = NewNode(c, "destination", nil)
	return c
}

func (c *Context) SampleRate() float64 { return c.sampleRate }

// Frame returns the index of the next frame to render.
func (c *Context) Frame() int64 { return c.frame.Load() }

// Time returns the audio clock in seconds.
func (c *Context) Time() float64 {
	return float64(c.frame.Load()) / c.sampleRate
}

// FrameAt converts an audio time to the nearest frame index.
func (c *Context) FrameAt(t float64) int64 {
	return int64(math.Round(t * c.sampleRate))
}

func (c *Context) Destination() *Node { return c.dest }

// Command runs fn with the render lock held. Graph mutations from a
// control goroutine must go through Command while the context renders.
func (c *Context) Command(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// Process renders interleaved stereo frames into dst and advances the clock.
func (c *Context) Process(dst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.render(dst)
}

func (c *Context) render(dst []float32) {
	frame := c.frame.Load()
	for i := 0; i+1 < len(dst); i += 2 {
		l, r := c.dest.Pull(frame)
		dst[i] = sanitize(l)
		dst[i+1] = sanitize(r)
		frame++
		c.frame.Store(frame)
	}
}

func sanitize(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return v
}

// OfflineContext renders a fixed number of frames as fast as possible.
type OfflineContext struct {
	*Context
	frames int
}

func NewOfflineContext(sampleRate int, seconds float64) *OfflineContext {
	ctx := NewContext(sampleRate)
	frames := int(math.Ceil(seconds * ctx.sampleRate))
	if frames < 0 {
		frames = 0
	}
	return &OfflineContext{Context: ctx, frames: frames}
}

// Length returns the number of frames StartRendering produces.
func (o *OfflineContext) Length() int { return o.frames }

// StartRendering renders the whole timeline and returns interleaved stereo.
// Between blocks of blockFrames, onBlock (if non-nil) is called with the
// render lock released, so callers can schedule or dispose voices.
func (o *OfflineContext) StartRendering(blockFrames int, onBlock func(now float64)) []float32 {
	if blockFrames <= 0 {
		blockFrames = 128
	}
	out := make([]float32, o.frames*2)
	for off := 0; off < o.frames; off += blockFrames {
		end := off + blockFrames
		if end > o.frames {
			end = o.frames
		}
		o.Process(out[off*2 : end*2])
		if onBlock != nil {
			onBlock(o.Time())
		}
	}
	return out
}
