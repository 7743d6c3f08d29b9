package graph

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// ConvolverBlock is the partition size of the convolver. Output lags the
// input by one block.
const ConvolverBlock = 256

// ConvolverNode convolves a stereo signal with an impulse response using
// uniformly partitioned overlap-save.
type ConvolverNode struct {
	*Node

	plan  *algofft.Plan[complex128]
	scale float64
	parts [2][][]complex128
	fdl   [2][][]complex128
	head  int

	in   [2][]float64
	out  [2][]float64
	acc  []complex128
	time []complex128
	pos  int
}

// NewConvolver builds a convolver for ir. A single channel IR is applied
// to both sides. With normalize set, the IR is scaled to unit energy the
// way a reverb send expects.
func NewConvolver(ctx *Context, ir [][]float32, normalize bool) (*ConvolverNode, error) {
	if len(ir) == 0 || len(ir[0]) == 0 {
		return nil, fmt.Errorf("convolver: empty impulse response")
	}
	n := 2 * ConvolverBlock
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("convolver: fft plan: %w", err)
	}
	c := &ConvolverNode{
		plan: plan,
		acc:  make([]complex128, n),
		time: make([]complex128, n),
	}
	scale, err := c.inverseScale()
	if err != nil {
		return nil, err
	}
	c.scale = scale

	gain := 1.0
	if normalize {
		gain = irNormalization(ir)
	}
	for ch := 0; ch < 2; ch++ {
		src := ir[0]
		if ch < len(ir) && len(ir[ch]) > 0 {
			src = ir[ch]
		}
		parts, err := c.partition(src, gain)
		if err != nil {
			return nil, err
		}
		c.parts[ch] = parts
		c.fdl[ch] = make([][]complex128, len(parts))
		for i := range c.fdl[ch] {
			c.fdl[ch][i] = make([]complex128, n)
		}
		c.in[ch] = make([]float64, n)
		c.out[ch] = make([]float64, ConvolverBlock)
	}
	c.Node = NewNode(ctx, "convolver", c)
	return c, nil
}

// inverseScale measures the round-trip gain of the plan so the result does
// not depend on where the FFT library puts its 1/N.
func (c *ConvolverNode) inverseScale() (float64, error) {
	src := make([]complex128, len(c.acc))
	src[0] = 1
	spec := make([]complex128, len(c.acc))
	if err := c.plan.Forward(spec, src); err != nil {
		return 0, fmt.Errorf("convolver: forward: %w", err)
	}
	if err := c.plan.Inverse(src, spec); err != nil {
		return 0, fmt.Errorf("convolver: inverse: %w", err)
	}
	if real(src[0]) == 0 {
		return 0, fmt.Errorf("convolver: degenerate fft round trip")
	}
	return 1 / real(src[0]), nil
}

func (c *ConvolverNode) partition(ir []float32, gain float64) ([][]complex128, error) {
	n := 2 * ConvolverBlock
	count := (len(ir) + ConvolverBlock - 1) / ConvolverBlock
	parts := make([][]complex128, count)
	buf := make([]complex128, n)
	for p := 0; p < count; p++ {
		for i := range buf {
			buf[i] = 0
		}
		for i := 0; i < ConvolverBlock; i++ {
			k := p*ConvolverBlock + i
			if k >= len(ir) {
				break
			}
			buf[i] = complex(float64(ir[k])*gain, 0)
		}
		spec := make([]complex128, n)
		if err := c.plan.Forward(spec, buf); err != nil {
			return nil, fmt.Errorf("convolver: partition %d: %w", p, err)
		}
		parts[p] = spec
	}
	return parts, nil
}

func irNormalization(ir [][]float32) float64 {
	var power float64
	var samples int
	for _, ch := range ir {
		for _, v := range ch {
			power += float64(v) * float64(v)
		}
		samples += len(ch)
	}
	if power < 1e-12 || samples == 0 {
		return 1
	}
	return 1 / math.Sqrt(power/float64(len(ir)))
}

// Partitions returns the number of IR partitions per channel.
func (c *ConvolverNode) Partitions() int { return len(c.parts[0]) }

func (c *ConvolverNode) Process(l, r float32) (float32, float32) {
	c.in[0][ConvolverBlock+c.pos] = float64(l)
	c.in[1][ConvolverBlock+c.pos] = float64(r)
	ol := float32(c.out[0][c.pos])
	or := float32(c.out[1][c.pos])
	c.pos++
	if c.pos == ConvolverBlock {
		c.flush()
		c.pos = 0
	}
	return ol, or
}

func (c *ConvolverNode) flush() {
	count := len(c.parts[0])
	for ch := 0; ch < 2; ch++ {
		for i, v := range c.in[ch] {
			c.time[i] = complex(v, 0)
		}
		slot := c.fdl[ch][c.head]
		if err := c.plan.Forward(slot, c.time); err != nil {
			clear(c.out[ch])
			continue
		}
		clear(c.acc)
		for k := 0; k < count; k++ {
			x := c.fdl[ch][(c.head-k+count)%count]
			h := c.parts[ch][k]
			for i := range c.acc {
				c.acc[i] += x[i] * h[i]
			}
		}
		if err := c.plan.Inverse(c.time, c.acc); err != nil {
			clear(c.out[ch])
			continue
		}
		for i := 0; i < ConvolverBlock; i++ {
			c.out[ch][i] = real(c.time[ConvolverBlock+i]) * c.scale
		}
		copy(c.in[ch][:ConvolverBlock], c.in[ch][ConvolverBlock:])
	}
	c.head = (c.head + 1) % count
}
