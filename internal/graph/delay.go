package graph

import "math"

// DelayNode is a stereo fractional delay line with linear interpolation.
type DelayNode struct {
	*Node
	DelayTime *Param

	buf [2][]float32
	pos int
	sr  float64
}

func NewDelay(ctx *Context, maxDelay, delay float64) *DelayNode {
	sr := ctx.SampleRate()
	if maxDelay <= 0 {
		maxDelay = 1
	}
	size := int(math.Ceil(maxDelay*sr)) + 2
	d := &DelayNode{
		DelayTime: NewParam(ctx, delay, 0, maxDelay),
		buf:       [2][]float32{make([]float32, size), make([]float32, size)},
		sr:        sr,
	}
	d.Node = NewNode(ctx, "delay", d)
	return d
}

func (d *DelayNode) Process(l, r float32) (float32, float32) {
	size := len(d.buf[0])
	d.buf[0][d.pos] = l
	d.buf[1][d.pos] = r

	delay := d.DelayTime.Value() * d.sr
	if delay > float64(size-2) {
		delay = float64(size - 2)
	}
	read := float64(d.pos) - delay
	if read < 0 {
		read += float64(size)
	}
	i := int(read)
	frac := float32(read - float64(i))
	i %= size
	j := (i + 1) % size
	ol := d.buf[0][i]*(1-frac) + d.buf[0][j]*frac
	or := d.buf[1][i]*(1-frac) + d.buf[1][j]*frac

	d.pos++
	if d.pos == size {
		d.pos = 0
	}
	return ol, or
}
