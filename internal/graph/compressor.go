package graph

import "math"

// CompressorNode is a feed-forward stereo-linked compressor with a
// quadratic soft knee. The detector listens to the input, or to Key when
// one is set, which gives external sidechaining without routing the key
// signal to the output.
type CompressorNode struct {
	*Node
	Threshold *Param // dB
	Knee      *Param // dB
	Ratio     *Param
	Attack    *Param // seconds
	Release   *Param // seconds
	Makeup    *Param // dB

	Key *Node

	// TruePeak makes the detector estimate inter-sample peaks.
	TruePeak bool
	// AutoRelease stretches the release while compression is sustained.
	AutoRelease bool

	sr        float64
	env       float64
	sustain   float64
	reduction float64
	isp       [2]PeakEstimator

	lastAtt, lastRel float64
	attCoef, relCoef float64
}

func NewCompressor(ctx *Context) *CompressorNode {
	c := &CompressorNode{
		Threshold: NewParam(ctx, -24, -100, 0),
		Knee:      NewParam(ctx, 30, 0, 40),
		Ratio:     NewParam(ctx, 12, 1, 1000),
		Attack:    NewParam(ctx, 0.003, 0, 1),
		Release:   NewParam(ctx, 0.25, 0, 5),
		Makeup:    NewParam(ctx, 0, -24, 48),
		sr:        ctx.SampleRate(),
		lastAtt:   -1,
		lastRel:   -1,
	}
	c.Node = NewNode(ctx, "compressor", c)
	return c
}

// GainReduction returns the current reduction in dB as a positive number.
func (c *CompressorNode) GainReduction() float64 { return c.reduction }

func timeCoef(seconds, sr float64) float64 {
	if seconds <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(seconds*sr))
}

// ComputeReduction is the static curve: dB of reduction for an input level
// in dB.
func ComputeReduction(levelDB, threshold, knee, ratio float64) float64 {
	if ratio <= 1 {
		return 0
	}
	over := levelDB - threshold
	slope := 1 - 1/ratio
	if knee > 0 && 2*over > -knee && 2*over < knee {
		x := over + knee/2
		return slope * x * x / (2 * knee)
	}
	if over <= 0 {
		return 0
	}
	return slope * over
}

func (c *CompressorNode) detect(l, r float32) float64 {
	dl, dr := float64(l), float64(r)
	if c.Key != nil {
		kl, kr := c.Key.Pull(c.ctx.Frame())
		dl, dr = float64(kl), float64(kr)
	}
	level := math.Max(math.Abs(dl), math.Abs(dr))
	if c.TruePeak {
		level = math.Max(level, c.isp[0].Next(dl))
		level = math.Max(level, c.isp[1].Next(dr))
	}
	return level
}

// PeakEstimator estimates the inter-sample peaks of one channel.
type PeakEstimator struct {
	hist [3]float64
}

// Next takes the next sample, evaluates a Catmull-Rom spline between the
// two samples before it at quarter steps and returns the largest
// magnitude found.
func (e *PeakEstimator) Next(x float64) float64 {
	h := &e.hist
	p0, p1, p2, p3 := h[0], h[1], h[2], x
	h[0], h[1], h[2] = p1, p2, p3
	peak := 0.0
	for _, t := range [...]float64{0.25, 0.5, 0.75} {
		t2 := t * t
		t3 := t2 * t
		v := 0.5 * ((2 * p1) + (-p0+p2)*t + (2*p0-5*p1+4*p2-p3)*t2 + (-p0+3*p1-3*p2+p3)*t3)
		peak = math.Max(peak, math.Abs(v))
	}
	return peak
}

func (c *CompressorNode) Process(l, r float32) (float32, float32) {
	level := c.detect(l, r)

	att, rel := c.Attack.Value(), c.Release.Value()
	if att != c.lastAtt {
		c.attCoef, c.lastAtt = timeCoef(att, c.sr), att
	}
	if rel != c.lastRel {
		c.relCoef, c.lastRel = timeCoef(rel, c.sr), rel
	}
	coef := c.attCoef
	if level < c.env {
		coef = c.relCoef
		if c.AutoRelease {
			coef = timeCoef(rel*(0.35+1.3*c.sustain), c.sr)
		}
	}
	c.env += coef * (level - c.env)

	levelDB := -120.0
	if c.env > 1e-6 {
		levelDB = 20 * math.Log10(c.env)
	}
	gr := ComputeReduction(levelDB, c.Threshold.Value(), c.Knee.Value(), c.Ratio.Value())
	c.reduction = gr
	if c.AutoRelease {
		step := 1 / (0.5 * c.sr)
		if gr > 1 {
			c.sustain = math.Min(1, c.sustain+step)
		} else {
			c.sustain = math.Max(0, c.sustain-step)
		}
	}
	g := float32(math.Pow(10, (c.Makeup.Value()-gr)/20))
	return l * g, r * g
}
