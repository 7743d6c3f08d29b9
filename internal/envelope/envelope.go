// Package envelope schedules ADSR shapes onto automatable parameters.
package envelope

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

// ADSR times are in seconds; Sustain is a level in [0, 1].
type ADSR struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// Points are the segment boundaries of one note.
type Points struct {
	Start        float64
	AttackEnd    float64
	DecayEnd     float64
	ReleaseStart float64
	End          float64
}

func nonNeg(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func (a ADSR) sustain() float64 {
	return math.Max(0, math.Min(1, nonNeg(a.Sustain)))
}

// Fit returns the segment times for a note from start to end. When the
// segments do not fit the note they are shrunk proportionally, so the
// release still ends exactly at end.
func (a ADSR) Fit(start, end float64) Points {
	atk, dec, rel := nonNeg(a.Attack), nonNeg(a.Decay), nonNeg(a.Release)
	dur := math.Max(0, end-start)
	if total := atk + dec + rel; total > dur && total > 0 {
		scale := dur / total
		atk *= scale
		dec *= scale
		rel *= scale
	}
	p := Points{Start: start, End: start + dur}
	p.AttackEnd = start + atk
	p.DecayEnd = p.AttackEnd + dec
	p.ReleaseStart = math.Max(p.DecayEnd, p.End-rel)
	return p
}

// Level evaluates the normalised envelope shape at t.
func (a ADSR) Level(t float64, p Points) float64 {
	s := a.sustain()
	switch {
	case t < p.Start:
		return 0
	case t < p.AttackEnd:
		return (t - p.Start) / (p.AttackEnd - p.Start)
	case t < p.DecayEnd:
		return 1 + (s-1)*(t-p.AttackEnd)/(p.DecayEnd-p.AttackEnd)
	case t < p.ReleaseStart:
		return s
	case t < p.End:
		return s * (p.End - t) / (p.End - p.ReleaseStart)
	}
	return 0
}

// Schedule writes the envelope onto param as linear segments between
// floor and peak, ending back at floor exactly at end.
func (a ADSR) Schedule(param *graph.Param, start, end, floor, peak float64) Points {
	p := a.Fit(start, end)
	s := a.sustain()
	level := func(x float64) float64 { return floor + (peak-floor)*x }

	param.SetValueAtTime(floor, p.Start)
	if p.AttackEnd > p.Start {
		param.LinearRampToValueAtTime(level(1), p.AttackEnd)
	} else {
		param.SetValueAtTime(level(1), p.Start)
	}
	if p.DecayEnd > p.AttackEnd {
		param.LinearRampToValueAtTime(level(s), p.DecayEnd)
	} else {
		param.SetValueAtTime(level(s), p.AttackEnd)
	}
	if p.ReleaseStart > p.DecayEnd {
		param.LinearRampToValueAtTime(level(s), p.ReleaseStart)
	}
	if p.End > p.ReleaseStart {
		param.LinearRampToValueAtTime(floor, p.End)
	} else {
		param.SetValueAtTime(floor, p.End)
	}
	return p
}
