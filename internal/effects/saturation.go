package effects

import (
	"fmt"
	"strings"

	"github.com/cbegin/synthgraph-go/internal/curves"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

// ParseSaturation maps a preset saturation type to its curve family.
func ParseSaturation(name string) (curves.Kind, error) {
	switch k := curves.Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case curves.Tape, curves.Tube, curves.Warm:
		return k, nil
	case "":
		return curves.Tape, nil
	}
	return curves.Tape, fmt.Errorf("unknown saturation type %q", name)
}

type SaturationSettings struct {
	Kind  curves.Kind
	Drive float64
	Mix   float64
}

// Saturation blends a driven tape, tube or warm curve with the dry signal.
type Saturation struct {
	group  graph.Group
	mix    *wetDry
	drive  *graph.GainNode
	shaper *graph.WaveShaperNode
	s      SaturationSettings
}

func NewSaturation(ctx *graph.Context, s SaturationSettings) *Saturation {
	sat := &Saturation{
		drive:  graph.NewGain(ctx, 1),
		shaper: graph.NewWaveShaper(ctx, nil),
	}
	sat.mix = newWetDry(ctx, &sat.group, s.Mix)
	sat.group.Add(sat.drive.Node, sat.shaper.Node)
	sat.mix.in.Connect(sat.drive.Node).Connect(sat.shaper.Node).Connect(sat.mix.wet.Node)
	sat.Configure(s)
	return sat
}

func (s *Saturation) Input() *graph.Node           { return s.mix.in }
func (s *Saturation) Output() *graph.Node          { return s.mix.out }
func (s *Saturation) Dispose()                     { s.group.Dispose() }
func (s *Saturation) Settings() SaturationSettings { return s.s }

func (s *Saturation) Configure(set SaturationSettings) {
	if set.Kind == "" {
		set.Kind = curves.Tape
	}
	set.Drive = clamp(set.Drive, 0, 1)
	set.Mix = clamp(set.Mix, 0, 1)
	s.s = set
	s.drive.Gain.SetValue(1 + 2*set.Drive)
	s.shaper.SetCurve(curves.Get(set.Kind, set.Drive))
	s.mix.setMix(set.Mix)
}
