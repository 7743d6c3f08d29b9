package graph

import "math"

type eventKind int

const (
	evSet eventKind = iota
	evLinear
	evExp
	evTarget
)

type event struct {
	kind  eventKind
	time  float64
	value float64
	tau   float64
}

// Param is an automatable control value on the audio timeline. Events are
// evaluated against the context clock; an optional modulator node adds its
// left channel, scaled by depth, on top of the automation.
type Param struct {
	ctx      *Context
	value    float64
	baseTime float64
	min, max float64
	events   []event
	mod      *Node
	modDepth float64
}

func NewParam(ctx *Context, value, min, max float64) *Param {
	p := &Param{ctx: ctx, min: min, max: max}
	p.value = p.clamp(value)
	return p
}

func (p *Param) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.min
	}
	if v < p.min {
		return p.min
	}
	if v > p.max {
		return p.max
	}
	return v
}

// SetValue drops all automation and sets the value immediately.
func (p *Param) SetValue(v float64) {
	p.value = p.clamp(v)
	p.baseTime = 0
	p.events = p.events[:0]
}

func (p *Param) insert(e event) *Param {
	i := len(p.events)
	for i > 0 && p.events[i-1].time > e.time {
		i--
	}
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
	return p
}

func (p *Param) SetValueAtTime(v, t float64) *Param {
	return p.insert(event{kind: evSet, time: t, value: v})
}

func (p *Param) LinearRampToValueAtTime(v, t float64) *Param {
	return p.insert(event{kind: evLinear, time: t, value: v})
}

// ExponentialRampToValueAtTime ramps geometrically. Start and end values
// must share a sign and be non-zero, otherwise the previous value holds
// until t.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) *Param {
	return p.insert(event{kind: evExp, time: t, value: v})
}

// SetTargetAtTime approaches v from time t with time constant tau.
func (p *Param) SetTargetAtTime(v, t, tau float64) *Param {
	if tau <= 0 {
		return p.SetValueAtTime(v, t)
	}
	return p.insert(event{kind: evTarget, time: t, value: v, tau: tau})
}

// CancelScheduledValues removes every event at or after t.
func (p *Param) CancelScheduledValues(t float64) *Param {
	i := len(p.events)
	for i > 0 && p.events[i-1].time >= t {
		i--
	}
	p.events = p.events[:i]
	return p
}

// CancelAndHoldAtTime freezes the automation at its value at t. A ramp in
// flight at t is cut short so that it ends at t on that value.
func (p *Param) CancelAndHoldAtTime(t float64) *Param {
	v := p.ValueAt(t)
	kind := evSet
	i := len(p.events)
	for i > 0 && p.events[i-1].time >= t {
		i--
	}
	if i < len(p.events) && (p.events[i].kind == evLinear || p.events[i].kind == evExp) {
		kind = p.events[i].kind
	}
	p.events = p.events[:i]
	return p.insert(event{kind: kind, time: t, value: v})
}

// Modulate sums src's left channel, scaled by depth, onto the value.
func (p *Param) Modulate(src *Node, depth float64) {
	p.mod = src
	p.modDepth = depth
}

func (p *Param) NumEvents() int { return len(p.events) }

// ValueAt evaluates the automation timeline at t, without modulation.
func (p *Param) ValueAt(t float64) float64 {
	val := p.value
	last := p.baseTime
	var target *event
	for i := range p.events {
		e := &p.events[i]
		if e.time > t {
			if e.kind == evLinear || e.kind == evExp {
				if target != nil {
					val = targetValue(target, val, last)
					target = nil
				}
				return p.clamp(ramp(e.kind, last, val, e.time, e.value, t))
			}
			break
		}
		if target != nil {
			val = targetValue(target, val, e.time)
			target = nil
		}
		if e.kind == evTarget {
			target = e
		} else {
			val = e.value
		}
		last = e.time
	}
	if target != nil {
		val = targetValue(target, val, t)
	}
	return p.clamp(val)
}

func targetValue(e *event, from, t float64) float64 {
	if t <= e.time {
		return from
	}
	return e.value + (from-e.value)*math.Exp(-(t-e.time)/e.tau)
}

func ramp(kind eventKind, t0, v0, t1, v1, t float64) float64 {
	if t1 <= t0 {
		return v0
	}
	frac := (t - t0) / (t1 - t0)
	if frac < 0 {
		frac = 0
	}
	if kind == evLinear {
		return v0 + (v1-v0)*frac
	}
	if v0 == 0 || v1 == 0 || (v0 < 0) != (v1 < 0) {
		return v0
	}
	return v0 * math.Pow(v1/v0, frac)
}

// Value evaluates the parameter at the current frame, including modulation.
// Completed events are folded into the base value as the clock passes them.
func (p *Param) Value() float64 {
	now := p.ctx.Time()
	p.prune(now)
	v := p.ValueAt(now)
	if p.mod != nil {
		ml, _ := p.mod.Pull(p.ctx.Frame())
		v = p.clamp(v + float64(ml)*p.modDepth)
	}
	return v
}

func (p *Param) prune(now float64) {
	if len(p.events) == 0 || p.events[0].time > now {
		return
	}
	k := 0
	for k+1 < len(p.events) && p.events[k+1].time <= now {
		k++
	}
	if p.events[k].kind == evTarget {
		return
	}
	p.value = p.clamp(p.events[k].value)
	p.baseTime = p.events[k].time
	n := copy(p.events, p.events[k+1:])
	p.events = p.events[:n]
}
