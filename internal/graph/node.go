package graph

import "math"

// Kernel processes one stereo frame. It is the per-sample contract shared
// by every processing node, in the same shape as a classic effect unit.
type Kernel interface {
	Process(l, r float32) (float32, float32)
}

// Generator produces one stereo frame without input.
type Generator interface {
	Generate() (float32, float32)
}

// KernelFunc adapts a function to Kernel.
type KernelFunc func(l, r float32) (float32, float32)

func (f KernelFunc) Process(l, r float32) (float32, float32) { return f(l, r) }

// Node is a graph vertex with one summing input bus and one stereo output.
// Output is memoised per frame, so fan-out costs one evaluation. A node
// pulled while already on the evaluation stack returns its previous frame,
// which gives every feedback cycle a one-sample delay.
type Node struct {
	ctx     *Context
	name    string
	kernel  Kernel
	gen     Generator
	inputs  []*Node
	outputs []*Node
	start   int64
	stop    int64
	frame   int64
	l, r    float32
	busy    bool
}

// NewNode creates a processing node. A nil kernel makes a plain summing
// junction.
func NewNode(ctx *Context, name string, kernel Kernel) *Node {
	return &Node{
		ctx:    ctx,
		name:   name,
		kernel: kernel,
		start:  math.MinInt64,
		stop:   math.MaxInt64,
		frame:  -1,
	}
}

// NewSource creates a scheduled source node. It is silent until Start.
func NewSource(ctx *Context, name string, gen Generator) *Node {
	return &Node{
		ctx:   ctx,
		name:  name,
		gen:   gen,
		start: math.MaxInt64,
		stop:  math.MaxInt64,
		frame: -1,
	}
}

func (n *Node) Name() string      { return n.name }
func (n *Node) Context() *Context { return n.ctx }
func (n *Node) NumInputs() int    { return len(n.inputs) }
func (n *Node) NumOutputs() int   { return len(n.outputs) }
func (n *Node) IsSource() bool    { return n.gen != nil }
func (n *Node) StartFrame() int64 { return n.start }
func (n *Node) StopFrame() int64  { return n.stop }

// Connect routes this node's output into dst and returns dst.
func (n *Node) Connect(dst *Node) *Node {
	for _, o := range n.outputs {
		if o == dst {
			return dst
		}
	}
	n.outputs = append(n.outputs, dst)
	dst.inputs = append(dst.inputs, n)
	return dst
}

// Disconnect removes this node from every destination it feeds.
func (n *Node) Disconnect() {
	for _, o := range n.outputs {
		o.inputs = removeNode(o.inputs, n)
	}
	n.outputs = nil
}

// DisconnectFrom removes the single edge n -> dst.
func (n *Node) DisconnectFrom(dst *Node) {
	n.outputs = removeNode(n.outputs, dst)
	dst.inputs = removeNode(dst.inputs, n)
}

func (n *Node) detachInputs() {
	for _, in := range n.inputs {
		in.outputs = removeNode(in.outputs, n)
	}
	n.inputs = nil
}

// Start schedules a source to begin at audio time t.
func (n *Node) Start(t float64) {
	n.start = n.ctx.FrameAt(t)
}

// Stop schedules a source to end at audio time t.
func (n *Node) Stop(t float64) {
	n.stop = n.ctx.FrameAt(t)
}

// Ended reports whether the clock has passed the scheduled stop.
func (n *Node) Ended() bool {
	return n.ctx.Frame() >= n.stop
}

// Pull returns the node's output for frame.
func (n *Node) Pull(frame int64) (float32, float32) {
	if n.frame == frame || n.busy {
		return n.l, n.r
	}
	n.busy = true
	var l, r float32
	if n.gen != nil {
		if frame >= n.start && frame < n.stop {
			l, r = n.gen.Generate()
		}
	} else {
		for _, in := range n.inputs {
			il, ir := in.Pull(frame)
			l += il
			r += ir
		}
		if n.kernel != nil {
			l, r = n.kernel.Process(l, r)
		}
	}
	n.busy = false
	n.frame, n.l, n.r = frame, l, r
	return l, r
}

func removeNode(list []*Node, target *Node) []*Node {
	out := list[:0]
	for _, n := range list {
		if n != target {
			out = append(out, n)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = nil
	}
	return out
}

// Module is the uniform effect-module contract: one input port, one
// output port, and disposal of every internal node.
type Module interface {
	Input() *Node
	Output() *Node
	Dispose()
}

// Group tracks nodes owned by one module or voice so they can be torn down
// together. Dispose is idempotent.
type Group struct {
	nodes    []*Node
	disposed bool
}

// Add takes ownership of nodes.
func (g *Group) Add(nodes ...*Node) {
	g.nodes = append(g.nodes, nodes...)
}

// New creates a processing node owned by the group.
func (g *Group) New(ctx *Context, name string, kernel Kernel) *Node {
	n := NewNode(ctx, name, kernel)
	g.nodes = append(g.nodes, n)
	return n
}

func (g *Group) Len() int       { return len(g.nodes) }
func (g *Group) Disposed() bool { return g.disposed }
func (g *Group) Nodes() []*Node { return g.nodes }

// Dispose disconnects every owned node, inbound and outbound.
func (g *Group) Dispose() {
	if g.disposed {
		return
	}
	g.disposed = true
	for _, n := range g.nodes {
		n.Disconnect()
		n.detachInputs()
	}
}
