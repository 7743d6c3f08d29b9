package voice

import (
	"math"

	"github.com/cbegin/synthgraph-go/internal/effects"
	"github.com/cbegin/synthgraph-go/internal/filters"
	"github.com/cbegin/synthgraph-go/internal/graph"
)

// Handle is one sounding note. It owns every node built for the note.
type Handle struct {
	id     uint64
	preset string
	start  float64
	end    float64

	group  graph.Group
	chain  *effects.Chain
	filter filters.FilterModule
	stages []string

	disposeAt float64
	scheduled bool
	disposed  bool
	onDispose func(*Handle)
}

func (h *Handle) ID() uint64       { return h.id }
func (h *Handle) Preset() string   { return h.preset }
func (h *Handle) Start() float64   { return h.start }
func (h *Handle) End() float64     { return h.end }
func (h *Handle) Disposed() bool   { return h.disposed }
func (h *Handle) Stages() []string { return h.stages }

// Filter returns the note's filter, or nil when the preset has none.
func (h *Handle) Filter() filters.FilterModule { return h.filter }

// Tail is how long the chain keeps sounding after the note ends.
func (h *Handle) Tail() float64 { return h.chain.Tail() }

// TailEnd is the earliest time the note can be disposed without cutting
// off a reverb or delay tail.
func (h *Handle) TailEnd() float64 { return h.end + h.Tail() }

// DisposeAt marks the note for disposal once the audio clock reaches t.
// The engine performs it on its next Collect.
func (h *Handle) DisposeAt(t float64) {
	if !math.IsNaN(t) {
		h.disposeAt = t
		h.scheduled = true
	}
}

// due reports whether the note should be torn down at now. Without an
// explicit DisposeAt, auto decides whether TailEnd counts.
func (h *Handle) due(now float64, auto bool) bool {
	if h.scheduled {
		return now >= h.disposeAt
	}
	return auto && now >= h.TailEnd()
}

// Dispose disconnects every node the note owns. Disposing before TailEnd
// cuts the sound off. Calling it again does nothing.
func (h *Handle) Dispose() {
	if h.disposed {
		return
	}
	h.disposed = true
	h.chain.Dispose()
	h.group.Dispose()
	if h.onDispose != nil {
		h.onDispose(h)
	}
}
