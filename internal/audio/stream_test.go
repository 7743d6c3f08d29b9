package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

type ramp struct {
	next     float32
	finished bool
}

func (r *ramp) Process(dst []float32) {
	for i := range dst {
		dst[i] = r.next
		r.next += 0.125
	}
}

func (r *ramp) Finished() bool { return r.finished }

func sample(p []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
}

func TestStreamReaderEncodesFloat32LE(t *testing.T) {
	r := NewStreamReader(&ramp{}, nil)
	p := make([]byte, 4*8+3)
	n, err := r.Read(p)
	if err != nil || n != 32 {
		t.Fatalf("Read = %d, %v, want 32 bytes", n, err)
	}
	for i := range 8 {
		if got, want := sample(p, i), float32(i)*0.125; got != want {
			t.Fatalf("sample %d = %v, want %v", i, got, want)
		}
	}
	if n, _ := r.Read(make([]byte, 7)); n != 0 {
		t.Fatalf("partial frame read %d bytes", n)
	}
}

func TestStreamReaderVolumeAndTap(t *testing.T) {
	var seen []float32
	r := NewStreamReader(&ramp{next: 1}, func(b []float32) { seen = append(seen, b...) })
	r.SetVolume(0.5)
	p := make([]byte, 16)
	if _, err := r.Read(p); err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []float32{0.5, 0.5625, 0.625, 0.6875}
	for i, w := range want {
		if sample(p, i) != w || seen[i] != w {
			t.Fatalf("sample %d = %v (tap %v), want %v", i, sample(p, i), seen[i], w)
		}
	}
	if r.Peak() != 0.6875 {
		t.Fatalf("peak = %v", r.Peak())
	}
	r.SetVolume(-2)
	if r.Volume() != 0 {
		t.Fatalf("negative volume = %v, want muted", r.Volume())
	}
}

func TestStreamReaderEOFWhenFinished(t *testing.T) {
	src := &ramp{}
	r := NewStreamReader(src, nil)
	p := make([]byte, 16)
	if _, err := r.Read(p); err != nil {
		t.Fatalf("Read: %v", err)
	}
	src.finished = true
	if n, err := r.Read(p); n != 16 || !errors.Is(err, io.EOF) {
		t.Fatalf("Read = %d, %v, want 16, EOF", n, err)
	}
}
