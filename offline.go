package synthgraph

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cbegin/synthgraph-go/internal/graph"
)

// renderBlock is the offline scheduling granularity in frames.
const renderBlock = 256

// Note is one entry of an offline render. Freq wins over MIDI when both
// are set.
type Note struct {
	Preset   string  `json:"preset"`
	Freq     float64 `json:"freq,omitempty"`
	MIDI     int     `json:"midi,omitempty"`
	Velocity float64 `json:"velocity"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Frequency returns the note pitch in Hz.
func (n Note) Frequency() float64 {
	if n.Freq != 0 {
		return n.Freq
	}
	return MIDIToFreq(n.MIDI)
}

// MIDIToFreq converts a MIDI note number to Hz, with A4 (69) at 440 Hz.
func MIDIToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// RenderNotes renders total seconds of interleaved stereo at sampleRate.
// Voices are built one block before they sound and collected once their
// tail has passed. Notes that cannot be started are skipped; their errors
// are joined into the returned error alongside the rendered audio.
func RenderNotes(sampleRate int, notes []Note, total float64, opts ...EngineOption) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	off := graph.NewOfflineContext(sampleRate, total)
	e := newEngine(off.Context, opts...)
	defer e.Close()
	if err := e.Initialize(); err != nil {
		return nil, err
	}

	pending := slices.Clone(notes)
	slices.SortStableFunc(pending, func(a, b Note) int { return cmp.Compare(a.Start, b.Start) })
	lookahead := float64(renderBlock) / float64(sampleRate)
	var errs []error
	schedule := func(now float64) {
		// NaN starts sort first and are handed over to be rejected.
		for len(pending) > 0 && !(pending[0].Start >= now+lookahead) {
			n := pending[0]
			pending = pending[1:]
			if _, err := e.StartVoice(n.Preset, n.Frequency(), n.Velocity, n.Start, n.Duration); err != nil {
				errs = append(errs, fmt.Errorf("note at %.3fs: %w", n.Start, err))
			}
		}
	}
	schedule(0)
	out := off.StartRendering(renderBlock, func(now float64) {
		e.Collect()
		schedule(now)
	})
	return out, errors.Join(errs...)
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// WriteWAV16 writes interleaved stereo samples as 16-bit PCM. Samples are
// clipped to [-1, 1].
func WriteWAV16(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		buf.Data[i] = int(math.Round(v * 32767))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return enc.Close()
}
