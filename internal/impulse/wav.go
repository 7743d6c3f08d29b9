package impulse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"

	"github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/go-audio/wav"
)

// FSFetcher loads "<id>.wav" files from a file system.
type FSFetcher struct {
	FS fs.FS
}

// NewDirFetcher returns a fetcher reading WAV files from dir.
func NewDirFetcher(dir string) *FSFetcher {
	return &FSFetcher{FS: os.DirFS(dir)}
}

func (f *FSFetcher) Fetch(ctx context.Context, id string, sampleRate int) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(id) {
		return nil, fmt.Errorf("invalid impulse id %q", id)
	}
	data, err := fs.ReadFile(f.FS, path.Clean(id)+".wav")
	if err != nil {
		return nil, err
	}
	channels, err := Decode(bytes.NewReader(data), sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &Response{ID: id, SampleRate: sampleRate, Channels: channels}, nil
}

// Decode reads a PCM WAV stream into per-channel float samples, resampled
// to sampleRate.
func Decode(r io.ReadSeeker, sampleRate int) ([][]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	nch := buf.Format.NumChannels
	if nch <= 0 {
		return nil, fmt.Errorf("no channels")
	}
	depth := int(dec.SampleBitDepth())
	if depth == 0 {
		depth = 16
	}
	scale := 1 / math.Pow(2, float64(depth-1))
	frames := len(buf.Data) / nch
	out := make([][]float32, nch)
	for ch := range out {
		out[ch] = make([]float32, frames)
		for i := 0; i < frames; i++ {
			out[ch][i] = float32(float64(buf.Data[i*nch+ch]) * scale)
		}
	}
	if src := buf.Format.SampleRate; src > 0 && sampleRate > 0 && src != sampleRate {
		for ch := range out {
			if out[ch], err = resampleTo(out[ch], src, sampleRate); err != nil {
				return nil, fmt.Errorf("resample %d Hz to %d Hz: %w", src, sampleRate, err)
			}
		}
	}
	return out, nil
}

// resampleTo converts in from one rate to another through a polyphase
// anti-aliasing FIR. The filter's group delay is removed so the response
// keeps its onset at sample zero.
func resampleTo(in []float32, from, to int) ([]float32, error) {
	r, err := resample.NewForRates(float64(from), float64(to), resample.WithQuality(resample.QualityBest))
	if err != nil {
		return nil, err
	}
	up, down := r.Ratio()
	delay := (len(r.Prototype()) - 1) / (2 * down)

	x := make([]float64, len(in)+r.TapsPerPhase()+1)
	for i, v := range in {
		x[i] = float64(v)
	}
	y := r.Process(x)

	n := int(int64(len(in)) * int64(up) / int64(down))
	n = max(0, min(n, len(y)-delay))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(y[delay+i])
	}
	return out, nil
}
