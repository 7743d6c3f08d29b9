package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cbegin/synthgraph-go"
)

// tailPad is rendered after the last note ends so release and effect tails
// are not cut off.
const tailPad = 2.0

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		notesPath  = flag.String("notes", "", "path to a JSON note list (default: demo phrase)")
		presetID   = flag.String("preset", "acid-bass", "preset for the demo phrase")
		outPath    = flag.String("out", "", "write a WAV file instead of playing")
		float32WAV = flag.Bool("float", false, "with -out, write 32-bit float instead of 16-bit PCM")
		presetDir  = flag.String("presets", "", "directory of extra preset packs (*.json)")
		irDir      = flag.String("impulses", "", "directory of impulse responses (<id>.wav)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		width      = flag.Float64("width", 1.0, "stereo width (0 = mono, 2 = extra wide)")
		list       = flag.Bool("list", false, "list presets and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	opts := []synthgraph.EngineOption{synthgraph.WithLogger(logger)}
	if *presetDir != "" {
		opts = append(opts, synthgraph.WithPresetDir(*presetDir))
	}
	if *irDir != "" {
		opts = append(opts, synthgraph.WithImpulseDir(*irDir))
	}
	if *width != 1 {
		st := synthgraph.DefaultMidSideSettings()
		st.Width = *width
		opts = append(opts, synthgraph.WithStereo(st))
	}

	if err := run(*list, *notesPath, *presetID, *outPath, *float32WAV, *sampleRate, *volume, opts); err != nil {
		logger.Error("synthgraph failed", "err", err)
		os.Exit(1)
	}
}

func run(list bool, notesPath, presetID, outPath string, float32WAV bool, sampleRate int, volume float64, opts []synthgraph.EngineOption) error {
	if list {
		return listPresets(sampleRate, opts)
	}
	notes, err := loadNotes(notesPath, presetID)
	if err != nil {
		return err
	}
	total := length(notes) + tailPad
	if outPath != "" {
		return renderFile(outPath, float32WAV, sampleRate, notes, total, volume, opts)
	}
	return play(sampleRate, notes, total, volume, opts)
}

func listPresets(sampleRate int, opts []synthgraph.EngineOption) error {
	e, err := synthgraph.NewEngine(sampleRate, opts...)
	if err != nil {
		return err
	}
	lib, err := e.Presets()
	if err != nil {
		return err
	}
	for _, id := range lib.IDs() {
		p, _ := lib.Lookup(id)
		fmt.Printf("%-14s %-8s %s (%s)\n", id, p.Category, p.Name, p.Capabilities())
	}
	return nil
}

func loadNotes(path, presetID string) ([]synthgraph.Note, error) {
	if strings.TrimSpace(path) == "" {
		return demoPhrase(presetID), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var notes []synthgraph.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("%s: no notes", path)
	}
	return notes, nil
}

// demoPhrase is a one-bar sixteenth-note line at 120 BPM.
func demoPhrase(presetID string) []synthgraph.Note {
	pattern := []int{45, 45, 57, 45, 48, 45, 52, 55, 45, 45, 57, 60, 55, 52, 48, 47}
	const step = 0.125
	notes := make([]synthgraph.Note, 0, len(pattern))
	for i, m := range pattern {
		vel := 90.0
		if i%4 == 0 {
			vel = 120
		}
		notes = append(notes, synthgraph.Note{Preset: presetID, MIDI: m, Velocity: vel, Start: float64(i) * step, Duration: step * 0.8})
	}
	return notes
}

func length(notes []synthgraph.Note) float64 {
	var end float64
	for _, n := range notes {
		end = max(end, n.Start+n.Duration)
	}
	return end
}

func renderFile(path string, float32WAV bool, sampleRate int, notes []synthgraph.Note, total, volume float64, opts []synthgraph.EngineOption) error {
	samples, err := synthgraph.RenderNotes(sampleRate, notes, total, opts...)
	if err != nil {
		// skipped notes are reported but do not stop the render
		slog.Warn("some notes were skipped", "err", err)
	}
	if samples == nil {
		return err
	}
	for i := range samples {
		samples[i] *= float32(volume)
	}
	if float32WAV {
		return os.WriteFile(path, synthgraph.EncodeWAVFloat32LE(samples, sampleRate, 2), 0o644)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := synthgraph.WriteWAV16(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("wrote wav", "path", path, "seconds", total, "notes", len(notes))
	return nil
}

func play(sampleRate int, notes []synthgraph.Note, total, volume float64, opts []synthgraph.EngineOption) error {
	e, err := synthgraph.NewEngine(sampleRate, opts...)
	if err != nil {
		return err
	}
	defer e.Close()
	pl, err := synthgraph.NewPlayer(e)
	if err != nil {
		return err
	}
	pl.SetMasterVolume(volume)
	if err := pl.Play(); err != nil {
		return err
	}
	defer pl.Stop()

	base := e.Time() + 0.1
	var errs []error
	for _, n := range notes {
		if _, err := e.StartVoice(n.Preset, n.Frequency(), n.Velocity, base+n.Start, n.Duration); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("some notes were skipped", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for e.Time() < base+total {
		select {
		case <-ctx.Done():
			slog.Info("interrupted")
			return nil
		case <-tick.C:
			slog.Debug("playing", "diagnostics", e.Describe(), "peak", pl.Peak())
		}
	}
	slog.Info("playback completed", "diagnostics", e.Describe())
	return nil
}
