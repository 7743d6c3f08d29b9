package synthgraph

import (
	"log/slog"

	"github.com/cbegin/synthgraph-go/internal/dynamics"
	"github.com/cbegin/synthgraph-go/internal/impulse"
	"github.com/cbegin/synthgraph-go/internal/preset"
	"github.com/cbegin/synthgraph-go/internal/spatial"
)

// Settings types of the master bus processors.
type (
	MasteringSettings = spatial.MasteringSettings
	MidSideSettings   = spatial.MidSideSettings
	LimiterSettings   = dynamics.LimiterSettings
	GlueSettings      = dynamics.BusSettings
	MultibandSettings = dynamics.MultibandSettings
)

// ImpulseFetcher loads reverb impulse responses by id. ImpulseResponse is
// what it returns.
type (
	ImpulseFetcher  = impulse.Fetcher
	ImpulseResponse = impulse.Response
)

// Presets is a validated, hot-reloadable preset library.
type Presets = preset.Library

func DefaultMasteringSettings() MasteringSettings { return spatial.DefaultMasteringSettings() }
func DefaultMidSideSettings() MidSideSettings     { return spatial.DefaultMidSideSettings() }
func DefaultGlueSettings() GlueSettings           { return dynamics.DefaultBusSettings() }
func DefaultMultibandSettings() MultibandSettings { return dynamics.DefaultMultibandSettings() }

type EngineOption func(*engineConfig)

type engineConfig struct {
	logger      *slog.Logger
	library     *preset.Library
	presetDir   string
	fetcher     impulse.Fetcher
	autoDispose bool

	glue      *dynamics.BusSettings
	multiband *dynamics.MultibandSettings
	stereo    *spatial.MidSideSettings
	mastering *spatial.MasteringSettings
}

func defaultEngineConfig() engineConfig {
	m := spatial.DefaultMasteringSettings()
	return engineConfig{logger: slog.Default(), autoDispose: true, mastering: &m}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(cfg *engineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithPresetLibrary replaces the embedded factory presets.
func WithPresetLibrary(lib *Presets) EngineOption {
	return func(cfg *engineConfig) {
		cfg.library = lib
	}
}

// WithPresetDir adds every *.json pack in dir on top of the library.
// Presets in dir override library presets with the same id.
func WithPresetDir(dir string) EngineOption {
	return func(cfg *engineConfig) {
		cfg.presetDir = dir
	}
}

// WithImpulseFetcher sets where reverb impulse responses come from. Without
// one, every reverb uses a synthesized response.
func WithImpulseFetcher(f ImpulseFetcher) EngineOption {
	return func(cfg *engineConfig) {
		cfg.fetcher = f
	}
}

// WithImpulseDir loads impulse responses from WAV files named <id>.wav.
func WithImpulseDir(dir string) EngineOption {
	return func(cfg *engineConfig) {
		cfg.fetcher = impulse.NewDirFetcher(dir)
	}
}

// WithAutoDispose controls whether Collect tears down voices once their
// tail has elapsed. It is on by default.
func WithAutoDispose(enabled bool) EngineOption {
	return func(cfg *engineConfig) {
		cfg.autoDispose = enabled
	}
}

// WithGlue puts a glue compressor at the head of the master bus.
func WithGlue(s GlueSettings) EngineOption {
	return func(cfg *engineConfig) {
		cfg.glue = &s
	}
}

func WithMultiband(s MultibandSettings) EngineOption {
	return func(cfg *engineConfig) {
		cfg.multiband = &s
	}
}

// WithStereo adds a mid/side stage before mastering.
func WithStereo(s MidSideSettings) EngineOption {
	return func(cfg *engineConfig) {
		cfg.stereo = &s
	}
}

func WithMastering(s MasteringSettings) EngineOption {
	return func(cfg *engineConfig) {
		cfg.mastering = &s
	}
}

// WithoutMastering sends the master bus straight to the output.
func WithoutMastering() EngineOption {
	return func(cfg *engineConfig) {
		cfg.mastering = nil
	}
}
