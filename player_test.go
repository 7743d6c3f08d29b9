package synthgraph

import "testing"

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	e, err := NewEngine(48000, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	pl, err := NewPlayer(e)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.35)
	if got := pl.MasterVolume(); got != 0.35 {
		t.Fatalf("master volume = %v, want 0.35", got)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
	if pl.IsPlaying() || pl.PlaybackPosition() != 0 || pl.Stop() != nil {
		t.Fatalf("idle player should report nothing playing")
	}
}

func TestNewPlayerRequiresEngine(t *testing.T) {
	if _, err := NewPlayer(nil); err == nil {
		t.Fatalf("expected error for nil engine")
	}
}

func TestEngineSourceCollects(t *testing.T) {
	e, _ := NewEngine(48000, WithLogger(quietLogger()), WithoutMastering())
	h, err := e.StartVoice("pluck", 440, 100, 0, 0.01)
	if err != nil {
		t.Fatalf("StartVoice: %v", err)
	}
	src := engineSource{e}
	buf := make([]float32, 2*4800)
	for i := 0; i < 40 && !h.Disposed(); i++ {
		src.Process(buf)
	}
	if !h.Disposed() {
		t.Fatalf("voice still live at %v s, tail ends at %v", e.Time(), h.TailEnd())
	}
}
