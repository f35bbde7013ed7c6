package processor

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
)

func TestMasterReachesTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetLUFS = -14
	in := sine(t, 48000, 2, 1, 997, -6)
	eng := &fakeEngine{}

	var steps []int
	m := withEngine(cfg, eng)
	m.Progress = func(step, total int) {
		if total != TotalSteps {
			t.Errorf("total = %d, want %d", total, TotalSteps)
		}
		steps = append(steps, step)
	}
	res := m.Process(context.Background(), in)

	if res.Fallback {
		t.Fatalf("unexpected fallback: %v", res.Err)
	}
	if math.Abs(res.Final.Integrated-cfg.TargetLUFS) > 0.5 {
		t.Errorf("final loudness = %.2f LUFS, want %.1f ±0.5", res.Final.Integrated, cfg.TargetLUFS)
	}
	if res.Waveform.SampleRate != 48000 || res.Waveform.NumChannels() != 2 || res.Waveform.Frames() != in.Frames() {
		t.Errorf("shape changed: %d Hz, %d ch, %d frames", res.Waveform.SampleRate, res.Waveform.NumChannels(), res.Waveform.Frames())
	}
	want := []int{StepPrepared, StepMeasured, StepCompress, StepRough, StepLinear, StepVerified, StepMastered}
	if !slices.Equal(steps, want) {
		t.Errorf("progress steps = %v, want %v", steps, want)
	}
	if !eng.closed {
		t.Error("engine not closed")
	}
	if res.Compression != nil {
		t.Error("compression ran while disabled")
	}
}

func TestMasterDoesNotMutateInput(t *testing.T) {
	in := sine(t, 48000, 2, 1, 440, -3)
	orig := in.Clone()
	withEngine(DefaultConfig(), &fakeEngine{}).Process(context.Background(), in)
	if !audio.Equal(in, orig, 0) {
		t.Error("input waveform was modified")
	}
}

func TestMasterSilenceSkipsGainStages(t *testing.T) {
	in := audio.NewWaveform(48000, 2, 48000)
	eng := &fakeEngine{}

	res := withEngine(DefaultConfig(), eng).Process(context.Background(), in)

	if res.Fallback {
		t.Fatalf("unexpected fallback: %v", res.Err)
	}
	if !res.Skipped {
		t.Error("silent input should be reported as skipped")
	}
	if eng.normalizeCalls != 0 {
		t.Errorf("normalize called %d times on silence", eng.normalizeCalls)
	}
	if !audio.Equal(res.Waveform, in, 0) || !res.Waveform.IsFinite() {
		t.Error("silence should pass through unchanged")
	}
}

func TestMasterFallbackWithoutFFmpeg(t *testing.T) {
	in := sine(t, 48000, 2, 0.5, 440, -12)
	m := &Mastering{
		Config:    DefaultConfig(),
		NewEngine: func(MasteringConfig) (Engine, error) { return nil, ffmpeg.ErrNotFound },
	}

	res := m.Process(context.Background(), in)

	if !res.Fallback || !errors.Is(res.Err, ffmpeg.ErrNotFound) {
		t.Fatalf("Fallback = %v, Err = %v; want ErrNotFound fallback", res.Fallback, res.Err)
	}
	if res.Waveform != in {
		t.Error("fallback must return the exact input")
	}
}

func TestMasterFallbackOnExitError(t *testing.T) {
	in := sine(t, 48000, 1, 0.5, 440, -12)
	exitErr := &ffmpeg.ExitError{Op: ffmpeg.OpLoudnorm, ExitCode: 1, Stderr: "Invalid argument"}
	eng := &fakeEngine{normalizeErr: exitErr}

	res := withEngine(DefaultConfig(), eng).Process(context.Background(), in)

	var got *ffmpeg.ExitError
	if !res.Fallback || !errors.As(res.Err, &got) {
		t.Fatalf("Err = %v, want *ffmpeg.ExitError", res.Err)
	}
	if res.Waveform != in {
		t.Error("fallback must return the input")
	}
	if !eng.closed {
		t.Error("engine not closed after failure")
	}
}

func TestMasterRecoversPanic(t *testing.T) {
	in := sine(t, 48000, 2, 0.5, 440, -12)
	eng := &fakeEngine{panicMessage: "boom"}

	res := withEngine(DefaultConfig(), eng).Process(context.Background(), in)

	if !res.Fallback || !errors.Is(res.Err, ErrPanic) {
		t.Fatalf("Err = %v, want ErrPanic", res.Err)
	}
	if res.Waveform != in {
		t.Error("fallback must return the input")
	}
	if !eng.closed {
		t.Error("engine not closed after panic")
	}
}

func TestMasterFallbackReturnsResampledInput(t *testing.T) {
	in := sine(t, 44100, 2, 0.5, 440, -12)
	m := &Mastering{
		Config:    DefaultConfig(),
		NewEngine: func(MasteringConfig) (Engine, error) { return nil, ffmpeg.ErrNotFound },
	}

	res := m.Process(context.Background(), in)

	if !res.Fallback {
		t.Fatal("expected fallback")
	}
	if res.Waveform.SampleRate != 48000 || res.Waveform.Frames() != 24000 {
		t.Errorf("fallback waveform = %d Hz x %d frames, want resampled 48000 x 24000",
			res.Waveform.SampleRate, res.Waveform.Frames())
	}
}

func TestMasterRoughMeasurementSubstituted(t *testing.T) {
	in := sine(t, 48000, 2, 1, 997, -18)
	eng := &fakeEngine{failMeasureAt: 2}

	res := withEngine(DefaultConfig(), eng).Process(context.Background(), in)

	if res.Fallback {
		t.Fatalf("unexpected fallback: %v", res.Err)
	}
	if !res.Normalisation.RoughSubstituted || res.Rough != res.Initial {
		t.Errorf("Rough = %+v, want initial %+v", res.Rough, res.Initial)
	}
	if !res.Waveform.IsFinite() {
		t.Error("output must be finite")
	}
}

func TestMasterVerifiesInProcessWhenEngineCannot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetLUFS = -16
	in := sine(t, 48000, 2, 1, 997, -6)
	eng := &fakeEngine{verifyErr: &ffmpeg.ExitError{Op: ffmpeg.OpEBUR128, ExitCode: 1}}

	res := withEngine(cfg, eng).Process(context.Background(), in)

	if res.Fallback {
		t.Fatalf("verification failure must not cause a fallback: %v", res.Err)
	}
	if eng.verifyCalls != 1 {
		t.Errorf("verify calls = %d, want 1", eng.verifyCalls)
	}
	if math.Abs(res.Final.Integrated-cfg.TargetLUFS) > 0.5 {
		t.Errorf("final loudness = %.2f LUFS, want %.1f ±0.5", res.Final.Integrated, cfg.TargetLUFS)
	}
	if res.Final.TruePeak > cfg.EffectivePeak()+0.1 {
		t.Errorf("final true peak = %.2f dBTP above ceiling", res.Final.TruePeak)
	}
}

func TestMasterNormalisationDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetLUFS = DisabledLoudness
	in := sine(t, 48000, 2, 0.5, 440, -12)
	m := &Mastering{
		Config: cfg,
		NewEngine: func(MasteringConfig) (Engine, error) {
			t.Fatal("engine must not be created when normalisation is disabled")
			return nil, nil
		},
	}

	res := m.Process(context.Background(), in)

	if res.Fallback || !res.Skipped || res.Waveform != in {
		t.Errorf("result = %+v, want skipped pass-through", res)
	}
}

func TestMasterWithCompression(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCompression = true
	cfg.Mode = ModeFast
	in := generateTestWaveform(t, TestAudioOptions{DurationSecs: 2, ToneFreq: 220, ToneLevel: -10, NoiseLevel: -30})
	eng := &fakeEngine{}

	res := withEngine(cfg, eng).Process(context.Background(), in)

	if res.Fallback {
		t.Fatalf("unexpected fallback: %v", res.Err)
	}
	if res.Compression == nil {
		t.Fatal("compression info missing")
	}
	wantThreshold, _ := AdaptiveThreshold(res.Initial.Integrated, cfg.TargetLUFS, Preset(ModeFast))
	if math.Abs(res.Compression.ThresholdDB-wantThreshold) > 1e-9 {
		t.Errorf("threshold = %.3f, want %.3f", res.Compression.ThresholdDB, wantThreshold)
	}
}

func TestMasterLimiterKeepsCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetLUFS = -6 // loud target forces peaks over the ceiling
	in := generateTestWaveform(t, TestAudioOptions{DurationSecs: 1, ToneFreq: 100, ToneLevel: -20})
	// Sparse spikes keep loudness low relative to the peak.
	for i := 0; i < in.Frames(); i += 4800 {
		in.Channels[0][i] = 0.9
	}

	res := withEngine(cfg, &fakeEngine{}).Process(context.Background(), in)

	if res.Fallback {
		t.Fatalf("unexpected fallback: %v", res.Err)
	}
	if res.LimiterGain >= 1 {
		t.Fatalf("limiter gain = %v, expected reduction", res.LimiterGain)
	}
	peak, err := TruePeak(res.Waveform)
	if err != nil {
		t.Fatal(err)
	}
	if db := audio.LinearToDB(peak); db > cfg.EffectivePeak()+1e-6 {
		t.Errorf("true peak = %.4f dBTP, ceiling %.1f", db, cfg.EffectivePeak())
	}
}

func TestMasterWithFFmpeg(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not installed")
	}
	cfg := DefaultConfig()
	cfg.TargetLUFS = -14
	in := sine(t, 48000, 2, 1, 997, -6)

	res := Master(context.Background(), in, cfg, nil)

	if res.Fallback {
		t.Fatalf("unexpected fallback: %v", res.Err)
	}
	if res.Waveform.SampleRate != 48000 || res.Waveform.NumChannels() != 2 {
		t.Errorf("format changed: %d Hz, %d ch", res.Waveform.SampleRate, res.Waveform.NumChannels())
	}
	if math.Abs(res.Final.Integrated-cfg.TargetLUFS) > 0.5 {
		t.Errorf("final loudness = %.2f LUFS, want -14 ±0.5", res.Final.Integrated)
	}
}
