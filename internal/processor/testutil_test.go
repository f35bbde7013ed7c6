package processor

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
)

// TestAudioOptions configures the synthetic audio to generate
type TestAudioOptions struct {
	DurationSecs float64 // Total duration in seconds
	SampleRate   int     // Sample rate (default: 48000)
	Channels     int     // Channel count (default: 2)
	ToneFreq     float64 // Sine wave frequency in Hz (0 = no tone)
	ToneLevel    float64 // Tone peak level in dBFS (e.g., -6.0)
	NoiseLevel   float64 // White noise level in dBFS (0 = no noise, -60 = quiet noise)
	SilenceGap   struct {
		Start    float64 // Start time of silence gap in seconds
		Duration float64 // Duration of silence gap in seconds
	}
}

// generateTestWaveform creates a synthetic waveform for testing.
// Every channel carries the same tone; noise is deterministic per channel.
func generateTestWaveform(t *testing.T, opts TestAudioOptions) *audio.Waveform {
	t.Helper()

	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels == 0 {
		opts.Channels = 2
	}
	if opts.DurationSecs == 0 {
		opts.DurationSecs = 1.0
	}

	frames := int(opts.DurationSecs * float64(opts.SampleRate))
	w := audio.NewWaveform(opts.SampleRate, opts.Channels, frames)

	toneAmp := 0.0
	if opts.ToneFreq > 0 && opts.ToneLevel < 0 {
		toneAmp = audio.DBToLinear(opts.ToneLevel)
	}
	noiseAmp := 0.0
	if opts.NoiseLevel < 0 {
		noiseAmp = audio.DBToLinear(opts.NoiseLevel)
	}

	silenceStart := int(opts.SilenceGap.Start * float64(opts.SampleRate))
	silenceEnd := int((opts.SilenceGap.Start + opts.SilenceGap.Duration) * float64(opts.SampleRate))

	for c := range opts.Channels {
		// Simple LCG for deterministic noise (Numerical Recipes parameters)
		rngState := uint32(12345 + c)
		nextRandom := func() float64 {
			rngState = rngState*1664525 + 1013904223
			return (float64(rngState)/float64(0xFFFFFFFF))*2.0 - 1.0
		}

		for i := range frames {
			if opts.SilenceGap.Duration > 0 && i >= silenceStart && i < silenceEnd {
				continue
			}
			var sample float64
			if toneAmp > 0 {
				ts := float64(i) / float64(opts.SampleRate)
				sample += toneAmp * math.Sin(2.0*math.Pi*opts.ToneFreq*ts)
			}
			if noiseAmp > 0 {
				sample += noiseAmp * nextRandom()
			}
			w.Channels[c][i] = sample
		}
	}
	return w
}

// sine is shorthand for a tone-only waveform.
func sine(t *testing.T, rate, channels int, secs, freq, dBFS float64) *audio.Waveform {
	t.Helper()
	return generateTestWaveform(t, TestAudioOptions{
		DurationSecs: secs,
		SampleRate:   rate,
		Channels:     channels,
		ToneFreq:     freq,
		ToneLevel:    dBFS,
	})
}

// fakeEngine stands in for ffmpeg. Measurements come from InternalMeter and
// loudnorm is modelled as the gain that moves the measured loudness to target.
type fakeEngine struct {
	meter InternalMeter

	measureCalls   int
	normalizeCalls int
	verifyCalls    int
	closed         bool
	passes         []LoudnormPass

	// failMeasureAt makes the n-th Measure call (1-based) unparseable.
	failMeasureAt int
	normalizeErr  error
	verifyErr     error
	panicMessage  string

	// offset is reported as loudnorm's target_offset by every Measure.
	offset float64
}

func (f *fakeEngine) Measure(ctx context.Context, w *audio.Waveform) (LoudnessStats, error) {
	f.measureCalls++
	if f.measureCalls == f.failMeasureAt {
		return LoudnessStats{}, fmt.Errorf("%w: fake", ffmpeg.ErrNoMeasurement)
	}
	s, err := f.meter.Measure(ctx, w)
	s.TargetOffset = f.offset
	return s, err
}

func (f *fakeEngine) Normalize(ctx context.Context, w *audio.Waveform, pass LoudnormPass) (*audio.Waveform, error) {
	f.normalizeCalls++
	f.passes = append(f.passes, pass)
	if f.panicMessage != "" {
		panic(f.panicMessage)
	}
	if f.normalizeErr != nil {
		return nil, f.normalizeErr
	}

	measured := pass.Measured
	if measured == nil {
		s, err := f.meter.Measure(ctx, w)
		if err != nil {
			return nil, err
		}
		measured = &s
	}
	out := w.Scale(audio.DBToLinear(pass.TargetLUFS - measured.Integrated))
	return Resample(out, pass.SampleRate)
}

func (f *fakeEngine) Verify(ctx context.Context, w *audio.Waveform) (LoudnessStats, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return LoudnessStats{}, f.verifyErr
	}
	return f.meter.Measure(ctx, w)
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

// withEngine returns a Mastering wired to eng.
func withEngine(cfg MasteringConfig, eng Engine) *Mastering {
	return &Mastering{
		Config:    cfg,
		NewEngine: func(MasteringConfig) (Engine, error) { return eng, nil },
	}
}
