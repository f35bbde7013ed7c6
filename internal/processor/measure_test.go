package processor

import (
	"context"
	"math"
	"testing"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

func TestInternalMeterSine(t *testing.T) {
	var m InternalMeter
	ctx := context.Background()

	loud, err := m.Measure(ctx, sine(t, 48000, 2, 3, 997, -6))
	if err != nil {
		t.Fatalf("Measure() error: %v", err)
	}
	// A 997 Hz stereo sine at -6 dBFS peak reads about -6 LUFS.
	if math.Abs(loud.Integrated-(-6)) > 1.5 {
		t.Errorf("integrated = %.2f LUFS, want about -6", loud.Integrated)
	}
	if math.Abs(loud.TruePeak-(-6)) > 0.2 {
		t.Errorf("true peak = %.2f dBTP, want about -6", loud.TruePeak)
	}
	if loud.Range > 0.5 {
		t.Errorf("steady tone should have no loudness range, got %.2f LU", loud.Range)
	}
	if math.Abs(loud.Threshold-(loud.Integrated-10)) > 1e-9 {
		t.Errorf("threshold = %.2f, want integrated - 10", loud.Threshold)
	}

	quiet, err := m.Measure(ctx, sine(t, 48000, 2, 3, 997, -16))
	if err != nil {
		t.Fatal(err)
	}
	if d := loud.Integrated - quiet.Integrated; math.Abs(d-10) > 0.05 {
		t.Errorf("10 dB level change measured as %.3f LU", d)
	}
}

func TestInternalMeterSilence(t *testing.T) {
	stats, err := InternalMeter{}.Measure(context.Background(), audio.NewWaveform(48000, 2, 48000))
	if err != nil {
		t.Fatal(err)
	}
	if !stats.IsSilent() {
		t.Errorf("silence measured as %.2f LUFS", stats.Integrated)
	}
	if !math.IsInf(stats.TruePeak, -1) {
		t.Errorf("true peak of silence = %v, want -Inf", stats.TruePeak)
	}
	if stats.Threshold != absoluteGateLUFS {
		t.Errorf("threshold = %v, want %v", stats.Threshold, absoluteGateLUFS)
	}
}

func TestInternalMeterShortClip(t *testing.T) {
	stats, err := InternalMeter{}.Measure(context.Background(), sine(t, 48000, 1, 0.2, 997, -6))
	if err != nil {
		t.Fatal(err)
	}
	if stats.IsSilent() {
		t.Error("a short non-silent clip must not read as silence")
	}
}

func TestInternalMeterLoudnessRange(t *testing.T) {
	quiet := sine(t, 48000, 1, 5, 997, -30)
	loud := sine(t, 48000, 1, 5, 997, -20)
	w := &audio.Waveform{
		SampleRate: 48000,
		Channels:   [][]float64{append(quiet.Channels[0], loud.Channels[0]...)},
	}

	stats, err := InternalMeter{}.Measure(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Range < 7 || stats.Range > 11 {
		t.Errorf("loudness range = %.2f LU, want about 10", stats.Range)
	}
}

func TestLoudnessRangeGating(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single value", []float64{-20}, 0},
		{"below absolute gate", []float64{-80, -90, -75}, 0},
		{"uniform spread", []float64{-30, -28, -26, -24, -22, -20}, 8.5},
		// -60 falls below the gate; p10 of the rest is -20, p95 is -11.5.
		{"relative gate drops far outliers", []float64{-60, -20, -20, -20, -10}, 8.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loudnessRange(tt.values); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("loudnessRange() = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}
