package audio

import (
	"errors"
	"math"
	"testing"
)

func TestWaveformValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       *Waveform
		wantErr error
	}{
		{"nil", nil, ErrEmptyWaveform},
		{"no channels", &Waveform{SampleRate: 48000}, ErrEmptyWaveform},
		{"no frames", NewWaveform(48000, 2, 0), ErrEmptyWaveform},
		{"zero rate", NewWaveform(0, 1, 10), ErrSampleRate},
		{"ragged", &Waveform{SampleRate: 48000, Channels: [][]float64{{0, 0}, {0}}}, ErrRaggedWaveform},
		{"ok", NewWaveform(48000, 2, 10), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWaveformShape(t *testing.T) {
	w := NewWaveform(48000, 2, 24000)
	if w.NumChannels() != 2 || w.Frames() != 24000 {
		t.Errorf("shape = %dx%d", w.NumChannels(), w.Frames())
	}
	if w.Duration() != 0.5 {
		t.Errorf("Duration() = %v, want 0.5", w.Duration())
	}
	if (&Waveform{}).Frames() != 0 || (&Waveform{}).Duration() != 0 {
		t.Error("empty waveform should have no frames and no duration")
	}
}

func TestWaveformGainOps(t *testing.T) {
	w := &Waveform{SampleRate: 8000, Channels: [][]float64{{0.5, -1.5}, {math.NaN(), 0.25}}}

	if !math.IsNaN(w.Channels[1][0]) || w.IsFinite() {
		t.Fatal("NaN sample should make the waveform non-finite")
	}

	clamped := w.Clamp(-1, 1)
	want := [][]float64{{0.5, -1}, {0, 0.25}}
	for c := range want {
		for i := range want[c] {
			if clamped.Channels[c][i] != want[c][i] {
				t.Errorf("Clamp()[%d][%d] = %v, want %v", c, i, clamped.Channels[c][i], want[c][i])
			}
		}
	}
	if w.Channels[0][1] != -1.5 {
		t.Error("Clamp must not modify the receiver")
	}
	if !clamped.IsFinite() || clamped.Peak() != 1 {
		t.Errorf("clamped peak = %v", clamped.Peak())
	}

	scaled := clamped.Scale(0.5)
	if scaled.Channels[0][0] != 0.25 || clamped.Channels[0][0] != 0.5 {
		t.Errorf("Scale() = %v, receiver %v", scaled.Channels[0][0], clamped.Channels[0][0])
	}
}

func TestInterleaveRoundTrip(t *testing.T) {
	w := &Waveform{SampleRate: 44100, Channels: [][]float64{{1, 2, 3}, {-1, -2, -3}}}
	flat := w.Interleave()
	want := []float64{1, -1, 2, -2, 3, -3}
	for i := range want {
		if flat[i] != want[i] {
			t.Fatalf("Interleave() = %v, want %v", flat, want)
		}
	}
	back := Deinterleave(append(flat, 9), 2, 44100)
	if !Equal(w, back, 0) {
		t.Errorf("Deinterleave() = %+v, want %+v", back, w)
	}
	if Equal(w, back.Scale(1.1), 0.01) {
		t.Error("Equal should respect the tolerance")
	}
}

func TestDecibelConversions(t *testing.T) {
	tests := []struct {
		db  float64
		lin float64
	}{
		{0, 1},
		{-6.0206, 0.5},
		{20, 10},
		{-40, 0.01},
	}
	for _, tt := range tests {
		if got := DBToLinear(tt.db); math.Abs(got-tt.lin) > 1e-4 {
			t.Errorf("DBToLinear(%v) = %v, want %v", tt.db, got, tt.lin)
		}
		if got := LinearToDB(tt.lin); math.Abs(got-tt.db) > 1e-3 {
			t.Errorf("LinearToDB(%v) = %v, want %v", tt.lin, got, tt.db)
		}
	}
	if !math.IsInf(LinearToDB(0), -1) {
		t.Error("LinearToDB(0) should be -Inf")
	}
}
