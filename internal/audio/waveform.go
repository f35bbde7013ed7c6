// Package audio holds the in-memory waveform and the file formats it travels in.
package audio

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyWaveform is returned for waveforms without channels or frames.
	ErrEmptyWaveform = errors.New("audio: empty waveform")
	// ErrRaggedWaveform is returned when channels differ in length.
	ErrRaggedWaveform = errors.New("audio: channels have different lengths")
	// ErrSampleRate is returned for non-positive sample rates.
	ErrSampleRate = errors.New("audio: invalid sample rate")
)

// Waveform is planar multi-channel audio: Channels[c][i] is frame i of channel c.
// Values are nominally in [-1, 1] but may exceed that range between stages.
type Waveform struct {
	SampleRate int
	Channels   [][]float64
}

// NewWaveform allocates a zeroed waveform.
func NewWaveform(sampleRate, channels, frames int) *Waveform {
	w := &Waveform{
		SampleRate: sampleRate,
		Channels:   make([][]float64, channels),
	}
	for c := range w.Channels {
		w.Channels[c] = make([]float64, frames)
	}
	return w
}

// NumChannels returns the channel count.
func (w *Waveform) NumChannels() int {
	return len(w.Channels)
}

// Frames returns the number of samples per channel.
func (w *Waveform) Frames() int {
	if len(w.Channels) == 0 {
		return 0
	}
	return len(w.Channels[0])
}

// Duration returns the length in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(w.Frames()) / float64(w.SampleRate)
}

// Validate checks the structural invariants every stage relies on.
func (w *Waveform) Validate() error {
	if w == nil || len(w.Channels) == 0 || len(w.Channels[0]) == 0 {
		return ErrEmptyWaveform
	}
	if w.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrSampleRate, w.SampleRate)
	}
	n := len(w.Channels[0])
	for c, ch := range w.Channels {
		if len(ch) != n {
			return fmt.Errorf("%w: channel %d has %d frames, want %d", ErrRaggedWaveform, c, len(ch), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (w *Waveform) Clone() *Waveform {
	out := &Waveform{
		SampleRate: w.SampleRate,
		Channels:   make([][]float64, len(w.Channels)),
	}
	for c, ch := range w.Channels {
		out.Channels[c] = append([]float64(nil), ch...)
	}
	return out
}

// IsFinite reports whether every sample is a finite number.
func (w *Waveform) IsFinite() bool {
	for _, ch := range w.Channels {
		for _, v := range ch {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Peak returns the largest absolute sample value across all channels.
func (w *Waveform) Peak() float64 {
	var peak float64
	for _, ch := range w.Channels {
		for _, v := range ch {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Scale returns a copy with every sample multiplied by gain.
func (w *Waveform) Scale(gain float64) *Waveform {
	out := w.Clone()
	for _, ch := range out.Channels {
		for i := range ch {
			ch[i] *= gain
		}
	}
	return out
}

// Clamp returns a copy limited to [lo, hi]. NaN samples become 0.
func (w *Waveform) Clamp(lo, hi float64) *Waveform {
	out := w.Clone()
	for _, ch := range out.Channels {
		for i, v := range ch {
			switch {
			case math.IsNaN(v):
				ch[i] = 0
			case v < lo:
				ch[i] = lo
			case v > hi:
				ch[i] = hi
			}
		}
	}
	return out
}

// Interleave flattens the waveform frame by frame.
func (w *Waveform) Interleave() []float64 {
	n := w.NumChannels()
	frames := w.Frames()
	out := make([]float64, n*frames)
	for c, ch := range w.Channels {
		for i, v := range ch {
			out[i*n+c] = v
		}
	}
	return out
}

// Deinterleave builds a waveform from frame-ordered samples.
// A trailing partial frame is dropped.
func Deinterleave(data []float64, channels, sampleRate int) *Waveform {
	if channels <= 0 {
		return &Waveform{SampleRate: sampleRate}
	}
	frames := len(data) / channels
	w := NewWaveform(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			w.Channels[c][i] = data[i*channels+c]
		}
	}
	return w
}

// Equal reports whether a and b share shape and rate and differ by at most tol per sample.
func Equal(a, b *Waveform, tol float64) bool {
	if a.SampleRate != b.SampleRate || a.NumChannels() != b.NumChannels() || a.Frames() != b.Frames() {
		return false
	}
	for c := range a.Channels {
		for i := range a.Channels[c] {
			if math.Abs(a.Channels[c][i]-b.Channels[c][i]) > tol {
				return false
			}
		}
	}
	return true
}

// DBToLinear converts decibels to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude to decibels. Zero maps to -Inf.
func LinearToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}
