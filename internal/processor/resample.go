package processor

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-dsp/dsp/resample"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

// Resample converts every channel to rate with a band-limited polyphase
// filter. The filter's group delay is removed so the output length is
// round(frames × rate / inputRate) and stays time-aligned with the input.
// When the rates already match the input is returned as is.
func Resample(w *audio.Waveform, rate int) (*audio.Waveform, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: %d", audio.ErrSampleRate, rate)
	}
	if w.SampleRate == rate {
		return w, nil
	}

	r, err := resample.NewRational(rate, w.SampleRate, resample.WithQuality(resample.QualityBest))
	if err != nil {
		return nil, fmt.Errorf("failed to design resampler %d -> %d Hz: %w", w.SampleRate, rate, err)
	}

	outLen := int(math.Round(float64(w.Frames()) * float64(rate) / float64(w.SampleRate)))
	out := &audio.Waveform{SampleRate: rate, Channels: make([][]float64, w.NumChannels())}
	for c, ch := range w.Channels {
		out.Channels[c] = processAligned(r, ch, outLen)
	}
	return out, nil
}

// processAligned runs one channel through r and trims the filter delay.
// The prototype FIR is linear phase, so its centre tap maps to a fixed
// delay of centre/down output samples.
func processAligned(r *resample.Resampler, x []float64, outLen int) []float64 {
	up, down := r.Ratio()
	centre := float64(len(r.Prototype())-1) / 2
	delay := int(math.Round(centre / float64(down)))
	pad := int(math.Ceil(centre/float64(up))) + 2

	in := make([]float64, len(x)+pad)
	copy(in, x)

	r.Reset()
	y := r.Process(in)

	out := make([]float64, outLen)
	if delay < len(y) {
		copy(out, y[delay:])
	}
	return out
}

// Oversampling used for peak detection.
const (
	meterOversample   = 4
	limiterOversample = 8
	// Order of the Butterworth low-pass applied at the original Nyquist.
	limiterFilterOrder = 8
)

// oversample returns x at factor times its rate with interpolation delay removed.
func oversample(x []float64, factor int) ([]float64, error) {
	r, err := resample.NewRational(factor, 1, resample.WithQuality(resample.QualityBalanced))
	if err != nil {
		return nil, err
	}
	return processAligned(r, x, len(x)*factor), nil
}

// truePeak returns the largest absolute value of the factor-times oversampled
// signal across channels. With lowpass set, each oversampled channel is
// additionally run through a Butterworth low-pass at the original Nyquist.
func truePeak(w *audio.Waveform, factor int, lowpass bool) (float64, error) {
	var peak float64
	for _, ch := range w.Channels {
		if len(ch) == 0 {
			continue
		}
		up, err := oversample(ch, factor)
		if err != nil {
			return 0, fmt.Errorf("failed to oversample for true peak: %w", err)
		}
		if lowpass {
			hi := float64(w.SampleRate * factor)
			chain := biquad.NewChain(design.ButterworthLP(float64(w.SampleRate)/2, limiterFilterOrder, hi))
			chain.ProcessBlock(up)
		}
		for _, v := range up {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		// Interpolation never hides a sample peak.
		for _, v := range ch {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak, nil
}
