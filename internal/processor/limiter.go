package processor

import (
	"fmt"
	"math"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

// ceilingTolerance absorbs float rounding when comparing a peak to its ceiling.
const ceilingTolerance = 1e-9

// LimitSimple scales the whole waveform so its sample peak does not exceed
// ceilingDB. The gain is 1.0 when the peak is already at or under the ceiling.
func LimitSimple(w *audio.Waveform, ceilingDB float64) (*audio.Waveform, float64) {
	return applyCeiling(w, w.Peak(), audio.DBToLinear(ceilingDB))
}

// LimitTruePeak measures the 8x oversampled, Nyquist-filtered peak and applies
// one global gain to the original-rate signal so that peak meets ceilingDB.
// Scaling is linear, so the oversampled peak of the result lands on the
// ceiling while the frame count stays unchanged.
func LimitTruePeak(w *audio.Waveform, ceilingDB float64) (*audio.Waveform, float64, error) {
	peak, err := TruePeak(w)
	if err != nil {
		return nil, 0, err
	}
	out, gain := applyCeiling(w, peak, audio.DBToLinear(ceilingDB))
	return out, gain, nil
}

// TruePeak returns the linear peak as seen by the true-peak limiter.
func TruePeak(w *audio.Waveform) (float64, error) {
	return truePeak(w, limiterOversample, true)
}

// Limit dispatches to the configured strategy.
func Limit(w *audio.Waveform, mode LimiterMode, ceilingDB float64) (*audio.Waveform, float64, error) {
	switch mode {
	case LimiterSimple:
		out, gain := LimitSimple(w, ceilingDB)
		return out, gain, nil
	case LimiterTruePeak:
		return LimitTruePeak(w, ceilingDB)
	}
	return nil, 0, fmt.Errorf("%w: unknown limiter %q", ErrInvalidConfig, mode)
}

func applyCeiling(w *audio.Waveform, peak, ceiling float64) (*audio.Waveform, float64) {
	if peak <= ceiling*(1+ceilingTolerance) || peak == 0 || math.IsNaN(peak) {
		return w.Clone(), 1.0
	}
	gain := ceiling / peak
	return w.Scale(gain), gain
}
