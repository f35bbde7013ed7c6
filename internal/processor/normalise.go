package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
)

// linearSafetyMargin keeps the linear-mode estimate clear of rounding
// differences between Go and loudnorm's internal arithmetic.
const linearSafetyMargin = 0.1 // dB

// NormalisationResult describes the two loudnorm passes.
type NormalisationResult struct {
	Rough LoudnessStats // measurement of the rough pass output
	// RoughSubstituted is set when the rough output could not be measured
	// and the initial measurement stood in for it.
	RoughSubstituted bool
	// LinearPossible reports whether loudnorm can reach the target with one
	// gain under the true-peak ceiling; otherwise it switches to dynamic mode.
	LinearPossible bool
	// MaxLinearTarget is the loudest target reachable in linear mode.
	MaxLinearTarget float64
}

// calculateLinearModeTarget works out whether a loudnorm linear pass can reach
// desiredI without the true peak crossing targetTP:
//
//	measuredTP + (targetI - measuredI) <= targetTP
//
// It returns the effective target, the gain to get there and whether the
// desired target is reachable.
func calculateLinearModeTarget(measuredI, measuredTP, desiredI, targetTP float64) (effectiveTargetI, offset float64, linearPossible bool) {
	maxLinearTargetI := targetTP - measuredTP + measuredI - linearSafetyMargin

	if desiredI <= maxLinearTargetI {
		return desiredI, desiredI - measuredI, true
	}
	return maxLinearTargetI, maxLinearTargetI - measuredI, false
}

// normalise runs the rough pass, measures it, then applies the linear pass
// with the measured values. An unparseable rough measurement is replaced by
// initial, the pre-compression measurement.
func normalise(ctx context.Context, eng Engine, w *audio.Waveform, cfg MasteringConfig, initial LoudnessStats, logger *zap.Logger, step func(int)) (*audio.Waveform, *NormalisationResult, error) {
	tp := cfg.LoudnormTP()
	res := &NormalisationResult{}

	rough, err := eng.Normalize(ctx, w, LoudnormPass{
		TargetLUFS: cfg.TargetLUFS,
		TruePeak:   tp,
		SampleRate: cfg.SampleRate,
		DualMono:   true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rough normalisation failed: %w", err)
	}

	roughStats, err := eng.Measure(ctx, rough)
	switch {
	case errors.Is(err, ffmpeg.ErrNoMeasurement):
		logger.Warn("could not parse loudness after rough normalisation, using initial measurement", zap.Error(err))
		roughStats = initial
		res.RoughSubstituted = true
	case err != nil:
		return nil, nil, fmt.Errorf("rough measurement failed: %w", err)
	case roughStats.IsSilent():
		logger.Warn("rough normalisation measured as silence, using initial measurement")
		roughStats = initial
		res.RoughSubstituted = true
	}
	res.Rough = roughStats
	step(StepRough)

	res.MaxLinearTarget, _, res.LinearPossible = calculateLinearModeTarget(roughStats.Integrated, roughStats.TruePeak, cfg.TargetLUFS, tp)
	if !res.LinearPossible {
		logger.Info("target needs more than linear gain, loudnorm will fall back to dynamic mode",
			zap.Float64("target", cfg.TargetLUFS),
			zap.Float64("max_linear_target", res.MaxLinearTarget))
	}

	// A substituted offset was measured on different audio; loudnorm must
	// not apply it if it falls back to dynamic mode.
	measured := roughStats
	if res.RoughSubstituted {
		measured.TargetOffset = 0
	}
	out, err := eng.Normalize(ctx, rough, LoudnormPass{
		TargetLUFS: cfg.TargetLUFS,
		TruePeak:   tp,
		SampleRate: cfg.SampleRate,
		Linear:     true,
		Measured:   &measured,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("linear normalisation failed: %w", err)
	}
	return out, res, nil
}
