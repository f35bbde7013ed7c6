package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
)

// Progress steps reported over a whole save. Mastering owns 3 to 9.
const (
	StepResampled = 1
	StepFilename  = 2
	StepPrepared  = 3
	StepMeasured  = 4
	StepCompress  = 5
	StepRough     = 6
	StepLinear    = 7
	StepVerified  = 8
	StepMastered  = 9
	StepDone      = 10

	TotalSteps = StepDone
)

// ProgressFunc receives the absolute step after each stage completes.
type ProgressFunc func(step, total int)

var (
	// ErrPanic wraps a panic recovered inside the mastering chain.
	ErrPanic = errors.New("mastering panicked")
	// ErrNonFinite is returned when a stage produced NaN or Inf samples.
	ErrNonFinite = errors.New("waveform contains non-finite samples")
)

// MasteringResult carries the mastered waveform and what happened on the way.
// On failure Fallback is set, Err holds the cause and Waveform is the
// (resampled) input, unmodified.
type MasteringResult struct {
	Waveform *audio.Waveform

	Initial LoudnessStats // before compression
	Rough   LoudnessStats // after the rough pass
	Final   LoudnessStats // verification of the output

	Normalisation *NormalisationResult
	Compression   *CompressionInfo // nil when compression was off
	LimiterGain   float64          // 1.0 when no limiting happened

	// Skipped is set when mastering passed the audio through on purpose:
	// normalisation disabled or silent input.
	Skipped  bool
	Fallback bool
	Err      error
}

// Mastering runs the mastering chain for one invocation.
type Mastering struct {
	Config   MasteringConfig
	Runner   *ffmpeg.Runner
	Logger   *zap.Logger
	Progress ProgressFunc

	// NewEngine builds the loudness engine; nil uses ffmpeg through Runner.
	NewEngine func(cfg MasteringConfig) (Engine, error)
}

// Master runs the chain with ffmpeg from $PATH and no logging.
func Master(ctx context.Context, w *audio.Waveform, cfg MasteringConfig, progress ProgressFunc) *MasteringResult {
	m := &Mastering{Config: cfg, Progress: progress}
	return m.Process(ctx, w)
}

func (m *Mastering) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func (m *Mastering) step(n int) {
	if m.Progress != nil {
		m.Progress(n, TotalSteps)
	}
}

func (m *Mastering) engine() (Engine, error) {
	if m.NewEngine != nil {
		return m.NewEngine(m.Config)
	}
	runner := m.Runner
	if runner == nil {
		runner = ffmpeg.NewRunner(m.logger())
	}
	return NewFFmpegEngine(runner, m.Config, m.logger())
}

// Process masters w. It never returns nil: every failure, panics included,
// ends in a fallback result holding the input waveform.
func (m *Mastering) Process(ctx context.Context, w *audio.Waveform) (res *MasteringResult) {
	res = &MasteringResult{Waveform: w, LimiterGain: 1.0}
	fallback := w

	defer func() {
		if r := recover(); r != nil {
			m.logger().Error("mastering panicked, using unprocessed audio",
				zap.Any("panic", r),
				zap.Stack("stack"))
			res.Waveform = fallback
			res.Fallback = true
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	out, err := m.run(ctx, w, res, &fallback)
	if err != nil {
		m.logger().Warn("mastering failed, using unprocessed audio", zap.Error(err))
		res.Waveform = fallback
		res.Fallback = true
		res.Err = err
		return res
	}
	res.Waveform = out
	return res
}

// run is the guarded body of Process. fallback is advanced to the resampled
// input once resampling succeeds.
func (m *Mastering) run(ctx context.Context, in *audio.Waveform, res *MasteringResult, fallback **audio.Waveform) (*audio.Waveform, error) {
	cfg := m.Config
	log := m.logger()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	w, err := Resample(in, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("resample failed: %w", err)
	}
	*fallback = w

	if !cfg.NormalisationEnabled() {
		res.Skipped = true
		return w, nil
	}
	if !w.IsFinite() {
		return nil, ErrNonFinite
	}

	eng, err := m.engine()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			log.Warn("failed to remove scratch files", zap.Error(cerr))
		}
	}()
	m.step(StepPrepared)

	initial, err := eng.Measure(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("initial measurement failed: %w", err)
	}
	res.Initial = initial
	log.Info("measured input",
		zap.Float64("integrated_lufs", initial.Integrated),
		zap.Float64("target_lufs", cfg.TargetLUFS),
		zap.Float64("true_peak_dbtp", initial.TruePeak))
	m.step(StepMeasured)

	if initial.IsSilent() {
		log.Info("input is silent, skipping gain stages")
		res.Skipped = true
		res.Final = initial
		return w.Clone(), nil
	}

	work := w
	if cfg.EnableCompression {
		preset := cfg.Compressor()
		threshold, offset := AdaptiveThreshold(initial.Integrated, cfg.TargetLUFS, preset)
		work, err = Compress(w, threshold, preset)
		if err != nil {
			return nil, fmt.Errorf("compression failed: %w", err)
		}
		res.Compression = &CompressionInfo{Preset: preset, DynamicOffset: offset, ThresholdDB: threshold}
		log.Info("compressed",
			zap.String("mode", string(preset.Mode)),
			zap.Float64("ratio", preset.Ratio),
			zap.Float64("dynamic_offset_db", offset),
			zap.Float64("threshold_db", threshold))
	}
	m.step(StepCompress)

	normalised, nres, err := normalise(ctx, eng, work, cfg, initial, log, m.step)
	if err != nil {
		return nil, err
	}
	res.Normalisation = nres
	res.Rough = nres.Rough
	m.step(StepLinear)

	if cfg.EnableLimiter {
		var gain float64
		normalised, gain, err = Limit(normalised, cfg.Limiter, cfg.EffectivePeak())
		if err != nil {
			return nil, fmt.Errorf("limiting failed: %w", err)
		}
		res.LimiterGain = gain
		if gain < 1 {
			log.Info("limited peaks",
				zap.String("limiter", string(cfg.Limiter)),
				zap.Float64("gain_db", audio.LinearToDB(gain)))
		}
	}
	if !normalised.IsFinite() {
		return nil, ErrNonFinite
	}

	// Verification is observational only.
	final, err := eng.Verify(ctx, normalised)
	if err != nil && ctx.Err() == nil {
		log.Warn("verification failed, measuring in-process", zap.Error(err))
		final, err = InternalMeter{}.Measure(ctx, normalised)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("verification failed", zap.Error(err))
	} else {
		res.Final = final
		log.Info("final loudness",
			zap.Float64("integrated_lufs", final.Integrated),
			zap.Float64("lra_lu", final.Range),
			zap.Float64("true_peak_dbtp", final.TruePeak),
			zap.Float64("threshold_lufs", final.Threshold))
	}
	m.step(StepVerified)

	m.step(StepMastered)
	return normalised, nil
}
