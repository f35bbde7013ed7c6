package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
)

// LoudnormPass describes one loudnorm application.
type LoudnormPass struct {
	TargetLUFS float64
	TruePeak   float64
	SampleRate int
	DualMono   bool
	// Linear applies a single gain computed from Measured.
	Linear   bool
	Measured *LoudnessStats
}

// Engine runs the loudness stages that need ffmpeg's loudnorm and ebur128.
// An Engine belongs to one invocation and must be closed.
type Engine interface {
	Meter
	// Normalize applies loudnorm and returns the result at pass.SampleRate.
	Normalize(ctx context.Context, w *audio.Waveform, pass LoudnormPass) (*audio.Waveform, error)
	// Verify measures with ebur128 (true peak enabled).
	Verify(ctx context.Context, w *audio.Waveform) (LoudnessStats, error)
	Close() error
}

// FFmpegEngine exchanges raw float32 scratch files with an ffmpeg subprocess.
// All scratch files live in one temporary directory removed by Close.
type FFmpegEngine struct {
	runner *ffmpeg.Runner
	dir    string
	logger *zap.Logger

	// Analysis parameters; loudnorm needs a target even when only measuring.
	target   float64
	truePeak float64
}

// NewFFmpegEngine locates ffmpeg and creates the scratch directory.
func NewFFmpegEngine(runner *ffmpeg.Runner, cfg MasteringConfig, logger *zap.Logger) (*FFmpegEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := runner.Executable(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "xaudiosave-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &FFmpegEngine{
		runner:   runner,
		dir:      dir,
		logger:   logger,
		target:   cfg.TargetLUFS,
		truePeak: cfg.LoudnormTP(),
	}, nil
}

// Close removes the scratch directory and everything in it.
func (e *FFmpegEngine) Close() error {
	return os.RemoveAll(e.dir)
}

func (e *FFmpegEngine) scratchPath() string {
	return filepath.Join(e.dir, uuid.NewString()+".f32")
}

// stage writes w to a new scratch file. The returned func removes it.
func (e *FFmpegEngine) stage(w *audio.Waveform) (string, *ffmpeg.RawFormat, func(), error) {
	path := e.scratchPath()
	if err := audio.WriteF32LE(path, w); err != nil {
		return "", nil, nil, err
	}
	raw := &ffmpeg.RawFormat{SampleRate: w.SampleRate, Channels: w.NumChannels()}
	return path, raw, func() { os.Remove(path) }, nil
}

// Measure runs a loudnorm analysis pass and returns its input_* statistics.
func (e *FFmpegEngine) Measure(ctx context.Context, w *audio.Waveform) (LoudnessStats, error) {
	in, raw, cleanup, err := e.stage(w)
	if err != nil {
		return LoudnessStats{}, err
	}
	defer cleanup()

	stats, err := e.runner.AnalyzeLoudnorm(ctx, in, raw, ffmpeg.Loudnorm{
		IntegratedLUFS: e.target,
		TruePeak:       e.truePeak,
	})
	if err != nil {
		return LoudnessStats{}, err
	}
	m, err := stats.Measured()
	if err != nil {
		return LoudnessStats{}, err
	}
	e.logger.Debug("loudnorm analysis",
		zap.String("input_i", stats.InputI),
		zap.String("input_lra", stats.InputLRA),
		zap.String("input_tp", stats.InputTP),
		zap.String("input_thresh", stats.InputThresh))
	return LoudnessStats{
		Integrated:   m.I,
		Range:        m.LRA,
		TruePeak:     m.TP,
		Threshold:    m.Thresh,
		TargetOffset: m.Offset,
	}, nil
}

// Normalize runs one loudnorm pass and reads the result back.
func (e *FFmpegEngine) Normalize(ctx context.Context, w *audio.Waveform, pass LoudnormPass) (*audio.Waveform, error) {
	in, raw, cleanup, err := e.stage(w)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rate := pass.SampleRate
	if rate <= 0 {
		rate = w.SampleRate
	}
	ln := &ffmpeg.Loudnorm{
		IntegratedLUFS: pass.TargetLUFS,
		TruePeak:       pass.TruePeak,
		DualMono:       pass.DualMono,
		Linear:         pass.Linear,
	}
	if pass.Linear && pass.Measured != nil {
		ln.Measured = &ffmpeg.Measured{
			I:      pass.Measured.Integrated,
			LRA:    pass.Measured.Range,
			TP:     pass.Measured.TruePeak,
			Thresh: pass.Measured.Threshold,
			Offset: pass.Measured.TargetOffset,
		}
	}

	out := e.scratchPath()
	defer os.Remove(out)
	_, err = e.runner.Run(ctx, ffmpeg.Request{
		Op:         ffmpeg.OpLoudnorm,
		Input:      in,
		InputRaw:   raw,
		Output:     out,
		OutputRaw:  true,
		SampleRate: rate,
		Loudnorm:   ln,
	})
	if err != nil {
		return nil, err
	}
	return audio.ReadF32LE(out, w.NumChannels(), rate)
}

// Verify runs ebur128 with true-peak detection. When ffmpeg prints no
// summary the in-process meter measures instead.
func (e *FFmpegEngine) Verify(ctx context.Context, w *audio.Waveform) (LoudnessStats, error) {
	in, raw, cleanup, err := e.stage(w)
	if err != nil {
		return LoudnessStats{}, err
	}
	defer cleanup()

	s, err := e.runner.EBUR128(ctx, in, raw)
	if errors.Is(err, ffmpeg.ErrNoMeasurement) {
		e.logger.Warn("no ebur128 summary, measuring in-process", zap.Error(err))
		return InternalMeter{}.Measure(ctx, w)
	}
	if err != nil {
		return LoudnessStats{}, err
	}
	stats := LoudnessStats{
		Integrated: s.IntegratedLUFS,
		Range:      s.LRA,
		Threshold:  s.ThresholdLUFS,
	}
	if s.HasTruePeak {
		stats.TruePeak = s.TruePeakDBFS
	}
	return stats, nil
}
