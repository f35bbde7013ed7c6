package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/processor"
)

// Extension of every artifact written by SaveAudio.
const Extension = ".wav"

// Defaults offered for the naming inputs.
const (
	DefaultFilenamePrefix = "ComfyUI_%Y%-%m%-%d%_%H%-%M%-%S%"
	DefaultSubfolder      = "Audio"
)

// OutputDirectory resolves the root that saved files and relative paths hang off.
type OutputDirectory interface {
	OutputDir() (string, error)
}

// StaticOutput is an OutputDirectory fixed to one path. The directory and
// its parents are created on first use.
type StaticOutput string

// OutputDir implements OutputDirectory.
func (s StaticOutput) OutputDir() (string, error) {
	if s == "" {
		return "", errors.New("output directory is not configured")
	}
	if err := os.MkdirAll(string(s), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return string(s), nil
}

// SaveRequest is one invocation of the save node.
type SaveRequest struct {
	Waveform       *audio.Waveform
	FilenamePrefix string
	Subfolder      string
	Config         processor.MasteringConfig
	Output         OutputDirectory
	Progress       processor.ProgressFunc
}

// SaveResult is what the node hands back to its caller.
type SaveResult struct {
	// Waveform is the mastered (or fallback) audio clamped to [-1, 1].
	Waveform *audio.Waveform
	// RelativePath is relative to the output directory, with forward slashes.
	RelativePath string
	// Path is the absolute location of the written file.
	Path string
	// Mastering is nil when normalisation was disabled.
	Mastering *processor.MasteringResult
}

// Saver carries the collaborators shared by every save.
type Saver struct {
	Runner *ffmpeg.Runner
	Logger *zap.Logger
	Clock  Clock

	// NewEngine overrides the ffmpeg loudness engine used for mastering.
	NewEngine func(cfg processor.MasteringConfig) (processor.Engine, error)
}

// SaveAudio saves with ffmpeg from $PATH, the local clock and no logging.
func SaveAudio(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	return (&Saver{}).Save(ctx, req)
}

func (s *Saver) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Saver) runner() *ffmpeg.Runner {
	if s.Runner == nil {
		s.Runner = ffmpeg.NewRunner(s.logger())
	}
	return s.Runner
}

func (s *Saver) now() Clock {
	if s.Clock == nil {
		return LocalClock
	}
	return s.Clock
}

// Save resolves the output name, masters the waveform and writes it.
// Mastering failures fall back to the resampled input and still produce a
// file; only naming, resampling and writing errors are returned.
func (s *Saver) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := req.Waveform.Validate(); err != nil {
		return nil, err
	}
	if req.Output == nil {
		return nil, errors.New("no output directory resolver")
	}
	progress := func(step int) {
		if req.Progress != nil {
			req.Progress(step, processor.TotalSteps)
		}
	}
	log := s.logger()

	root, err := req.Output.OutputDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	now := s.now()()
	prefix := ResolvePrefix(req.FilenamePrefix, now)
	subfolder := ResolveSubfolder(req.Subfolder, now)

	dir := root
	if subfolder != "" {
		dir = filepath.Join(root, subfolder)
	}
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	w, err := processor.Resample(req.Waveform, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("resample failed: %w", err)
	}
	progress(processor.StepResampled)

	name, err := UniqueFilename(dir, prefix, Extension)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)
	progress(processor.StepFilename)

	result := &SaveResult{Path: path}
	if cfg.NormalisationEnabled() {
		m := &processor.Mastering{
			Config:    cfg,
			Runner:    s.runner(),
			Logger:    log,
			Progress:  req.Progress,
			NewEngine: s.NewEngine,
		}
		result.Mastering = m.Process(ctx, w)
		w = result.Mastering.Waveform
	} else {
		log.Info("normalisation disabled, saving without mastering",
			zap.Float64("target_lufs", cfg.TargetLUFS))
	}

	if err := s.write(ctx, path, w, cfg.Format); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, fmt.Errorf("failed to compute relative path: %w", err)
	}
	result.RelativePath = filepath.ToSlash(rel)
	result.Waveform = w.Clamp(-1, 1)

	log.Info("saved audio",
		zap.String("path", path),
		zap.Int("sample_rate", w.SampleRate),
		zap.Int("channels", w.NumChannels()),
		zap.String("format", string(cfg.Format)))
	progress(processor.StepDone)
	return result, nil
}

// write persists w in the requested format. 32-bit float goes through
// ffmpeg; without ffmpeg it degrades to 32-bit integer PCM.
func (s *Saver) write(ctx context.Context, path string, w *audio.Waveform, format audio.Format) error {
	if format != audio.FormatFloat32 && format != "" {
		if err := audio.WriteWAV(path, w, format.BitDepth()); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}

	err := s.encodeFloat(ctx, path, w)
	if errors.Is(err, ffmpeg.ErrNotFound) {
		s.logger().Warn("ffmpeg unavailable, writing 32-bit integer PCM instead of float", zap.Error(err))
		if err := audio.WriteWAV(path, w, 32); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

func (s *Saver) encodeFloat(ctx context.Context, path string, w *audio.Waveform) error {
	r := s.runner()
	if _, err := r.Executable(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "xaudiosave-encode-*.f32")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	scratch := tmp.Name()
	tmp.Close()
	defer func() { _ = os.Remove(scratch) }()

	if err := audio.WriteF32LE(scratch, w); err != nil {
		return err
	}
	raw := ffmpeg.RawFormat{SampleRate: w.SampleRate, Channels: w.NumChannels()}
	return r.EncodeWAV(ctx, scratch, raw, path, audio.FormatFloat32.Codec())
}
