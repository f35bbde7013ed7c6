package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// stderrTail bounds how much ffmpeg output an ExitError carries.
const stderrTail = 2048

// ExitError reports a failed ffmpeg invocation.
type ExitError struct {
	Op       Op
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	tail := strings.TrimSpace(e.Stderr)
	if len(tail) > stderrTail {
		tail = "..." + tail[len(tail)-stderrTail:]
	}
	if tail == "" {
		return fmt.Sprintf("ffmpeg %s failed (exit %d): %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s failed (exit %d): %v: %s", e.Op, e.ExitCode, e.Err, tail)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner executes Requests as blocking subprocesses.
type Runner struct {
	// Path to the ffmpeg executable; empty means Locate().
	Path   string
	Logger *zap.Logger
}

// NewRunner returns a runner that locates ffmpeg lazily.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Logger: logger}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Executable resolves the ffmpeg path this runner will use.
func (r *Runner) Executable() (string, error) {
	if r.Path != "" {
		return lookup(r.Path)
	}
	return Locate()
}

// Run executes the request and returns ffmpeg's stderr.
func (r *Runner) Run(ctx context.Context, req Request) (string, error) {
	args, err := req.Args()
	if err != nil {
		return "", err
	}
	bin, err := r.Executable()
	if err != nil {
		return "", err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	r.logger().Debug("ffmpeg start", zap.Stringer("op", req.Op), zap.Strings("args", args))
	runErr := cmd.Run()
	r.logger().Debug("ffmpeg done",
		zap.Stringer("op", req.Op),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(runErr))

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stderr.String(), fmt.Errorf("ffmpeg %s: %w", req.Op, ctxErr)
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return stderr.String(), &ExitError{Op: req.Op, ExitCode: code, Stderr: stderr.String(), Err: runErr}
	}
	return stderr.String(), nil
}

// AnalyzeLoudnorm runs a loudnorm analysis pass and parses its statistics.
func (r *Runner) AnalyzeLoudnorm(ctx context.Context, input string, raw *RawFormat, l Loudnorm) (*LoudnormStats, error) {
	l.Linear = false
	l.Measured = nil
	out, err := r.Run(ctx, Request{Op: OpAnalyzeLoudnorm, Input: input, InputRaw: raw, Loudnorm: &l})
	if err != nil {
		return nil, err
	}
	return ParseLoudnorm(out)
}

// EBUR128 runs the ebur128 meter and parses its summary.
func (r *Runner) EBUR128(ctx context.Context, input string, raw *RawFormat) (*Summary, error) {
	out, err := r.Run(ctx, Request{Op: OpEBUR128, Input: input, InputRaw: raw})
	if err != nil {
		return nil, err
	}
	return ParseEBUR128(out)
}

// Probe returns the sample rate and channel count of the first audio stream.
func (r *Runner) Probe(ctx context.Context, input string) (int, int, error) {
	out, err := r.Run(ctx, Request{Op: OpProbe, Input: input})
	if err != nil {
		return 0, 0, err
	}
	return ParseStreamInfo(out)
}

// DecodeToF32LE decodes any input into a raw float32 scratch file.
func (r *Runner) DecodeToF32LE(ctx context.Context, input, output string, sampleRate, channels int) error {
	_, err := r.Run(ctx, Request{
		Op:         OpConvert,
		Input:      input,
		Output:     output,
		OutputRaw:  true,
		SampleRate: sampleRate,
		Channels:   channels,
	})
	return err
}

// EncodeWAV converts a raw float32 scratch file into a WAV container with the given codec.
func (r *Runner) EncodeWAV(ctx context.Context, input string, raw RawFormat, output, codec string) error {
	_, err := r.Run(ctx, Request{
		Op:       OpConvert,
		Input:    input,
		InputRaw: &raw,
		Output:   output,
		Codec:    codec,
	})
	return err
}
