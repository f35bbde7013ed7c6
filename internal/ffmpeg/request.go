package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op identifies what a Request asks ffmpeg to do.
type Op int

const (
	// OpConvert decodes the input and writes it to Output, optionally resampled.
	OpConvert Op = iota
	// OpLoudnorm applies a loudnorm pass and writes the result to Output.
	OpLoudnorm
	// OpAnalyzeLoudnorm runs loudnorm into a null sink and prints its JSON statistics.
	OpAnalyzeLoudnorm
	// OpEBUR128 runs the ebur128 meter with true-peak detection into a null sink.
	OpEBUR128
	// OpProbe reads stream parameters without decoding any audio.
	OpProbe
)

func (o Op) String() string {
	switch o {
	case OpConvert:
		return "convert"
	case OpLoudnorm:
		return "loudnorm"
	case OpAnalyzeLoudnorm:
		return "analyze"
	case OpEBUR128:
		return "ebur128"
	case OpProbe:
		return "probe"
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// writes reports whether the op produces an output file.
func (o Op) writes() bool {
	return o == OpConvert || o == OpLoudnorm
}

// RawFormat describes a headerless interleaved float32 stream.
type RawFormat struct {
	SampleRate int
	Channels   int
}

// Measured carries loudnorm statistics from a previous analysis into a linear pass.
type Measured struct {
	I      float64
	LRA    float64
	TP     float64
	Thresh float64
	Offset float64
}

// Loudnorm parameterises the loudnorm filter.
type Loudnorm struct {
	IntegratedLUFS float64
	TruePeak       float64
	LRA            float64 // 0 keeps ffmpeg's default
	DualMono       bool
	Linear         bool
	Measured       *Measured
}

// Request is a structured ffmpeg invocation. Args is the single translation
// point into ffmpeg argument and filter syntax.
type Request struct {
	Op         Op
	Input      string
	InputRaw   *RawFormat // nil when Input carries its own container
	Output     string
	OutputRaw  bool   // write f32le instead of a WAV container
	Codec      string // WAV sample codec, defaults to pcm_f32le
	SampleRate int    // output rate, 0 keeps the input rate
	Channels   int    // output channel count, 0 keeps the input layout
	Loudnorm   *Loudnorm
}

var (
	errNoInput    = errors.New("ffmpeg: request has no input")
	errNoOutput   = errors.New("ffmpeg: request has no output")
	errNoLoudnorm = errors.New("ffmpeg: loudnorm request without parameters")
	errNoMeasured = errors.New("ffmpeg: linear loudnorm requires measured values")
)

// Args translates the request into ffmpeg arguments (without the executable).
func (r Request) Args() ([]string, error) {
	if r.Input == "" {
		return nil, errNoInput
	}
	if r.Op.writes() && r.Output == "" {
		return nil, errNoOutput
	}

	args := []string{"-hide_banner", "-nostdin", "-nostats"}
	switch r.Op {
	case OpConvert, OpLoudnorm:
		args = append(args, "-loglevel", "error", "-y")
	default:
		// loudnorm JSON and the ebur128 summary are printed at info level.
		args = append(args, "-loglevel", "info")
	}

	if r.InputRaw != nil {
		args = append(args,
			"-f", "f32le",
			"-ar", strconv.Itoa(r.InputRaw.SampleRate),
			"-ac", strconv.Itoa(r.InputRaw.Channels),
		)
	}
	args = append(args, "-i", r.Input)

	switch r.Op {
	case OpConvert:
	case OpLoudnorm, OpAnalyzeLoudnorm:
		filter, err := loudnormFilter(r.Loudnorm, r.Op == OpAnalyzeLoudnorm)
		if err != nil {
			return nil, err
		}
		args = append(args, "-af", filter)
	case OpEBUR128:
		args = append(args, "-af", "ebur128=peak=true:framelog=verbose")
	case OpProbe:
		return append(args, "-t", "0", "-f", "null", "-"), nil
	default:
		return nil, fmt.Errorf("ffmpeg: unknown op %v", r.Op)
	}

	if !r.Op.writes() {
		return append(args, "-f", "null", "-"), nil
	}

	if r.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(r.SampleRate))
	}
	if r.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(r.Channels))
	}
	if r.OutputRaw {
		args = append(args, "-c:a", "pcm_f32le", "-f", "f32le")
	} else {
		codec := r.Codec
		if codec == "" {
			codec = "pcm_f32le"
		}
		args = append(args, "-c:a", codec, "-f", "wav")
	}
	return append(args, r.Output), nil
}

func loudnormFilter(l *Loudnorm, printJSON bool) (string, error) {
	if l == nil {
		return "", errNoLoudnorm
	}
	if l.Linear && l.Measured == nil {
		return "", errNoMeasured
	}

	opts := []string{
		"I=" + formatDB(l.IntegratedLUFS),
		"TP=" + formatDB(l.TruePeak),
	}
	if l.LRA > 0 {
		opts = append(opts, "LRA="+formatDB(l.LRA))
	}
	if l.DualMono {
		opts = append(opts, "dual_mono=true")
	}
	if l.Linear {
		m := l.Measured
		opts = append(opts,
			"linear=true",
			"measured_I="+formatDB(m.I),
			"measured_LRA="+formatDB(m.LRA),
			"measured_TP="+formatDB(m.TP),
			"measured_thresh="+formatDB(m.Thresh),
			"offset="+formatDB(m.Offset),
		)
	}
	if printJSON {
		opts = append(opts, "print_format=json")
	}
	return "loudnorm=" + strings.Join(opts, ":"), nil
}

func formatDB(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
