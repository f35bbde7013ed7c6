package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Format selects the sample encoding of a persisted WAV file.
type Format string

const (
	FormatFloat32 Format = "f32"
	FormatPCM24   Format = "s24"
	FormatPCM16   Format = "s16"
)

// ErrInvalidWAV is returned when a file is not a WAV that go-audio can decode.
var ErrInvalidWAV = errors.New("audio: invalid WAV file")

// ParseFormat accepts the CLI/config spellings of a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f32", "float", "float32", "pcm_f32le":
		return FormatFloat32, nil
	case "s24", "pcm24", "24", "pcm_s24le":
		return FormatPCM24, nil
	case "s16", "pcm16", "16", "pcm_s16le":
		return FormatPCM16, nil
	}
	return "", fmt.Errorf("audio: unknown output format %q", s)
}

// BitDepth returns the container bit depth for the format.
func (f Format) BitDepth() int {
	switch f {
	case FormatPCM16:
		return 16
	case FormatPCM24:
		return 24
	default:
		return 32
	}
}

// Codec returns the ffmpeg codec name for the format.
func (f Format) Codec() string {
	switch f {
	case FormatPCM16:
		return "pcm_s16le"
	case FormatPCM24:
		return "pcm_s24le"
	default:
		return "pcm_f32le"
	}
}

// ReadWAV decodes an integer PCM WAV file into a waveform scaled to [-1, 1).
func ReadWAV(path string) (*Waveform, *Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	// go-audio only decodes integer PCM; float WAVs go through ffmpeg.
	if dec.WavAudioFormat != 1 {
		return nil, nil, fmt.Errorf("%w: unsupported WAV format tag %d in %s", ErrInvalidWAV, dec.WavAudioFormat, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, nil, fmt.Errorf("%w: missing format chunk in %s", ErrInvalidWAV, path)
	}

	depth := int(buf.SourceBitDepth)
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	scale := math.Ldexp(1, depth-1)
	if depth == 8 {
		// 8-bit WAV is unsigned; go-audio hands back the raw byte values.
		for i, v := range buf.Data {
			buf.Data[i] = v - 128
		}
	}

	channels := buf.Format.NumChannels
	data := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = float64(v) / scale
	}
	w := Deinterleave(data, channels, buf.Format.SampleRate)

	meta := &Metadata{
		Duration:   w.Duration(),
		SampleRate: w.SampleRate,
		Channels:   channels,
		SampleFmt:  fmt.Sprintf("s%d", depth),
		BitDepth:   depth,
	}
	return w, meta, nil
}

// WriteWAV encodes the waveform as integer PCM at the given bit depth (16, 24 or 32).
// Samples are clipped to the representable range.
func WriteWAV(path string, w *Waveform, bitDepth int) error {
	if err := w.Validate(); err != nil {
		return err
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("audio: unsupported PCM bit depth %d", bitDepth)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output file creation error: %w", err)
	}

	maxInt := math.Ldexp(1, bitDepth-1) - 1
	minInt := -math.Ldexp(1, bitDepth-1)
	interleaved := w.Interleave()
	data := make([]int, len(interleaved))
	for i, v := range interleaved {
		s := math.Round(v * (maxInt + 1))
		if math.IsNaN(s) {
			s = 0
		}
		data[i] = int(math.Max(minInt, math.Min(maxInt, s)))
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: w.NumChannels(),
			SampleRate:  w.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	enc := wav.NewEncoder(out, w.SampleRate, bitDepth, w.NumChannels(), 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		out.Close()
		return fmt.Errorf("data writing error: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalise WAV header: %w", err)
	}
	return out.Close()
}
