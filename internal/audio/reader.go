package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata contains audio file metadata
type Metadata struct {
	Duration   float64 // seconds
	SampleRate int
	Channels   int
	SampleFmt  string
	BitDepth   int
}

// Decoder converts any audio file into raw float32 scratch data.
// The ffmpeg runner satisfies it; it is consulted only for inputs go-audio cannot read.
type Decoder interface {
	DecodeToF32LE(ctx context.Context, inputPath, outputPath string, sampleRate, channels int) error
	Probe(ctx context.Context, inputPath string) (sampleRate, channels int, err error)
}

// IsAudioFile reports whether the path carries an extension worth decoding.
func IsAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".flac", ".mp3", ".ogg", ".opus", ".m4a", ".aac", ".aif", ".aiff", ".wma":
		return true
	}
	return false
}

// OpenAudioFile loads an audio file into memory.
// Integer PCM WAV is decoded natively; everything else is handed to dec.
func OpenAudioFile(ctx context.Context, filename string, dec Decoder) (*Waveform, *Metadata, error) {
	if strings.EqualFold(filepath.Ext(filename), ".wav") {
		w, meta, err := ReadWAV(filename)
		if err == nil {
			return w, meta, nil
		}
		if !errors.Is(err, ErrInvalidWAV) || dec == nil {
			return nil, nil, err
		}
	}
	if dec == nil {
		return nil, nil, fmt.Errorf("no decoder available for %s", filename)
	}

	rate, channels, err := dec.Probe(ctx, filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to probe %s: %w", filename, err)
	}

	tmp, err := os.CreateTemp("", "xaudiosave-decode-*.f32")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := dec.DecodeToF32LE(ctx, filename, tmpPath, rate, channels); err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	w, err := ReadF32LE(tmpPath, channels, rate)
	if err != nil {
		return nil, nil, err
	}

	meta := &Metadata{
		Duration:   w.Duration(),
		SampleRate: rate,
		Channels:   channels,
		SampleFmt:  "flt",
		BitDepth:   32,
	}
	return w, meta, nil
}
