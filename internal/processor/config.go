// Package processor masters audio: resampling, adaptive compression,
// two-pass loudness normalisation and peak limiting.
package processor

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

// Mastering limits and defaults.
const (
	// DisabledLoudness turns normalisation (and with it the whole mastering chain) off.
	DisabledLoudness = -70.0

	MinTargetLUFS     = -70.0
	MaxTargetLUFS     = 0.0
	DefaultTargetLUFS = -14.1

	MinPeakDB     = -6.0
	MaxPeakDB     = 0.0
	DefaultPeakDB = -1.1
	// fallbackPeakDB replaces a non-negative ceiling, which loudnorm cannot honour.
	fallbackPeakDB = -1.0

	MinCustomRatio     = 1.0
	MaxCustomRatio     = 20.0
	DefaultCustomRatio = 2.0

	DefaultSampleRate = 48000
)

// SupportedSampleRates lists the output rates a save may request.
var SupportedSampleRates = []int{44100, 48000, 96000, 192000}

// ErrInvalidConfig is wrapped by every MasteringConfig validation failure.
var ErrInvalidConfig = errors.New("invalid mastering config")

// CompressionMode selects a compressor preset.
type CompressionMode string

const (
	ModeFast     CompressionMode = "fast"
	ModeBalanced CompressionMode = "balanced"
	ModeSlow     CompressionMode = "slow"
)

// ParseCompressionMode accepts a preset name in any letter case.
func ParseCompressionMode(s string) (CompressionMode, error) {
	m := CompressionMode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := compressorPresets[m]; !ok {
		return "", fmt.Errorf("%w: unknown compression mode %q (want fast, balanced or slow)", ErrInvalidConfig, s)
	}
	return m, nil
}

// CompressorPreset holds the fixed parameters of a compression mode.
// BaseOffset feeds the adaptive threshold; the rest drive the gain computer.
type CompressorPreset struct {
	Mode       CompressionMode
	BaseOffset float64 // dB added to the scaled loudness gap
	Ratio      float64
	AttackMs   float64
	ReleaseMs  float64
	KneeDB     float64
	MakeupDB   float64
}

var compressorPresets = map[CompressionMode]CompressorPreset{
	ModeFast:     {Mode: ModeFast, BaseOffset: 6.0, Ratio: 3.0, AttackMs: 10, ReleaseMs: 50, KneeDB: 2, MakeupDB: 2},
	ModeBalanced: {Mode: ModeBalanced, BaseOffset: 4.0, Ratio: 2.0, AttackMs: 20, ReleaseMs: 250, KneeDB: 2.8, MakeupDB: 0},
	ModeSlow:     {Mode: ModeSlow, BaseOffset: 2.0, Ratio: 1.5, AttackMs: 50, ReleaseMs: 500, KneeDB: 4, MakeupDB: 3},
}

// Preset returns the preset for a mode. Unknown modes resolve to balanced.
func Preset(mode CompressionMode) CompressorPreset {
	if p, ok := compressorPresets[mode]; ok {
		return p
	}
	return compressorPresets[ModeBalanced]
}

// LimiterMode selects how the final peak ceiling is enforced.
type LimiterMode string

const (
	// LimiterTruePeak measures the 8x oversampled peak.
	LimiterTruePeak LimiterMode = "true-peak"
	// LimiterSimple measures the sample peak.
	LimiterSimple LimiterMode = "simple"
)

// ParseLimiterMode accepts "true-peak"/"truepeak"/"tp" and "simple"/"sample".
func ParseLimiterMode(s string) (LimiterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true-peak", "truepeak", "tp", "":
		return LimiterTruePeak, nil
	case "simple", "sample":
		return LimiterSimple, nil
	}
	return "", fmt.Errorf("%w: unknown limiter %q (want true-peak or simple)", ErrInvalidConfig, s)
}

// MasteringConfig is built once per invocation and read-only afterwards.
type MasteringConfig struct {
	TargetLUFS float64 // -70 disables normalisation
	PeakDB     float64 // ceiling in dBTP; values >= 0 become -1.0

	EnableLimiter bool
	Limiter       LimiterMode

	EnableCompression bool
	Mode              CompressionMode
	UseCustomRatio    bool
	CustomRatio       float64

	SampleRate int
	Format     audio.Format
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() MasteringConfig {
	return MasteringConfig{
		TargetLUFS:        DefaultTargetLUFS,
		PeakDB:            DefaultPeakDB,
		EnableLimiter:     true,
		Limiter:           LimiterTruePeak,
		EnableCompression: false,
		Mode:              ModeBalanced,
		UseCustomRatio:    false,
		CustomRatio:       DefaultCustomRatio,
		SampleRate:        DefaultSampleRate,
		Format:            audio.FormatFloat32,
	}
}

// Validate checks every field against its documented range.
func (c MasteringConfig) Validate() error {
	if math.IsNaN(c.TargetLUFS) || c.TargetLUFS < MinTargetLUFS || c.TargetLUFS > MaxTargetLUFS {
		return fmt.Errorf("%w: target loudness %.1f LUFS outside [%.0f, %.0f]", ErrInvalidConfig, c.TargetLUFS, MinTargetLUFS, MaxTargetLUFS)
	}
	if math.IsNaN(c.PeakDB) || c.PeakDB < MinPeakDB || c.PeakDB > MaxPeakDB {
		return fmt.Errorf("%w: peak ceiling %.1f dB outside [%.0f, %.0f]", ErrInvalidConfig, c.PeakDB, MinPeakDB, MaxPeakDB)
	}
	if c.UseCustomRatio && (math.IsNaN(c.CustomRatio) || c.CustomRatio < MinCustomRatio || c.CustomRatio > MaxCustomRatio) {
		return fmt.Errorf("%w: custom ratio %.2f outside [%.0f, %.0f]", ErrInvalidConfig, c.CustomRatio, MinCustomRatio, MaxCustomRatio)
	}
	if _, ok := compressorPresets[c.Mode]; !ok {
		return fmt.Errorf("%w: unknown compression mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Limiter != LimiterTruePeak && c.Limiter != LimiterSimple {
		return fmt.Errorf("%w: unknown limiter %q", ErrInvalidConfig, c.Limiter)
	}
	if !slices.Contains(SupportedSampleRates, c.SampleRate) {
		return fmt.Errorf("%w: sample rate %d not one of %v", ErrInvalidConfig, c.SampleRate, SupportedSampleRates)
	}
	if _, err := audio.ParseFormat(string(c.Format)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// NormalisationEnabled reports whether the target loudness asks for mastering at all.
func (c MasteringConfig) NormalisationEnabled() bool {
	return c.TargetLUFS > DisabledLoudness
}

// EffectivePeak is the ceiling actually enforced.
func (c MasteringConfig) EffectivePeak() float64 {
	if c.PeakDB >= 0 {
		return fallbackPeakDB
	}
	return c.PeakDB
}

// LoudnormTP is the true-peak parameter handed to loudnorm: the ceiling when
// the limiter is on, otherwise 0 dBTP.
func (c MasteringConfig) LoudnormTP() float64 {
	if c.EnableLimiter {
		return c.EffectivePeak()
	}
	return 0
}

// Compressor resolves the preset, applying the custom ratio when requested.
func (c MasteringConfig) Compressor() CompressorPreset {
	p := Preset(c.Mode)
	if c.UseCustomRatio {
		p.Ratio = c.CustomRatio
	}
	return p
}
