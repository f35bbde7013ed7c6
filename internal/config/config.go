// Package config loads xaudiosave settings from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/node"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/processor"
)

// EnvOutputDir overrides the output directory.
const EnvOutputDir = "XAUDIOSAVE_OUTPUT_DIR"

// DefaultOutputDir is used when neither the file nor the environment name one.
const DefaultOutputDir = "output"

// File mirrors the TOML layout. Pointer fields distinguish "absent" from zero.
//
//	[output]
//	dir = "output"
//	subfolder = "Audio"
//	prefix = "ComfyUI_%Y%-%m%-%d%_%H%-%M%-%S%"
//	format = "f32"
//
//	[mastering]
//	target_lufs = -14.1
//	peak_db = -1.1
//	limiter = true
//	limiter_mode = "true-peak"
//	compress = false
//	mode = "balanced"
//	custom_ratio = 2.0
//	sample_rate = 48000
//
//	[log]
//	file = "xaudiosave.log"
//	max_size_mb = 10
//	max_backups = 3
//	debug = false
type File struct {
	Output    OutputSection    `toml:"output"`
	Mastering MasteringSection `toml:"mastering"`
	Log       LogSection       `toml:"log"`
	FFmpeg    string           `toml:"ffmpeg"`
}

type OutputSection struct {
	Dir       string  `toml:"dir"`
	Subfolder *string `toml:"subfolder"`
	Prefix    *string `toml:"prefix"`
	Format    string  `toml:"format"`
}

type MasteringSection struct {
	TargetLUFS  *float64 `toml:"target_lufs"`
	PeakDB      *float64 `toml:"peak_db"`
	Limiter     *bool    `toml:"limiter"`
	LimiterMode string   `toml:"limiter_mode"`
	Compress    *bool    `toml:"compress"`
	Mode        string   `toml:"mode"`
	CustomRatio *float64 `toml:"custom_ratio"`
	SampleRate  int      `toml:"sample_rate"`
}

// LogSection configures the rotating log file. An empty File disables it.
type LogSection struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Debug      bool   `toml:"debug"`
}

// Settings is the resolved configuration handed to the CLI.
type Settings struct {
	Mastering processor.MasteringConfig

	OutputDir  string
	Subfolder  string
	Prefix     string
	FFmpegPath string // empty means $PATH

	Log LogSection
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Settings {
	return &Settings{
		Mastering: processor.DefaultConfig(),
		OutputDir: DefaultOutputDir,
		Subfolder: node.DefaultSubfolder,
		Prefix:    node.DefaultFilenamePrefix,
		Log:       LogSection{MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Load builds Settings from defaults, then the TOML file at path (if any),
// then the environment. Variables from envFiles (default ".env") fill in only
// what the process environment does not already set. A missing .env is fine;
// a missing config file named explicitly is not.
func Load(path string, envFiles ...string) (*Settings, error) {
	s := Defaults()

	if path != "" {
		var f File
		md, err := toml.DecodeFile(path, &f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
		if err := s.apply(f); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	env, err := readEnv(envFiles)
	if err != nil {
		return nil, err
	}
	if v := env(EnvOutputDir); v != "" {
		s.OutputDir = v
	}
	if v := env(ffmpeg.EnvPath); v != "" {
		s.FFmpegPath = v
	}

	if err := s.Mastering.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) apply(f File) error {
	if f.Output.Dir != "" {
		s.OutputDir = f.Output.Dir
	}
	if f.Output.Subfolder != nil {
		s.Subfolder = *f.Output.Subfolder
	}
	if f.Output.Prefix != nil {
		s.Prefix = *f.Output.Prefix
	}
	if f.FFmpeg != "" {
		s.FFmpegPath = f.FFmpeg
	}
	if f.Log != (LogSection{}) {
		s.Log = f.Log
		if s.Log.MaxSizeMB == 0 {
			s.Log.MaxSizeMB = 10
		}
	}

	m := &s.Mastering
	if f.Output.Format != "" {
		format, err := audio.ParseFormat(f.Output.Format)
		if err != nil {
			return err
		}
		m.Format = format
	}

	ms := f.Mastering
	if ms.TargetLUFS != nil {
		m.TargetLUFS = *ms.TargetLUFS
	}
	if ms.PeakDB != nil {
		m.PeakDB = *ms.PeakDB
	}
	if ms.Limiter != nil {
		m.EnableLimiter = *ms.Limiter
	}
	if ms.LimiterMode != "" {
		mode, err := processor.ParseLimiterMode(ms.LimiterMode)
		if err != nil {
			return err
		}
		m.Limiter = mode
	}
	if ms.Compress != nil {
		m.EnableCompression = *ms.Compress
	}
	if ms.Mode != "" {
		mode, err := processor.ParseCompressionMode(ms.Mode)
		if err != nil {
			return err
		}
		m.Mode = mode
	}
	if ms.CustomRatio != nil {
		m.UseCustomRatio = true
		m.CustomRatio = *ms.CustomRatio
	}
	if ms.SampleRate != 0 {
		m.SampleRate = ms.SampleRate
	}
	return nil
}

// readEnv returns a lookup that prefers the process environment over the
// dotenv files.
func readEnv(files []string) (func(string) string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	fromFiles := map[string]string{}
	for _, name := range files {
		vars, err := godotenv.Read(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for k, v := range vars {
			if _, ok := fromFiles[k]; !ok {
				fromFiles[k] = v
			}
		}
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fromFiles[key]
	}, nil
}
