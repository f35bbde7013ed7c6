package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/ffmpeg"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/processor"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// noEnvFile points Load at a dotenv file that does not exist.
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvOutputDir, "")
	os.Unsetenv(EnvOutputDir)
	t.Setenv(ffmpeg.EnvPath, "")
	os.Unsetenv(ffmpeg.EnvPath)

	s, err := Load("", noEnvFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if s.Mastering != processor.DefaultConfig() {
		t.Errorf("mastering = %+v, want defaults", s.Mastering)
	}
	if s.OutputDir != DefaultOutputDir || s.Subfolder != "Audio" || s.FFmpegPath != "" {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "xaudiosave.toml", `
ffmpeg = "/opt/ffmpeg/bin/ffmpeg"

[output]
dir = "/srv/out"
subfolder = ""
prefix = "podcast_%Y%"
format = "s24"

[mastering]
target_lufs = -16.0
peak_db = -2.0
limiter_mode = "simple"
compress = true
mode = "Fast"
custom_ratio = 4.0
sample_rate = 44100

[log]
file = "run.log"
debug = true
`)
	s, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatal(err)
	}

	m := s.Mastering
	if m.TargetLUFS != -16 || m.PeakDB != -2 || m.SampleRate != 44100 {
		t.Errorf("levels = %+v", m)
	}
	if m.Limiter != processor.LimiterSimple || !m.EnableLimiter {
		t.Errorf("limiter = %q enabled=%v", m.Limiter, m.EnableLimiter)
	}
	if !m.EnableCompression || m.Mode != processor.ModeFast || !m.UseCustomRatio || m.CustomRatio != 4 {
		t.Errorf("compression = %+v", m)
	}
	if m.Format != audio.FormatPCM24 {
		t.Errorf("format = %q", m.Format)
	}
	if s.Subfolder != "" || s.Prefix != "podcast_%Y%" {
		t.Errorf("naming = %q / %q", s.Subfolder, s.Prefix)
	}
	if s.Log.File != "run.log" || !s.Log.Debug || s.Log.MaxSizeMB != 10 {
		t.Errorf("log = %+v", s.Log)
	}
	if s.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("ffmpeg = %q", s.FFmpegPath)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[mastering]\ntarget = -14\n"},
		{"out of range target", "[mastering]\ntarget_lufs = 3.0\n"},
		{"unknown mode", "[mastering]\nmode = \"medium\"\n"},
		{"unknown format", "[output]\nformat = \"mp3\"\n"},
		{"unsupported rate", "[mastering]\nsample_rate = 22050\n"},
		{"syntax error", "[mastering\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "bad.toml", tt.content), noEnvFile(t)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml"), noEnvFile(t)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing config error = %v, want ErrNotExist", err)
	}
}

func TestLoadEnvironment(t *testing.T) {
	envFile := writeFile(t, ".env", EnvOutputDir+"=/from/dotenv\n"+ffmpeg.EnvPath+"=/from/dotenv/ffmpeg\n")

	t.Setenv(ffmpeg.EnvPath, "")
	os.Unsetenv(ffmpeg.EnvPath)
	t.Setenv(EnvOutputDir, "/from/process")

	s, err := Load("", envFile)
	if err != nil {
		t.Fatal(err)
	}
	if s.OutputDir != "/from/process" {
		t.Errorf("OutputDir = %q, process environment should win", s.OutputDir)
	}
	if s.FFmpegPath != "/from/dotenv/ffmpeg" {
		t.Errorf("FFmpegPath = %q, want value from .env", s.FFmpegPath)
	}
}
