package logging

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/processor"
)

func masteredResult() *processor.MasteringResult {
	cfg := processor.DefaultConfig()
	preset := cfg.Compressor()
	return &processor.MasteringResult{
		Initial: processor.LoudnessStats{Integrated: -22.4, Range: 6.1, TruePeak: -3.2, Threshold: -32.4},
		Rough:   processor.LoudnessStats{Integrated: -14.3, Range: 5.8, TruePeak: -1.4, Threshold: -24.3},
		Final:   processor.LoudnessStats{Integrated: -14.1, Range: 5.8, TruePeak: -1.2, Threshold: -24.1},
		Normalisation: &processor.NormalisationResult{
			LinearPossible:  true,
			MaxLinearTarget: -12.0,
		},
		Compression: &processor.CompressionInfo{Preset: preset, DynamicOffset: 1.61, ThresholdDB: -20.79},
		LimiterGain: 0.95,
	}
}

func TestWriteReportMastered(t *testing.T) {
	cfg := processor.DefaultConfig()
	cfg.EnableCompression = true
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	writeReport(&buf, ReportData{
		InputPath:    "/in/voice.flac",
		OutputPath:   "/out/Audio/take.wav",
		StartTime:    start,
		EndTime:      start.Add(2 * time.Second),
		SampleRate:   48000,
		Channels:     2,
		DurationSecs: 60,
		Config:       cfg,
		Result:       masteredResult(),
	})
	out := buf.String()

	for _, want := range []string{
		"File: voice.flac",
		"Output: take.wav",
		"48000 Hz stereo, 32-bit float",
		"Status: MASTERED",
		"(30x real-time)",
		"Diagnostic: Compressor",
		"Threshold:      -20.79 dB",
		"Diagnostic: Loudnorm",
		"Linear pass: single gain",
		"Diagnostic: Limiter",
		"Gain:     -0.45 dB",
		"-22.4",
		"-14.1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestWriteReportFallback(t *testing.T) {
	cfg := processor.DefaultConfig()
	res := &processor.MasteringResult{
		Fallback:    true,
		Err:         errors.New("ffmpeg: executable not found"),
		LimiterGain: 1,
	}

	var buf bytes.Buffer
	writeReport(&buf, ReportData{OutputPath: "x.wav", Config: cfg, Result: res})
	out := buf.String()

	if !strings.Contains(out, "Status: FALLBACK") || !strings.Contains(out, "executable not found") {
		t.Errorf("fallback not reported:\n%s", out)
	}
	if strings.Contains(out, "Diagnostic: Limiter") {
		t.Error("limiter diagnostics shown although normalisation never ran")
	}
	// Every stage is missing.
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Integrated Loudness") && strings.Count(line, " - ") < 3 {
			t.Errorf("expected three missing values in %q", line)
		}
	}
}

func TestWriteReportSilentInput(t *testing.T) {
	res := &processor.MasteringResult{
		Skipped: true,
		Initial: processor.LoudnessStats{Integrated: math.Inf(-1), TruePeak: math.Inf(-1), Threshold: -70},
	}
	var buf bytes.Buffer
	writeReport(&buf, ReportData{OutputPath: "x.wav", Config: processor.DefaultConfig(), Result: res})
	out := buf.String()
	if !strings.Contains(out, "Status: SKIPPED") || !strings.Contains(out, "< -70") || !strings.Contains(out, "< -120") {
		t.Errorf("silent input not reported:\n%s", out)
	}
}

func TestGenerateReport(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "take_00001.wav")

	path, err := GenerateReport(ReportData{OutputPath: output, Config: processor.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "take_00001.log"); path != want {
		t.Errorf("report path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Status: SAVED WITHOUT MASTERING") {
		t.Errorf("unexpected report:\n%s", data)
	}
}

func TestNewLogger(t *testing.T) {
	logger, closeLog, err := NewLogger(Options{})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("discarded")
	closeLog()

	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "xaudiosave.log")
	logger, closeLog, err = NewLogger(Options{File: file, MaxSizeMB: 1, Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("mastered", zap.Float64("integrated_lufs", -14.1))
	logger.Debug("hidden at info level")
	closeLog()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"mastered"`) || strings.Contains(string(data), "hidden") {
		t.Errorf("unexpected file log: %s", data)
	}
	if !strings.Contains(console.String(), "mastered") {
		t.Errorf("console log missing entry: %q", console.String())
	}
}
