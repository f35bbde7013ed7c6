package logging

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/processor"
)

// ReportData contains everything needed to write a mastering report.
type ReportData struct {
	InputPath    string
	OutputPath   string
	StartTime    time.Time
	EndTime      time.Time
	SampleRate   int
	Channels     int
	DurationSecs float64
	Config       processor.MasteringConfig
	Result       *processor.MasteringResult // nil when mastering was disabled
}

// ReportPath maps an artifact path to its report: take_00001.wav → take_00001.log
func ReportPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".log"
}

// GenerateReport writes the report beside the output file.
//
// Report structure:
// 1. Header - file info and timestamp
// 2. Settings - the mastering configuration
// 3. Processing Summary - outcome and timing
// 4. Compression, Loudnorm and Limiter diagnostics
// 5. Loudness Measurements - three-column table (Input/Rough/Final)
func GenerateReport(data ReportData) (string, error) {
	path := ReportPath(data.OutputPath)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	writeReport(f, data)
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write log file: %w", err)
	}
	return path, nil
}

func writeReport(w io.Writer, data ReportData) {
	writeReportHeader(w, data)
	writeSettings(w, data.Config)
	writeProcessingSummary(w, data)
	if data.Result != nil {
		writeDiagnosticCompression(w, data.Result.Compression)
		writeDiagnosticLoudnorm(w, data.Config, data.Result.Normalisation)
		writeDiagnosticLimiter(w, data.Config, data.Result)
	}
	writeLoudnessTable(w, data.Result)
}

// writeSection writes a title with a dashed underline of the same length.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "XAudioSave Mastering Report")
	fmt.Fprintln(w, "===========================")
	if data.InputPath != "" {
		fmt.Fprintf(w, "File: %s\n", filepath.Base(data.InputPath))
	}
	fmt.Fprintf(w, "Output: %s\n", filepath.Base(data.OutputPath))
	fmt.Fprintf(w, "Processed: %s\n", data.EndTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(time.Duration(data.DurationSecs*float64(time.Second))))
	fmt.Fprintf(w, "Format: %d Hz %s, %s\n", data.SampleRate, channelName(data.Channels), formatName(data.Config.Format))
	fmt.Fprintln(w, "")
}

func writeSettings(w io.Writer, cfg processor.MasteringConfig) {
	writeSection(w, "Settings")

	if cfg.NormalisationEnabled() {
		fmt.Fprintf(w, "Target loudness: %.1f LUFS\n", cfg.TargetLUFS)
	} else {
		fmt.Fprintln(w, "Target loudness: disabled")
	}
	if cfg.EnableLimiter {
		fmt.Fprintf(w, "Peak limiter:    %s, ceiling %.1f dB\n", cfg.Limiter, cfg.EffectivePeak())
	} else {
		fmt.Fprintln(w, "Peak limiter:    disabled")
	}
	if cfg.EnableCompression {
		p := cfg.Compressor()
		fmt.Fprintf(w, "Compression:     %s (ratio %.2g:1)\n", p.Mode, p.Ratio)
	} else {
		fmt.Fprintln(w, "Compression:     disabled")
	}
	fmt.Fprintf(w, "Sample rate:     %d Hz\n", cfg.SampleRate)
	fmt.Fprintln(w, "")
}

func writeProcessingSummary(w io.Writer, data ReportData) {
	writeSection(w, "Processing Summary")

	res := data.Result
	switch {
	case res == nil:
		fmt.Fprintln(w, "Status: SAVED WITHOUT MASTERING")
	case res.Fallback:
		fmt.Fprintln(w, "Status: FALLBACK (unprocessed audio saved)")
		fmt.Fprintf(w, "Reason: %v\n", res.Err)
	case res.Skipped:
		fmt.Fprintln(w, "Status: SKIPPED (silent input)")
	default:
		fmt.Fprintln(w, "Status: MASTERED")
	}

	total := data.EndTime.Sub(data.StartTime)
	fmt.Fprintf(w, "Total: %s", formatDuration(total))
	if data.DurationSecs > 0 && total > 0 {
		audioDuration := time.Duration(data.DurationSecs * float64(time.Second))
		fmt.Fprintf(w, " (%.0fx real-time)", float64(audioDuration)/float64(total))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "")
}

func writeDiagnosticCompression(w io.Writer, info *processor.CompressionInfo) {
	if info == nil {
		return
	}
	writeSection(w, "Diagnostic: Compressor")
	p := info.Preset
	fmt.Fprintf(w, "  Mode:           %s\n", p.Mode)
	fmt.Fprintf(w, "  Dynamic offset: %s dB\n", formatMetricSigned(info.DynamicOffset, 2))
	fmt.Fprintf(w, "  Threshold:      %s dB\n", formatMetric(info.ThresholdDB, 2))
	fmt.Fprintf(w, "  Ratio:          %.2g:1\n", p.Ratio)
	fmt.Fprintf(w, "  Attack/Release: %.0f ms / %.0f ms\n", p.AttackMs, p.ReleaseMs)
	fmt.Fprintf(w, "  Knee:           %.1f dB\n", p.KneeDB)
	fmt.Fprintf(w, "  Makeup:         %s dB\n", formatMetricSigned(p.MakeupDB, 1))
	fmt.Fprintln(w, "")
}

func writeDiagnosticLoudnorm(w io.Writer, cfg processor.MasteringConfig, n *processor.NormalisationResult) {
	if n == nil {
		return
	}
	writeSection(w, "Diagnostic: Loudnorm")
	fmt.Fprintf(w, "  Target I:  %.1f LUFS\n", cfg.TargetLUFS)
	fmt.Fprintf(w, "  Target TP: %.1f dBTP\n", cfg.LoudnormTP())
	if n.RoughSubstituted {
		fmt.Fprintln(w, "  Rough pass: measurement unavailable, input statistics used")
	}
	if n.LinearPossible {
		fmt.Fprintln(w, "  Linear pass: single gain")
	} else {
		fmt.Fprintf(w, "  Linear pass: ⚠ target exceeds linear headroom (max %.1f LUFS), loudnorm fell back to dynamic\n", n.MaxLinearTarget)
	}
	fmt.Fprintln(w, "")
}

func writeDiagnosticLimiter(w io.Writer, cfg processor.MasteringConfig, res *processor.MasteringResult) {
	if !cfg.EnableLimiter || res.Normalisation == nil {
		return
	}
	writeSection(w, "Diagnostic: Limiter")
	fmt.Fprintf(w, "  Strategy: %s\n", cfg.Limiter)
	fmt.Fprintf(w, "  Ceiling:  %.1f dB\n", cfg.EffectivePeak())
	if res.LimiterGain < 1 {
		fmt.Fprintf(w, "  Gain:     %s dB\n", formatMetricSigned(audio.LinearToDB(res.LimiterGain), 2))
	} else {
		fmt.Fprintln(w, "  Gain:     none (under ceiling)")
	}
	fmt.Fprintln(w, "")
}

// writeLoudnessTable writes the Input → Rough → Final comparison.
// Stages that never ran show as missing.
func writeLoudnessTable(w io.Writer, res *processor.MasteringResult) {
	writeSection(w, "Loudness Measurements")

	missing := processor.LoudnessStats{
		Integrated: math.NaN(), Range: math.NaN(), TruePeak: math.NaN(), Threshold: math.NaN(),
	}
	input, rough, final := missing, missing, missing
	if res != nil {
		if res.Initial != (processor.LoudnessStats{}) {
			input = res.Initial
		}
		if res.Normalisation != nil {
			rough = res.Rough
		}
		if res.Final != (processor.LoudnessStats{}) {
			final = res.Final
		}
	}

	table := NewMetricTable()
	table.AddLUFSRow("Integrated Loudness", input.Integrated, rough.Integrated, final.Integrated, "LUFS")
	table.AddMetricRow("Loudness Range", input.Range, rough.Range, final.Range, 1, "LU")
	table.AddRow("True Peak", []string{
		formatMetricDB(input.TruePeak, 1),
		formatMetricDB(rough.TruePeak, 1),
		formatMetricDB(final.TruePeak, 1),
	}, "dBTP", "")
	table.AddLUFSRow("Gate Threshold", input.Threshold, rough.Threshold, final.Threshold, "LUFS")

	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// channelName returns a human-readable channel name
func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}

func formatName(f audio.Format) string {
	switch f {
	case audio.FormatPCM16:
		return "16-bit PCM"
	case audio.FormatPCM24:
		return "24-bit PCM"
	default:
		return "32-bit float"
	}
}
