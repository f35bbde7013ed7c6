package ffmpeg

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoMeasurement is returned when expected statistics are missing from ffmpeg's output.
var ErrNoMeasurement = errors.New("ffmpeg: measurement not found in output")

// LoudnormStats contains the JSON output from the loudnorm filter.
// loudnorm reports every value as a string.
type LoudnormStats struct {
	InputI            string `json:"input_i"`
	InputTP           string `json:"input_tp"`
	InputLRA          string `json:"input_lra"`
	InputThresh       string `json:"input_thresh"`
	OutputI           string `json:"output_i"`
	OutputTP          string `json:"output_tp"`
	OutputLRA         string `json:"output_lra"`
	OutputThresh      string `json:"output_thresh"`
	NormalizationType string `json:"normalization_type"`
	TargetOffset      string `json:"target_offset"`
}

// Measured converts the input_* fields into numbers for a linear pass.
// "-inf" is accepted and yields negative infinity.
func (s *LoudnormStats) Measured() (Measured, error) {
	var m Measured
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"input_i", s.InputI, &m.I},
		{"input_lra", s.InputLRA, &m.LRA},
		{"input_tp", s.InputTP, &m.TP},
		{"input_thresh", s.InputThresh, &m.Thresh},
	}
	for _, f := range fields {
		v, err := parseNumber(f.raw)
		if err != nil {
			return Measured{}, fmt.Errorf("%w: %s=%q", ErrNoMeasurement, f.name, f.raw)
		}
		*f.dst = v
	}
	if s.TargetOffset != "" {
		if v, err := parseNumber(s.TargetOffset); err == nil {
			m.Offset = v
		}
	}
	return m, nil
}

var (
	loudnormJSONRe  = regexp.MustCompile(`\{[^{}]*"input_i"[^{}]*\}`)
	loudnormFieldRe = map[string]*regexp.Regexp{
		"input_i":       regexp.MustCompile(`"input_i"\s*:\s*"([^"]+)"`),
		"input_tp":      regexp.MustCompile(`"input_tp"\s*:\s*"([^"]+)"`),
		"input_lra":     regexp.MustCompile(`"input_lra"\s*:\s*"([^"]+)"`),
		"input_thresh":  regexp.MustCompile(`"input_thresh"\s*:\s*"([^"]+)"`),
		"target_offset": regexp.MustCompile(`"target_offset"\s*:\s*"([^"]+)"`),
	}
)

// ParseLoudnorm extracts the last loudnorm JSON block from ffmpeg's stderr.
// When the block does not decode cleanly the input_* fields are pulled out one by one.
func ParseLoudnorm(output string) (*LoudnormStats, error) {
	matches := loudnormJSONRe.FindAllString(output, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no loudnorm JSON (captured %d bytes)", ErrNoMeasurement, len(output))
	}
	block := matches[len(matches)-1]

	var stats LoudnormStats
	if err := json.Unmarshal([]byte(block), &stats); err == nil && stats.InputI != "" {
		return &stats, nil
	}

	field := func(name string) string {
		if m := loudnormFieldRe[name].FindStringSubmatch(block); len(m) > 1 {
			return m[1]
		}
		return ""
	}
	stats = LoudnormStats{
		InputI:       field("input_i"),
		InputTP:      field("input_tp"),
		InputLRA:     field("input_lra"),
		InputThresh:  field("input_thresh"),
		TargetOffset: field("target_offset"),
	}
	if stats.InputI == "" {
		return nil, fmt.Errorf("%w: malformed loudnorm JSON", ErrNoMeasurement)
	}
	return &stats, nil
}

// Summary is the final block printed by the ebur128 filter.
type Summary struct {
	IntegratedLUFS float64
	ThresholdLUFS  float64
	LRA            float64
	TruePeakDBFS   float64
	HasTruePeak    bool
}

const numberPattern = `(-?inf|[-+]?\d+(?:\.\d+)?)`

var (
	ebuIntegratedRe = regexp.MustCompile(`(?m)^\s*I:\s+` + numberPattern + `\s+LUFS`)
	ebuThresholdRe  = regexp.MustCompile(`(?m)^\s*Threshold:\s+` + numberPattern + `\s+LUFS`)
	ebuLRARe        = regexp.MustCompile(`(?m)^\s*LRA:\s+` + numberPattern + `\s+LU\b`)
	ebuPeakRe       = regexp.MustCompile(`(?m)^\s*Peak:\s+` + numberPattern + `\s+dBFS`)
)

// ParseEBUR128 reads the summary that follows the last "Summary:" marker.
func ParseEBUR128(output string) (*Summary, error) {
	idx := strings.LastIndex(output, "Summary:")
	if idx < 0 {
		return nil, fmt.Errorf("%w: no ebur128 summary", ErrNoMeasurement)
	}
	section := output[idx:]

	m := ebuIntegratedRe.FindStringSubmatch(section)
	if len(m) < 2 {
		return nil, fmt.Errorf("%w: ebur128 summary without integrated loudness", ErrNoMeasurement)
	}
	s := &Summary{}
	var err error
	if s.IntegratedLUFS, err = parseNumber(m[1]); err != nil {
		return nil, fmt.Errorf("%w: integrated loudness %q", ErrNoMeasurement, m[1])
	}
	// The first Threshold line belongs to the integrated loudness block.
	if m := ebuThresholdRe.FindStringSubmatch(section); len(m) > 1 {
		s.ThresholdLUFS, _ = parseNumber(m[1])
	}
	if m := ebuLRARe.FindStringSubmatch(section); len(m) > 1 {
		s.LRA, _ = parseNumber(m[1])
	}
	if m := ebuPeakRe.FindStringSubmatch(section); len(m) > 1 {
		if v, err := parseNumber(m[1]); err == nil {
			s.TruePeakDBFS = v
			s.HasTruePeak = true
		}
	}
	return s, nil
}

var streamInfoRe = regexp.MustCompile(`Audio: [^\n]*?, (\d+) Hz, ([^,\n]+)`)

var layoutChannels = map[string]int{
	"mono":   1,
	"stereo": 2,
	"2.1":    3,
	"3.0":    3,
	"quad":   4,
	"4.0":    4,
	"4.1":    5,
	"5.0":    5,
	"5.1":    6,
	"6.0":    6,
	"6.1":    7,
	"7.0":    7,
	"7.1":    8,
}

// ParseStreamInfo extracts rate and channel count from an input stream banner line.
func ParseStreamInfo(output string) (int, int, error) {
	m := streamInfoRe.FindStringSubmatch(output)
	if len(m) < 3 {
		return 0, 0, fmt.Errorf("%w: no audio stream", ErrNoMeasurement)
	}
	rate, err := strconv.Atoi(m[1])
	if err != nil || rate <= 0 {
		return 0, 0, fmt.Errorf("%w: sample rate %q", ErrNoMeasurement, m[1])
	}

	layout := strings.TrimSpace(m[2])
	if i := strings.IndexByte(layout, '('); i > 0 {
		layout = layout[:i]
	}
	if n, ok := layoutChannels[layout]; ok {
		return rate, n, nil
	}
	var n int
	if _, err := fmt.Sscanf(layout, "%d channels", &n); err == nil && n > 0 {
		return rate, n, nil
	}
	return 0, 0, fmt.Errorf("%w: channel layout %q", ErrNoMeasurement, m[2])
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
