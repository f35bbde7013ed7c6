package cli

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatSaved(t *testing.T) {
	tests := []struct {
		name     string
		lufs     float64
		mastered bool
		fallback error
		want     string
		notWant  string
	}{
		{name: "mastered", lufs: -14.1, mastered: true, want: "(-14.1 LUFS)"},
		{name: "normalisation disabled", mastered: false, want: "(unmastered)", notWant: "LUFS"},
		{name: "fallback", mastered: false, fallback: errors.New("ffmpeg missing"), want: "(unprocessed: ffmpeg missing)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSaved("in.wav", "Audio/in.wav", tt.lufs, tt.mastered, tt.fallback)
			if !strings.Contains(got, "in.wav → Audio/in.wav") || !strings.Contains(got, tt.want) {
				t.Errorf("FormatSaved() = %q, want it to contain %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("FormatSaved() = %q, must not contain %q", got, tt.notWant)
			}
		})
	}
}
