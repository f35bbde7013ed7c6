package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#7D56F4") // XAudioSave violet
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White
	okColor      = lipgloss.Color("#00AA00")
	warnColor    = lipgloss.Color("#FFA500")
)

// Styles
var (
	// Title style - bold violet
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	OKStyle = lipgloss.NewStyle().
		Foreground(okColor)

	WarnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(warnColor)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("XAudioSave ♾"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// FormatSaved renders one saved file for plain mode. lufs is ignored unless
// the file was mastered.
func FormatSaved(input, relative string, lufs float64, mastered bool, fallback error) string {
	switch {
	case fallback != nil:
		return fmt.Sprintf("%s %s → %s %s", WarnStyle.Render("!"), input, relative,
			KeyStyle.Render(fmt.Sprintf("(unprocessed: %v)", fallback)))
	case !mastered:
		return fmt.Sprintf("%s %s → %s %s", OKStyle.Render("✓"), input, relative,
			KeyStyle.Render("(unmastered)"))
	}
	return fmt.Sprintf("%s %s → %s %s", OKStyle.Render("✓"), input, relative,
		KeyStyle.Render(fmt.Sprintf("(%.1f LUFS)", lufs)))
}

// PrintSaved prints one line per saved file in plain mode.
func PrintSaved(input, relative string, lufs float64, mastered bool, fallback error) {
	fmt.Println(FormatSaved(input, relative, lufs, mastered, fallback))
}

// PrintWarning prints a non-fatal problem.
func PrintWarning(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarnStyle.Render("Warning:"), message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}
